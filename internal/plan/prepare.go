package plan

import (
	"fmt"
	"maps"
	"slices"
)

// Prepared is a validated plan ready to evaluate. Its blocks are copies of
// the input with Choose.Outer and Apply.Scope filled in, and Layers groups
// block indexes so that every block comes after the blocks it reads from.
// Blocks within a layer are independent of each other.
type Prepared struct {
	Blocks []Block
	Layers [][]int
}

// Prepare validates p and computes its evaluation order. It reports every
// problem it finds; on error the returned plan is nil. Dependency cycles are
// only looked for once the blocks themselves are well formed.
//
// Problems are reported as ValidationError values combined with multierr;
// use Errors or HasCode to inspect them.
func Prepare(p *Plan) (*Prepared, error) {
	if p == nil {
		return nil, combine([]ValidationError{{Field: "plan", Code: ErrEmptyName, Message: "plan is nil"}})
	}

	var errs []ValidationError
	out := &Prepared{Blocks: make([]Block, 0, len(p.Blocks))}
	names := make(map[string]int, len(p.Blocks))
	for i, b := range p.Blocks {
		c := &checker{block: b.Name}
		field := fmt.Sprintf("blocks[%d].name", i)
		if b.Name == "" {
			c.fail(field, ErrEmptyName, "block name is empty")
		} else if j, dup := names[b.Name]; dup {
			c.fail(field, ErrDuplicateBlock, "name already used by blocks[%d]", j)
		} else {
			names[b.Name] = i
		}
		out.Blocks = append(out.Blocks, c.checkBlock(b))
		errs = append(errs, c.errs...)
	}

	if len(errs) > 0 {
		return nil, combine(errs)
	}

	layers, cycleErrs := order(out.Blocks)
	if len(cycleErrs) > 0 {
		return nil, combine(cycleErrs)
	}
	out.Layers = layers
	return out, nil
}

// Block returns the prepared block named name.
func (p *Prepared) Block(name string) (Block, bool) {
	for _, b := range p.Blocks {
		if b.Name == name {
			return b, true
		}
	}
	return Block{}, false
}

// varSet is a set of variable names. Adding "" is a no-op so callers can
// pass optional columns straight through.
type varSet map[string]struct{}

func (s varSet) add(names ...string) {
	for _, n := range names {
		if n != "" {
			s[n] = struct{}{}
		}
	}
}

func (s varSet) has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s varSet) clone() varSet {
	return maps.Clone(s)
}

func (s varSet) sorted() []string {
	return slices.Sorted(maps.Keys(s))
}
