package binding

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"go.uber.org/multierr"

	"github.com/jjedMoriAnktah/Eve/internal/plan"
	"github.com/jjedMoriAnktah/Eve/internal/relation"
)

// Evaluator runs a clause list over an input relation.
type Evaluator interface {
	Evaluate(rc *Round, clauses []plan.Clause, input *relation.Relation) (*relation.Relation, error)
}

// Chooser evaluates a choose clause. Branch clauses are run through eval.
type Chooser interface {
	Choose(rc *Round, c plan.Choose, input *relation.Relation, eval Evaluator) (*relation.Relation, error)
}

// Engine evaluates pattern clauses against a fact view. It holds the
// compiled apply expressions of a prepared plan and is safe for concurrent
// use once built.
type Engine struct {
	programs map[string]cel.Program
	chooser  Chooser
}

// Option configures an Engine.
type Option func(*Engine)

// WithChooser sets the operator used for choose clauses.
func WithChooser(c Chooser) Option {
	return func(e *Engine) {
		e.chooser = c
	}
}

// New compiles every apply expression in p. Expressions that do not compile
// are reported as plan validation errors with code E209.
func New(p *plan.Prepared, opts ...Option) (*Engine, error) {
	e := &Engine{programs: make(map[string]cel.Program)}
	for _, opt := range opts {
		opt(e)
	}

	var errs error
	for _, b := range p.Blocks {
		errs = multierr.Append(errs, e.compileClauses(b.Name, "clauses", b.Clauses))
	}
	if errs != nil {
		return nil, errs
	}
	return e, nil
}

func (e *Engine) compileClauses(block, path string, clauses []plan.Clause) error {
	var errs error
	for i, cl := range clauses {
		cpath := fmt.Sprintf("%s[%d].%s", path, i, plan.ClauseName(cl))
		switch cl := cl.(type) {
		case plan.Apply:
			key := programKey(cl.Expr, cl.Scope)
			if _, ok := e.programs[key]; ok {
				continue
			}
			prg, err := compileExpr(cl.Expr, cl.Scope)
			if err != nil {
				errs = multierr.Append(errs, plan.ValidationError{
					Block:   block,
					Field:   cpath + ".expr",
					Code:    plan.ErrInvalidExpression,
					Message: err.Error(),
				})
				continue
			}
			e.programs[key] = prg
		case plan.Choose:
			for j, br := range cl.Branches {
				errs = multierr.Append(errs, e.compileClauses(block, fmt.Sprintf("%s.branches[%d].clauses", cpath, j), br.Clauses))
			}
		}
	}
	return errs
}

// Evaluate runs clauses left to right starting from input. Each output row
// carries the number of distinct joins that produced it, multiplied through
// from the input row's count.
func (e *Engine) Evaluate(rc *Round, clauses []plan.Clause, input *relation.Relation) (*relation.Relation, error) {
	rel := input
	for _, cl := range clauses {
		if rel.Empty() {
			return rel, nil
		}
		next, err := e.step(rc, cl, rel)
		if err != nil {
			return nil, err
		}
		rel = next
	}
	return rel, nil
}

func (e *Engine) step(rc *Round, cl plan.Clause, rel *relation.Relation) (*relation.Relation, error) {
	switch cl := cl.(type) {
	case plan.Find:
		return e.find(rc, cl, rel), nil
	case plan.Lookup:
		return e.lookup(rc, cl, rel), nil
	case plan.Attr:
		return e.attr(rc, cl, rel), nil
	case plan.Compare:
		return e.compare(cl, rel)
	case plan.Apply:
		return e.apply(rc, cl, rel)
	case plan.Choose:
		if e.chooser == nil {
			return nil, fmt.Errorf("block %q: choose clause but no chooser configured", rc.Block)
		}
		return e.chooser.Choose(rc, cl, rel, e)
	default:
		return nil, fmt.Errorf("block %q: unknown clause type %T", rc.Block, cl)
	}
}
