package plan

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// anyAttribute matches every attribute of an entity class.
const anyAttribute = "*"

// factShape describes the triples a block reads or writes: the class of the
// entity (the tag it is found by), the attribute, and for tag facts the tag
// value. Empty class and value match anything.
type factShape struct {
	class     string
	attribute string
	value     string
}

func (a factShape) overlaps(b factShape) bool {
	classes := a.class == "" || b.class == "" || a.class == b.class
	attrs := a.attribute == anyAttribute || b.attribute == anyAttribute || a.attribute == b.attribute
	values := a.value == "" || b.value == "" || a.value == b.value
	return classes && attrs && values
}

func tagShape(class, tag string) factShape {
	return factShape{class: class, attribute: ir.TagAttribute, value: tag}
}

// blockShapes lists what a block consumes and produces.
type blockShapes struct {
	consumes []factShape
	produces []factShape
}

// shapesOf derives the consumed and produced shapes of a block. Entity
// variables are classified by the first find that binds them.
func shapesOf(b Block) blockShapes {
	classes := make(map[string]string)
	var s blockShapes

	var walk func([]Clause)
	walk = func(clauses []Clause) {
		for _, cl := range clauses {
			switch cl := cl.(type) {
			case Find:
				if _, ok := classes[cl.Var]; !ok {
					classes[cl.Var] = cl.Tag
				}
				s.consumes = append(s.consumes, tagShape(cl.Tag, cl.Tag))
			case Lookup:
				s.consumes = append(s.consumes, factShape{class: classes[cl.Entity], attribute: anyAttribute})
			case Attr:
				s.consumes = append(s.consumes, factShape{class: classes[cl.Entity], attribute: cl.Attribute})
			case Choose:
				for _, br := range cl.Branches {
					walk(br.Clauses)
				}
			}
		}
	}
	walk(b.Clauses)

	for _, o := range b.Outputs {
		switch o := o.(type) {
		case Record:
			s.produces = append(s.produces, tagShape(o.Tag, o.Tag))
			for _, f := range slices.Concat(o.Key, o.Payload) {
				s.produces = append(s.produces, factShape{class: o.Tag, attribute: f.Attribute})
			}
		case Add:
			if o.Attribute != ir.TagAttribute {
				s.produces = append(s.produces, factShape{class: classes[o.Entity], attribute: o.Attribute})
				continue
			}
			// A new tag moves the entity into another class.
			tag := ""
			if v, ok := o.Value.Const.(ir.IRString); ok && !o.Value.IsVar() {
				tag = string(v)
			}
			s.produces = append(s.produces, tagShape("", tag))
		}
	}
	return s
}

// dependencyGraph maps a block index to the indexes of blocks that read
// what it produces. Successor lists are sorted.
type dependencyGraph [][]int

func buildDependencyGraph(blocks []Block) dependencyGraph {
	shapes := make([]blockShapes, len(blocks))
	for i, b := range blocks {
		shapes[i] = shapesOf(b)
	}

	graph := make(dependencyGraph, len(blocks))
	for from := range blocks {
		for to := range blocks {
			if reads(shapes[to].consumes, shapes[from].produces) {
				graph[from] = append(graph[from], to)
			}
		}
	}
	return graph
}

func reads(consumes, produces []factShape) bool {
	for _, c := range consumes {
		for _, p := range produces {
			if c.overlaps(p) {
				return true
			}
		}
	}
	return false
}

// order computes evaluation layers for blocks. A block that reads its own
// output, directly or through other blocks, cannot be evaluated in a single
// pass and is reported as E210.
func order(blocks []Block) ([][]int, []ValidationError) {
	graph := buildDependencyGraph(blocks)
	sccs := tarjanSCC(graph)

	var errs []ValidationError
	for _, scc := range sccs {
		if len(scc) > 1 || slices.Contains(graph[scc[0]], scc[0]) {
			errs = append(errs, cycleError(blocks, scc, graph))
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	// Tarjan emits components in reverse topological order.
	depth := make([]int, len(blocks))
	var layers [][]int
	for i := len(sccs) - 1; i >= 0; i-- {
		node := sccs[i][0]
		for _, next := range graph[node] {
			depth[next] = max(depth[next], depth[node]+1)
		}
	}
	for node, d := range depth {
		for len(layers) <= d {
			layers = append(layers, nil)
		}
		layers[d] = append(layers[d], node)
	}
	return layers, nil
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in index order so the result is deterministic.
func tarjanSCC(graph dependencyGraph) [][]int {
	var (
		index   = 0
		stack   []int
		indices = make(map[int]int)
		lowlink = make(map[int]int)
		onStack = make(map[int]bool)
		sccs    [][]int
	)

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for node := range graph {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func cycleError(blocks []Block, scc []int, graph dependencyGraph) ValidationError {
	path := cyclePath(scc, graph)
	names := make([]string, len(path))
	for i, n := range path {
		names[i] = blocks[n].Name
	}
	return ValidationError{
		Block:   blocks[scc[0]].Name,
		Field:   "outputs",
		Code:    ErrCyclicDependency,
		Message: fmt.Sprintf("blocks read their own output: %s", strings.Join(names, " -> ")),
	}
}

// cyclePath follows edges inside an SCC from its first member back to it.
func cyclePath(scc []int, graph dependencyGraph) []int {
	start := scc[0]
	if len(scc) == 1 {
		return []int{start, start}
	}

	members := make(map[int]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	path := []int{start}
	visited := map[int]bool{start: true}
	for current := start; ; {
		next := -1
		for _, w := range graph[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next < 0 {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}
	return path
}
