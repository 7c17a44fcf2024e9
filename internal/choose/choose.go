// Package choose implements ordered, mutually exclusive branch selection.
//
// Incoming rows are partitioned into outer groups by their projection onto
// the variables bound before the choose. Branches are tried in declared
// order, each against the residual: the groups no earlier branch covered.
// A branch covers a group when its clauses yield at least one row for it,
// and it then supplies every output row of that group. Coverage is decided
// once per group per round, so the cost is linear in the number of branches
// and exclusivity holds by construction.
package choose

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jjedMoriAnktah/Eve/internal/binding"
	"github.com/jjedMoriAnktah/Eve/internal/ir"
	"github.com/jjedMoriAnktah/Eve/internal/plan"
	"github.com/jjedMoriAnktah/Eve/internal/relation"
)

// Operator evaluates choose clauses. It is stateless between calls and safe
// for concurrent use.
type Operator struct {
	shards int
}

// Option configures an Operator.
type Option func(*Operator)

// WithShards evaluates the groups of each branch in up to n parallel shards.
// Values below 2 evaluate sequentially.
func WithShards(n int) Option {
	return func(o *Operator) {
		o.shards = n
	}
}

// New creates an Operator.
func New(opts ...Option) *Operator {
	o := &Operator{shards: 1}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result is the outcome of one choose over one input relation.
type Result struct {
	// Rows is the bag union of every branch's output, projected onto the
	// outer variables and the result variables.
	Rows *relation.Relation

	// Outer is the exclusivity key.
	Outer []string

	// Coverage maps each covered group key to the index of the branch that
	// won it. Uncovered groups are absent.
	Coverage map[string]int

	// Groups is the number of distinct outer groups in the input.
	Groups int
}

// Winner returns the branch that covered the group of outer.
func (r *Result) Winner(outer relation.Binding) (int, bool) {
	i, ok := r.Coverage[outer.Key(r.Outer)]
	return i, ok
}

// Choose implements binding.Chooser.
func (o *Operator) Choose(rc *binding.Round, c plan.Choose, input *relation.Relation, eval binding.Evaluator) (*relation.Relation, error) {
	res, err := o.Apply(rc, c, input, eval)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// Apply evaluates c over input. Groups no branch covers produce no rows.
func (o *Operator) Apply(rc *binding.Round, c plan.Choose, input *relation.Relation, eval binding.Evaluator) (*Result, error) {
	res := &Result{
		Rows:     relation.New(),
		Outer:    c.Outer,
		Coverage: make(map[string]int),
	}

	residual := input
	res.Groups = len(input.GroupBy(c.Outer))
	for i, br := range c.Branches {
		if residual.Empty() {
			break
		}

		rows := residual
		if !br.Unconditional() {
			var err error
			if rows, err = o.evalBranch(rc, br, residual, eval); err != nil {
				return nil, fmt.Errorf("choose branch %d: %w", i, err)
			}
		}

		covered := make(map[string]bool)
		for _, row := range rows.Rows() {
			key := row.Binding.Key(c.Outer)
			if !covered[key] {
				covered[key] = true
				res.Coverage[key] = i
			}
			out, err := project(row.Binding, c.Outer, c.Results, br.Output)
			if err != nil {
				return nil, fmt.Errorf("choose branch %d: %w", i, err)
			}
			res.Rows.Add(out, row.Count)
		}

		residual = residual.Filter(func(b relation.Binding) bool {
			return !covered[b.Key(c.Outer)]
		})
	}
	return res, nil
}

// project keeps the outer variables of an inner binding and binds the
// results from the branch output terms. Variables local to the branch are
// dropped.
func project(inner relation.Binding, outer, results []string, output []plan.Term) (relation.Binding, error) {
	if len(output) != len(results) {
		return nil, fmt.Errorf("branch returns %d values, choose binds %d", len(output), len(results))
	}
	out := inner.Project(outer)
	for i, t := range output {
		var v ir.IRValue
		if t.IsVar() {
			var ok bool
			if v, ok = inner[t.Var]; !ok {
				return nil, fmt.Errorf("output variable %q is not bound", t.Var)
			}
		} else {
			v = t.Const
		}
		out[results[i]] = v
	}
	return out, nil
}

// evalBranch runs the branch clauses over residual. With sharding enabled
// the rows are split into shards evaluated in parallel and merged in shard
// order.
func (o *Operator) evalBranch(rc *binding.Round, br plan.Branch, residual *relation.Relation, eval binding.Evaluator) (*relation.Relation, error) {
	if o.shards < 2 {
		return eval.Evaluate(rc, br.Clauses, residual)
	}

	shards := split(residual, o.shards)
	results := make([]*relation.Relation, len(shards))
	var g errgroup.Group
	for i, shard := range shards {
		g.Go(func() error {
			rel, err := eval.Evaluate(rc, br.Clauses, shard)
			if err != nil {
				return err
			}
			results[i] = rel
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return relation.New().Union(results...), nil
}

// split partitions rows into at most n relations. Clauses evaluate each row
// independently, so the union of the shard results does not depend on the
// partition.
func split(rel *relation.Relation, n int) []*relation.Relation {
	rows := rel.Rows()
	n = min(n, len(rows))
	shards := make([]*relation.Relation, n)
	for i := range shards {
		shards[i] = relation.New()
	}
	for i, row := range rows {
		shards[i*n/len(rows)].Add(row.Binding, row.Count)
	}
	return shards
}
