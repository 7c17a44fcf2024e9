package eval

import (
	"errors"
	"slices"

	"github.com/jjedMoriAnktah/Eve/internal/binding"
	"github.com/jjedMoriAnktah/Eve/internal/factstore"
	"github.com/jjedMoriAnktah/Eve/internal/identity"
	"github.com/jjedMoriAnktah/Eve/internal/ir"
	"github.com/jjedMoriAnktah/Eve/internal/plan"
	"github.com/jjedMoriAnktah/Eve/internal/relation"
)

// blockResult is what one block derived in a round.
type blockResult struct {
	facts *factstore.Index
	ids   []ir.EntityID // identities with positive support
}

// termValue resolves a plan term under a binding. A variable the binding
// lacks resolves to nil.
func termValue(b relation.Binding, t plan.Term) ir.IRValue {
	if t.IsVar() {
		return b[t.Var]
	}
	return t.Const
}

func fields(b relation.Binding, fs []plan.Field) []identity.Field {
	out := make([]identity.Field, len(fs))
	for i, f := range fs {
		out[i] = identity.Field{Attribute: f.Attribute, Value: termValue(b, f.Value)}
	}
	return out
}

func termVars(fs []plan.Field) []string {
	var out []string
	for _, f := range fs {
		if f.Value.IsVar() {
			out = append(out, f.Value.Var)
		}
	}
	return out
}

// materializeRecord turns the rows of a block into record facts.
//
// Rows are grouped by their projection onto every variable except those
// only the payload reads. Each group is one derivation of the identity and
// contributes the largest row count among its payload variants, so payload
// fan-out never adds identity support. Payload facts get the count of every
// row that produces them.
func (e *Engine) materializeRecord(rc *binding.Round, r plan.Record, rel *relation.Relation, res *blockResult) error {
	keyVars := termVars(r.Key)
	payloadOnly := slices.DeleteFunc(termVars(r.Payload), func(v string) bool {
		return slices.Contains(keyVars, v)
	})

	var derivationVars []string
	for _, row := range rel.Rows() {
		for _, v := range row.Binding.Vars() {
			if !slices.Contains(payloadOnly, v) && !slices.Contains(derivationVars, v) {
				derivationVars = append(derivationVars, v)
			}
		}
	}
	slices.Sort(derivationVars)

	for _, g := range rel.GroupBy(derivationVars) {
		first := g.Rows.Rows()[0].Binding
		key, err := identity.NewKey(r.Tag, fields(first, r.Key)...)
		if err != nil {
			if identity.IsKeyViolation(err) {
				rc.Report(binding.DiagKeyViolation, "%v at %s", err, g.Outer)
				continue
			}
			return err
		}
		id, err := e.ids.Assign(key)
		if err != nil {
			return err
		}

		var support int64
		for _, row := range g.Rows.Rows() {
			support = max(support, row.Count)
			payload := identity.Payload(fields(row.Binding, r.Payload))
			for _, t := range payload.Triples(id) {
				res.facts.Add(t, row.Count, rc.Number)
			}
		}
		for _, t := range key.Triples(id) {
			res.facts.Add(t, support, rc.Number)
		}
		res.ids = append(res.ids, id)
	}
	return nil
}

// materializeAdd attaches an attribute to existing entities. Each row adds
// its count to the attribute fact.
func (e *Engine) materializeAdd(rc *binding.Round, a plan.Add, rel *relation.Relation, res *blockResult) {
	for _, row := range rel.Rows() {
		ref, ok := row.Binding[a.Entity].(ir.IRRef)
		if !ok {
			rc.Report(binding.DiagInvalidValue, "add %s: %s is not an entity at %s", a.Attribute, a.Entity, row.Binding)
			continue
		}
		v := termValue(row.Binding, a.Value)
		if !ir.IsStorable(v) {
			rc.Report(binding.DiagInvalidValue, "add %s: value %s is not storable at %s", a.Attribute, a.Value, row.Binding)
			continue
		}
		res.facts.Add(ir.T(ref.Entity(), a.Attribute, v), row.Count, rc.Number)
	}
}

// runBlock evaluates one block against rc's view.
func (e *Engine) runBlock(rc *binding.Round, b plan.Block) (*blockResult, error) {
	rel, err := e.binder.Evaluate(rc, b.Clauses, relation.Unit())
	if err != nil {
		return nil, err
	}

	res := &blockResult{facts: factstore.NewIndex()}
	for _, o := range b.Outputs {
		switch o := o.(type) {
		case plan.Record:
			if err := e.materializeRecord(rc, o, rel, res); err != nil {
				return nil, err
			}
		case plan.Add:
			e.materializeAdd(rc, o, rel, res)
		default:
			return nil, errors.New("unknown output type")
		}
	}
	return res, nil
}
