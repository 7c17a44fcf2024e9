package binding

import (
	"fmt"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
	"github.com/jjedMoriAnktah/Eve/internal/plan"
	"github.com/jjedMoriAnktah/Eve/internal/relation"
)

// entityOf returns the entity a bound variable refers to. Only refs name
// entities; any other value matches nothing.
func entityOf(b relation.Binding, name string) (ir.EntityID, bool, bool) {
	v, bound := b[name]
	if !bound {
		return "", false, false
	}
	ref, ok := v.(ir.IRRef)
	return ref.Entity(), true, ok
}

// unify extends b with name = v. An empty name ignores the column; a bound
// name must already hold an equal value.
func unify(b relation.Binding, name string, v ir.IRValue) (relation.Binding, bool) {
	if name == "" {
		return b, true
	}
	if cur, ok := b[name]; ok {
		return b, ir.Equal(cur, v)
	}
	return b.With(name, v), true
}

func (e *Engine) find(rc *Round, cl plan.Find, rel *relation.Relation) *relation.Relation {
	tag := ir.IRString(cl.Tag)
	out := relation.New()
	for _, row := range rel.Rows() {
		id, bound, isRef := entityOf(row.Binding, cl.Var)
		if bound {
			if isRef && rc.View.Has(ir.T(id, ir.TagAttribute, tag)) {
				out.Add(row.Binding, row.Count)
			}
			continue
		}
		for t := range rc.View.ByAttributeValue(ir.TagAttribute, tag) {
			out.Add(row.Binding.With(cl.Var, ir.IRRef(t.Entity)), row.Count)
		}
	}
	return out
}

func (e *Engine) lookup(rc *Round, cl plan.Lookup, rel *relation.Relation) *relation.Relation {
	out := relation.New()
	for _, row := range rel.Rows() {
		id, bound, isRef := entityOf(row.Binding, cl.Entity)
		if bound && !isRef {
			continue
		}
		facts := rc.View.Triples()
		if bound {
			facts = rc.View.ByEntity(id)
		}
		for t := range facts {
			b, ok := unify(row.Binding, cl.Entity, ir.IRRef(t.Entity))
			if !ok {
				continue
			}
			if b, ok = unify(b, cl.Attribute, ir.IRString(t.Attribute)); !ok {
				continue
			}
			if b, ok = unify(b, cl.Value, t.Value); !ok {
				continue
			}
			out.Add(b, row.Count)
		}
	}
	return out
}

// attr joins on one attribute. Without a value variable the clause is a
// semi-join: each input row survives at most once per entity, however many
// values the attribute has.
func (e *Engine) attr(rc *Round, cl plan.Attr, rel *relation.Relation) *relation.Relation {
	out := relation.New()
	for _, row := range rel.Rows() {
		id, bound, isRef := entityOf(row.Binding, cl.Entity)
		if bound && !isRef {
			continue
		}

		if bound {
			if v, ok := row.Binding[cl.Value]; ok && cl.Value != "" {
				if rc.View.Has(ir.T(id, cl.Attribute, v)) {
					out.Add(row.Binding, row.Count)
				}
				continue
			}
			for t := range rc.View.ByEntity(id) {
				if t.Attribute != cl.Attribute {
					continue
				}
				if cl.Value == "" {
					out.Add(row.Binding, row.Count)
					break
				}
				out.Add(row.Binding.With(cl.Value, t.Value), row.Count)
			}
			continue
		}

		seen := make(map[ir.EntityID]bool)
		for t := range rc.View.ByAttribute(cl.Attribute) {
			if cl.Value == "" && seen[t.Entity] {
				continue
			}
			seen[t.Entity] = true
			b := row.Binding.With(cl.Entity, ir.IRRef(t.Entity))
			b, ok := unify(b, cl.Value, t.Value)
			if !ok {
				continue
			}
			out.Add(b, row.Count)
		}
	}
	return out
}

// resolve returns the value of t under b, if it has one.
func resolve(b relation.Binding, t plan.Term) (ir.IRValue, bool) {
	if !t.IsVar() {
		return t.Const, t.Const != nil
	}
	v, ok := b[t.Var]
	return v, ok
}

func (e *Engine) compare(cl plan.Compare, rel *relation.Relation) (*relation.Relation, error) {
	out := relation.New()
	for _, row := range rel.Rows() {
		left, lok := resolve(row.Binding, cl.Left)
		right, rok := resolve(row.Binding, cl.Right)

		switch {
		case lok && rok:
			if ir.Equal(left, right) == (cl.Op == plan.OpEq) {
				out.Add(row.Binding, row.Count)
			}
		case cl.Op == plan.OpEq && lok:
			out.Add(row.Binding.With(cl.Right.Var, left), row.Count)
		case cl.Op == plan.OpEq && rok:
			out.Add(row.Binding.With(cl.Left.Var, right), row.Count)
		default:
			return nil, fmt.Errorf("comparison %s %s %s has an unbound side", cl.Left, cl.Op, cl.Right)
		}
	}
	return out, nil
}

// apply evaluates an expression per row. A row whose evaluation fails is
// dropped and reported; the rest of the block proceeds.
func (e *Engine) apply(rc *Round, cl plan.Apply, rel *relation.Relation) (*relation.Relation, error) {
	prg, ok := e.programs[programKey(cl.Expr, cl.Scope)]
	if !ok {
		return nil, fmt.Errorf("block %q: expression %q was not prepared", rc.Block, cl.Expr)
	}

	out := relation.New()
	for _, row := range rel.Rows() {
		val, _, err := prg.Eval(activation(row.Binding, cl.Scope))
		if err != nil {
			rc.Report(DiagExpression, "%s at %s: %v", cl.Expr, row.Binding, err)
			continue
		}
		v, err := fromCEL(val)
		if err != nil {
			rc.Report(DiagExpression, "%s at %s: %v", cl.Expr, row.Binding, err)
			continue
		}

		if cl.Var != "" {
			out.Add(row.Binding.With(cl.Var, v), row.Count)
			continue
		}
		keep, isBool := v.(ir.IRBool)
		if !isBool {
			rc.Report(DiagExpression, "%s at %s: filter returned %s, want bool", cl.Expr, row.Binding, v.Kind())
			continue
		}
		if keep {
			out.Add(row.Binding, row.Count)
		}
	}
	return out, nil
}
