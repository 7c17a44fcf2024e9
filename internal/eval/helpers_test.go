package eval

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jjedMoriAnktah/Eve/internal/identity"
	"github.com/jjedMoriAnktah/Eve/internal/ir"
	"github.com/jjedMoriAnktah/Eve/internal/plan"
)

func str(s string) ir.IRValue { return ir.IRString(s) }

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// newEngine builds an engine with logging suppressed.
func newEngine(t *testing.T, p *plan.Plan, opts ...Option) *Engine {
	t.Helper()
	e, err := New(p, append([]Option{WithLogger(discard)}, opts...)...)
	require.NoError(t, err)
	return e
}

// round runs one round and fails the test on error.
func round(t *testing.T, e *Engine, deltas ...ir.Delta) *Output {
	t.Helper()
	out, err := e.Round(context.Background(), deltas)
	require.NoError(t, err)
	return out
}

// recordID returns the identifier a record with the given key gets.
func recordID(t *testing.T, tag string, fields ...identity.Field) ir.EntityID {
	t.Helper()
	k, err := identity.NewKey(tag, fields...)
	require.NoError(t, err)
	a, err := identity.New()
	require.NoError(t, err)
	id, err := a.Assign(k)
	require.NoError(t, err)
	return id
}

func field(attribute string, v ir.IRValue) identity.Field {
	return identity.Field{Attribute: attribute, Value: v}
}

func plus(t ir.Triple, n int64) ir.Delta { return ir.Delta{Triple: t, Count: n} }
func minus(t ir.Triple, n int64) ir.Delta { return ir.Delta{Triple: t, Count: -n} }

// staticBranchPlan: every input entity gets a result record with branch 1.
func staticBranchPlan() *plan.Plan {
	return &plan.Plan{Blocks: []plan.Block{{
		Name: "static",
		Clauses: []plan.Clause{
			plan.Find{Var: "e", Tag: "input"},
			plan.Choose{
				Branches: []plan.Branch{{Output: []plan.Term{plan.C(ir.IRInt(1))}}},
				Results:  []string{"branch"},
			},
		},
		Outputs: []plan.Output{plan.Record{
			Tag: "result",
			Key: []plan.Field{
				{Attribute: "entity", Value: plan.V("e")},
				{Attribute: "branch", Value: plan.V("branch")},
			},
		}},
	}}}
}

// coolPlan: a person is cool if they have a dog. The verdict is payload;
// the record is identified by the person alone.
func coolPlan() *plan.Plan {
	return &plan.Plan{Blocks: []plan.Block{{
		Name: "cool",
		Clauses: []plan.Clause{
			plan.Find{Var: "e", Tag: "person"},
			plan.Choose{
				Branches: []plan.Branch{
					{Clauses: []plan.Clause{plan.Attr{Entity: "e", Attribute: "dog"}}, Output: []plan.Term{plan.C(str("cool"))}},
					{Output: []plan.Term{plan.C(str("not cool"))}},
				},
				Results: []string{"info"},
			},
		},
		Outputs: []plan.Output{plan.Record{
			Tag:     "person-info",
			Key:     []plan.Field{{Attribute: "person", Value: plan.V("e")}},
			Payload: []plan.Field{{Attribute: "info", Value: plan.V("info")}},
		}},
	}}}
}

// fanOutPlan: one record per distinct arg0 value of an input entity.
func fanOutPlan() *plan.Plan {
	return &plan.Plan{Blocks: []plan.Block{{
		Name: "fan-out",
		Clauses: []plan.Clause{
			plan.Find{Var: "e", Tag: "input"},
			plan.Choose{
				Branches: []plan.Branch{{
					Clauses: []plan.Clause{plan.Attr{Entity: "e", Attribute: "arg0", Value: "v"}},
					Output:  []plan.Term{plan.V("v")},
				}},
				Results: []string{"value"},
			},
		},
		Outputs: []plan.Output{plan.Record{
			Tag: "arg",
			Key: []plan.Field{
				{Attribute: "entity", Value: plan.V("e")},
				{Attribute: "value", Value: plan.V("value")},
			},
		}},
	}}}
}

// ownerPlan: one record per owner, supported once per owned input.
func ownerPlan() *plan.Plan {
	return &plan.Plan{Blocks: []plan.Block{{
		Name: "owners",
		Clauses: []plan.Clause{
			plan.Find{Var: "e", Tag: "input"},
			plan.Attr{Entity: "e", Attribute: "owner", Value: "o"},
		},
		Outputs: []plan.Output{plan.Record{
			Tag: "owned",
			Key: []plan.Field{{Attribute: "owner", Value: plan.V("o")}},
		}},
	}}}
}

// catPlan splits every cat into one record per attribute, keyed by the
// attribute name with the values as payload. A second block labels each
// value, calling tag values "cool tags".
func catPlan() *plan.Plan {
	return &plan.Plan{Blocks: []plan.Block{
		{
			Name: "split",
			Clauses: []plan.Clause{
				plan.Find{Var: "cat", Tag: "cat"},
				plan.Lookup{Entity: "cat", Attribute: "attribute", Value: "value"},
			},
			Outputs: []plan.Output{plan.Record{
				Tag: "cat-attribute",
				Key: []plan.Field{
					{Attribute: "cat", Value: plan.V("cat")},
					{Attribute: "attribute", Value: plan.V("attribute")},
				},
				Payload: []plan.Field{{Attribute: "value", Value: plan.V("value")}},
			}},
		},
		{
			Name: "values",
			Clauses: []plan.Clause{
				plan.Find{Var: "ca", Tag: "cat-attribute"},
				plan.Choose{
					Branches: []plan.Branch{
						{
							Clauses: []plan.Clause{
								plan.Attr{Entity: "ca", Attribute: "attribute", Value: "a"},
								plan.Compare{Left: plan.V("a"), Op: plan.OpEq, Right: plan.C(str("tag"))},
							},
							Output: []plan.Term{plan.C(str("cool tags"))},
						},
						{
							Clauses: []plan.Clause{plan.Attr{Entity: "ca", Attribute: "attribute", Value: "a"}},
							Output:  []plan.Term{plan.V("a")},
						},
					},
					Results: []string{"label"},
				},
				plan.Attr{Entity: "ca", Attribute: "cat", Value: "c"},
				plan.Attr{Entity: "ca", Attribute: "value", Value: "v"},
			},
			Outputs: []plan.Output{plan.Record{
				Tag: "cat-value",
				Key: []plan.Field{
					{Attribute: "cat", Value: plan.V("c")},
					{Attribute: "attr", Value: plan.V("label")},
					{Attribute: "val", Value: plan.V("v")},
				},
			}},
		},
	}}
}
