package choose

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjedMoriAnktah/Eve/internal/binding"
	"github.com/jjedMoriAnktah/Eve/internal/factstore"
	"github.com/jjedMoriAnktah/Eve/internal/ir"
	"github.com/jjedMoriAnktah/Eve/internal/plan"
	"github.com/jjedMoriAnktah/Eve/internal/relation"
)

func str(s string) ir.IRValue { return ir.IRString(s) }

func facts(ts ...ir.Triple) *factstore.Index {
	ix := factstore.NewIndex()
	for _, t := range ts {
		ix.Add(t, 1, 1)
	}
	return ix
}

// runChoose evaluates find(e, input) followed by c, returning the choose
// result for the rows the find produced.
func runChoose(t *testing.T, op *Operator, view factstore.View, c plan.Choose) *Result {
	t.Helper()
	p, err := plan.Prepare(&plan.Plan{Blocks: []plan.Block{{
		Name:    "b",
		Clauses: []plan.Clause{plan.Find{Var: "e", Tag: "input"}, c},
	}}})
	require.NoError(t, err)

	eng, err := binding.New(p, binding.WithChooser(op))
	require.NoError(t, err)

	rc := binding.NewRound(1, view).InBlock("b")
	clauses := p.Blocks[0].Clauses
	input, err := eng.Evaluate(rc, clauses[:1], relation.Unit())
	require.NoError(t, err)

	res, err := op.Apply(rc, clauses[1].(plan.Choose), input, eng)
	require.NoError(t, err)
	return res
}

func outer(id string) relation.Binding {
	return relation.Binding{"e": ir.IRRef(id)}
}

func withResult(id, name string, v ir.IRValue) relation.Binding {
	return relation.Binding{"e": ir.IRRef(id), name: v}
}

func dogChoose() plan.Choose {
	return plan.Choose{
		Results: []string{"info"},
		Branches: []plan.Branch{
			{Clauses: []plan.Clause{plan.Attr{Entity: "e", Attribute: "dog"}}, Output: []plan.Term{plan.C(str("cool"))}},
			{Output: []plan.Term{plan.C(str("not cool"))}},
		},
	}
}

func TestApply_PredicateWithFallback(t *testing.T) {
	view := facts(
		ir.T("A", "tag", str("input")),
		ir.T("A", "dog", str("rex")),
		ir.T("B", "tag", str("input")),
	)
	res := runChoose(t, New(), view, dogChoose())

	assert.Equal(t, 2, res.Groups)
	assert.Equal(t, 2, res.Rows.Len())
	assert.Equal(t, int64(1), res.Rows.Count(withResult("A", "info", str("cool"))))
	assert.Equal(t, int64(1), res.Rows.Count(withResult("B", "info", str("not cool"))))

	winner, ok := res.Winner(outer("A"))
	require.True(t, ok)
	assert.Equal(t, 0, winner)
	winner, ok = res.Winner(outer("B"))
	require.True(t, ok)
	assert.Equal(t, 1, winner)
}

func TestApply_FirstCoveringBranchWinsWithFanOut(t *testing.T) {
	view := facts(
		ir.T("A", "tag", str("input")),
		ir.T("A", "dog", str("rex")),
		ir.T("A", "dog", str("fido")),
		ir.T("A", "name", str("ann")),
	)
	c := plan.Choose{
		Results: []string{"x"},
		Branches: []plan.Branch{
			{Clauses: []plan.Clause{plan.Attr{Entity: "e", Attribute: "dog", Value: "d"}}, Output: []plan.Term{plan.V("d")}},
			{Clauses: []plan.Clause{plan.Attr{Entity: "e", Attribute: "name", Value: "n"}}, Output: []plan.Term{plan.V("n")}},
		},
	}
	res := runChoose(t, New(), view, c)

	want := []relation.Row{
		{Binding: withResult("A", "x", str("fido")), Count: 1},
		{Binding: withResult("A", "x", str("rex")), Count: 1},
	}
	got := res.Rows.Sorted()
	require.Len(t, got, 2)
	assert.ElementsMatch(t, want, got)
	assert.Len(t, res.Coverage, 1)
}

func TestApply_UncoveredGroupYieldsNothing(t *testing.T) {
	view := facts(
		ir.T("A", "tag", str("input")),
		ir.T("A", "dog", str("rex")),
		ir.T("B", "tag", str("input")),
	)
	c := dogChoose()
	c.Branches = c.Branches[:1]
	res := runChoose(t, New(), view, c)

	assert.Equal(t, 2, res.Groups)
	assert.Equal(t, 1, res.Rows.Len())
	_, ok := res.Winner(outer("B"))
	assert.False(t, ok)
}

func TestApply_BranchVariablesAreLocal(t *testing.T) {
	view := facts(
		ir.T("A", "tag", str("input")),
		ir.T("A", "dog", str("rex")),
	)
	c := plan.Choose{
		Results: []string{"x"},
		Branches: []plan.Branch{
			{Clauses: []plan.Clause{plan.Attr{Entity: "e", Attribute: "dog", Value: "d"}}, Output: []plan.Term{plan.C(ir.IRInt(1))}},
		},
	}
	res := runChoose(t, New(), view, c)

	require.Equal(t, 1, res.Rows.Len())
	b := res.Rows.Rows()[0].Binding
	assert.NotContains(t, b, "d")
	assert.Equal(t, []string{"e", "x"}, b.Vars())
}

func TestApply_MultipleResults(t *testing.T) {
	view := facts(
		ir.T("A", "tag", str("input")),
		ir.T("A", "name", str("ann")),
	)
	c := plan.Choose{
		Results: []string{"label", "rank"},
		Branches: []plan.Branch{
			{Clauses: []plan.Clause{plan.Attr{Entity: "e", Attribute: "name", Value: "n"}}, Output: []plan.Term{plan.V("n"), plan.C(ir.IRInt(1))}},
			{Output: []plan.Term{plan.C(str("anonymous")), plan.C(ir.IRInt(2))}},
		},
	}
	res := runChoose(t, New(), view, c)

	want := relation.Binding{"e": ir.IRRef("A"), "label": str("ann"), "rank": ir.IRInt(1)}
	assert.Equal(t, int64(1), res.Rows.Count(want))
}

func TestApply_CountsDistinctJoins(t *testing.T) {
	view := facts(
		ir.T("A", "tag", str("input")),
		ir.T("A", "dog", str("rex")),
		ir.T("A", "dog", str("fido")),
	)
	c := plan.Choose{
		Results: []string{"x"},
		Branches: []plan.Branch{
			{Clauses: []plan.Clause{plan.Attr{Entity: "e", Attribute: "dog", Value: "d"}}, Output: []plan.Term{plan.C(str("has dogs"))}},
		},
	}
	res := runChoose(t, New(), view, c)

	assert.Equal(t, int64(2), res.Rows.Count(withResult("A", "x", str("has dogs"))), "one join per dog")
}

func TestApply_ShardedMatchesSequential(t *testing.T) {
	var ts []ir.Triple
	for i := range 50 {
		id := ir.EntityID(fmt.Sprintf("E%02d", i))
		ts = append(ts, ir.T(id, "tag", str("input")))
		if i%3 == 0 {
			ts = append(ts, ir.T(id, "dog", str("rex")))
		}
	}
	view := facts(ts...)

	seq := runChoose(t, New(), view, dogChoose())
	par := runChoose(t, New(WithShards(4)), view, dogChoose())

	if diff := cmp.Diff(seq.Rows.Sorted(), par.Rows.Sorted()); diff != "" {
		t.Errorf("sharded rows mismatch (-seq +par):\n%s", diff)
	}
	assert.Equal(t, seq.Coverage, par.Coverage)
	assert.Equal(t, 50, par.Rows.Len())
}

func TestApply_EveryGroupHasOneWinner(t *testing.T) {
	view := facts(
		ir.T("A", "tag", str("input")),
		ir.T("A", "dog", str("rex")),
		ir.T("A", "cat", str("tom")),
		ir.T("B", "tag", str("input")),
		ir.T("B", "cat", str("tom")),
		ir.T("C", "tag", str("input")),
	)
	c := plan.Choose{
		Results: []string{"pet"},
		Branches: []plan.Branch{
			{Clauses: []plan.Clause{plan.Attr{Entity: "e", Attribute: "dog"}}, Output: []plan.Term{plan.C(str("dog"))}},
			{Clauses: []plan.Clause{plan.Attr{Entity: "e", Attribute: "cat"}}, Output: []plan.Term{plan.C(str("cat"))}},
			{Output: []plan.Term{plan.C(str("none"))}},
		},
	}
	res := runChoose(t, New(), view, c)

	assert.Equal(t, map[string]int{
		outer("A").Key(res.Outer): 0,
		outer("B").Key(res.Outer): 1,
		outer("C").Key(res.Outer): 2,
	}, res.Coverage)

	perGroup := make(map[string]int)
	for _, row := range res.Rows.Rows() {
		perGroup[row.Binding.Key(res.Outer)]++
	}
	for key, n := range perGroup {
		assert.Equal(t, 1, n, "group %s", key)
	}
}
