package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

func TestPrepare_LayersFollowDependencies(t *testing.T) {
	blocks := []Block{
		{
			Name:    "display",
			Clauses: []Clause{Find{Var: "p", Tag: "person"}, Attr{Entity: "p", Attribute: "name", Value: "n"}},
			Outputs: []Output{Add{Entity: "p", Attribute: "displayName", Value: V("n")}},
		},
		{
			Name:    "greet",
			Clauses: []Clause{Find{Var: "p", Tag: "person"}, Attr{Entity: "p", Attribute: "displayName", Value: "d"}},
			Outputs: []Output{Record{Tag: "greeting", Key: []Field{{Attribute: "person", Value: V("p")}}, Payload: []Field{{Attribute: "text", Value: V("d")}}}},
		},
		{
			Name:    "seen",
			Clauses: []Clause{Find{Var: "g", Tag: "greeting"}},
			Outputs: []Output{Record{Tag: "seen", Key: []Field{{Attribute: "greeting", Value: V("g")}}}},
		},
		{
			Name:    "independent",
			Clauses: []Clause{Find{Var: "x", Tag: "input"}},
			Outputs: []Output{Record{Tag: "out", Key: []Field{{Attribute: "x", Value: V("x")}}}},
		},
	}

	p, err := Prepare(&Plan{Blocks: blocks})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 3}, {1}, {2}}, p.Layers)
}

func TestPrepare_CycleRejected(t *testing.T) {
	blocks := []Block{
		{
			Name:    "a",
			Clauses: []Clause{Find{Var: "x", Tag: "a"}},
			Outputs: []Output{Record{Tag: "b", Key: []Field{{Attribute: "x", Value: V("x")}}}},
		},
		{
			Name:    "b",
			Clauses: []Clause{Find{Var: "y", Tag: "b"}},
			Outputs: []Output{Record{Tag: "a", Key: []Field{{Attribute: "y", Value: V("y")}}}},
		},
	}

	_, err := Prepare(&Plan{Blocks: blocks})
	require.Error(t, err)
	require.True(t, HasCode(err, ErrCyclicDependency))
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestPrepare_SelfLoopRejected(t *testing.T) {
	b := Block{
		Name:    "scan",
		Clauses: []Clause{Lookup{Entity: "e", Attribute: "a", Value: "v"}},
		Outputs: []Output{Add{Entity: "e", Attribute: "seen", Value: C(ir.IRBool(true))}},
	}

	_, err := Prepare(&Plan{Blocks: []Block{b}})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCyclicDependency))
	assert.Contains(t, err.Error(), "scan -> scan")
}

func TestPrepare_AddedTagFeedsFinders(t *testing.T) {
	blocks := []Block{
		{
			Name:    "vip",
			Clauses: []Clause{Find{Var: "p", Tag: "vip"}},
			Outputs: []Output{Record{Tag: "badge", Key: []Field{{Attribute: "owner", Value: V("p")}}}},
		},
		{
			Name:    "promote",
			Clauses: []Clause{Find{Var: "p", Tag: "person"}, Attr{Entity: "p", Attribute: "score"}},
			Outputs: []Output{Add{Entity: "p", Attribute: ir.TagAttribute, Value: C(ir.IRString("vip"))}},
		},
	}

	p, err := Prepare(&Plan{Blocks: blocks})
	require.NoError(t, err, "tagging a person vip does not feed back into the person finder")
	assert.Equal(t, [][]int{{1}, {0}}, p.Layers)
}

func TestFactShape_Overlaps(t *testing.T) {
	tests := []struct {
		a, b factShape
		want bool
	}{
		{tagShape("a", "a"), tagShape("a", "a"), true},
		{tagShape("a", "a"), tagShape("", "a"), true},
		{tagShape("a", "a"), tagShape("a", "b"), false},
		{factShape{class: "a", attribute: anyAttribute}, factShape{class: "a", attribute: "x"}, true},
		{factShape{class: "a", attribute: "x"}, factShape{class: "b", attribute: "x"}, false},
		{factShape{attribute: "x"}, factShape{class: "b", attribute: "x"}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.a.overlaps(tt.b), "%v vs %v", tt.a, tt.b)
		assert.Equal(t, tt.want, tt.b.overlaps(tt.a), "%v vs %v", tt.b, tt.a)
	}
}
