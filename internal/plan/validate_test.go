package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// dogBlock derives info = "cool" for inputs with a dog, "not cool" otherwise.
func dogBlock() Block {
	return Block{
		Name: "dogs",
		Clauses: []Clause{
			Find{Var: "e", Tag: "input"},
			Choose{
				Results: []string{"info"},
				Branches: []Branch{
					{Clauses: []Clause{Attr{Entity: "e", Attribute: "dog"}}, Output: []Term{C(ir.IRString("cool"))}},
					{Output: []Term{C(ir.IRString("not cool"))}},
				},
			},
		},
		Outputs: []Output{
			Record{
				Tag:     "result",
				Key:     []Field{{Attribute: "person", Value: V("e")}},
				Payload: []Field{{Attribute: "info", Value: V("info")}},
			},
		},
	}
}

func codes(err error) []string {
	var out []string
	for _, ve := range Errors(err) {
		out = append(out, ve.Code)
	}
	return out
}

func TestPrepare_ValidPlan(t *testing.T) {
	p, err := Prepare(&Plan{Blocks: []Block{dogBlock()}})
	require.NoError(t, err)

	ch, ok := p.Blocks[0].Clauses[1].(Choose)
	require.True(t, ok)
	assert.Equal(t, []string{"e"}, ch.Outer)
	assert.Equal(t, [][]int{{0}}, p.Layers)
}

func TestPrepare_DoesNotModifyInput(t *testing.T) {
	in := &Plan{Blocks: []Block{dogBlock()}}
	_, err := Prepare(in)
	require.NoError(t, err)

	assert.Nil(t, in.Blocks[0].Clauses[1].(Choose).Outer)
}

func TestValidate_ArityMismatch(t *testing.T) {
	b := dogBlock()
	ch := b.Clauses[1].(Choose)
	ch.Branches[1].Output = []Term{C(ir.IRString("not")), C(ir.IRString("cool"))}
	b.Clauses[1] = ch

	err := Validate(&Plan{Blocks: []Block{b}})
	require.Error(t, err)
	assert.True(t, IsArityMismatch(err))

	ve := Errors(err)[0]
	assert.Equal(t, "dogs", ve.Block)
	assert.Equal(t, "clauses[1].choose.branches[1].output", ve.Field)
	assert.Contains(t, ve.Error(), "[E201]")
}

func TestValidate_UnconditionalBranchRules(t *testing.T) {
	cond := Branch{Clauses: []Clause{Attr{Entity: "e", Attribute: "dog"}}, Output: []Term{C(ir.IRInt(1))}}
	fallback := Branch{Output: []Term{C(ir.IRInt(2))}}

	tests := []struct {
		name     string
		branches []Branch
		want     []string
	}{
		{"fallback last", []Branch{cond, fallback}, nil},
		{"fallback first", []Branch{fallback, cond}, []string{ErrUnconditionalNotLast}},
		{"two fallbacks", []Branch{cond, fallback, fallback}, []string{ErrUnconditionalNotLast, ErrMultipleUnconditional}},
		{"no branches", nil, []string{ErrEmptyChoose}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Block{
				Name: "b",
				Clauses: []Clause{
					Find{Var: "e", Tag: "input"},
					Choose{Results: []string{"x"}, Branches: tt.branches},
				},
			}
			err := Validate(&Plan{Blocks: []Block{b}})
			assert.Equal(t, tt.want, codes(err))
		})
	}
}

func TestValidate_Variables(t *testing.T) {
	tests := []struct {
		name    string
		clauses []Clause
		outputs []Output
		want    []string
	}{
		{
			name:    "output reads unbound variable",
			clauses: []Clause{Find{Var: "e", Tag: "input"}},
			outputs: []Output{Add{Entity: "e", Attribute: "x", Value: V("nope")}},
			want:    []string{ErrUnboundVariable},
		},
		{
			name:    "equality binds one side",
			clauses: []Clause{Find{Var: "e", Tag: "input"}, Compare{Left: V("n"), Op: OpEq, Right: C(ir.IRInt(1))}},
			outputs: []Output{Add{Entity: "e", Attribute: "x", Value: V("n")}},
		},
		{
			name:    "equality with both sides unbound",
			clauses: []Clause{Compare{Left: V("a"), Op: OpEq, Right: V("b")}},
			want:    []string{ErrUnboundComparison},
		},
		{
			name:    "inequality needs bound sides",
			clauses: []Clause{Find{Var: "e", Tag: "input"}, Compare{Left: V("e"), Op: OpNe, Right: V("f")}},
			want:    []string{ErrUnboundVariable},
		},
		{
			name:    "unknown operator",
			clauses: []Clause{Find{Var: "e", Tag: "input"}, Compare{Left: V("e"), Op: "<", Right: V("e")}},
			want:    []string{ErrInvalidOperator},
		},
		{
			name:    "apply rebinding",
			clauses: []Clause{Find{Var: "e", Tag: "input"}, Apply{Var: "e", Expr: "1"}},
			want:    []string{ErrRebound},
		},
		{
			name: "result rebinding",
			clauses: []Clause{
				Find{Var: "e", Tag: "input"},
				Choose{Results: []string{"e"}, Branches: []Branch{{Output: []Term{C(ir.IRInt(1))}}}},
			},
			want: []string{ErrRebound},
		},
		{
			name: "branch variables stay inside the branch",
			clauses: []Clause{
				Find{Var: "e", Tag: "input"},
				Choose{Results: []string{"r"}, Branches: []Branch{
					{Clauses: []Clause{Attr{Entity: "e", Attribute: "dog", Value: "d"}}, Output: []Term{V("d")}},
					{Output: []Term{C(ir.IRInt(0))}},
				}},
			},
			outputs: []Output{Add{Entity: "e", Attribute: "x", Value: V("d")}},
			want:    []string{ErrUnboundVariable},
		},
		{
			name:    "empty find",
			clauses: []Clause{Find{}},
			want:    []string{ErrEmptyName, ErrEmptyName},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&Plan{Blocks: []Block{{Name: "b", Clauses: tt.clauses, Outputs: tt.outputs}}})
			assert.Equal(t, tt.want, codes(err))
		})
	}
}

func TestValidate_Records(t *testing.T) {
	find := []Clause{Find{Var: "e", Tag: "input"}}

	tests := []struct {
		name   string
		record Record
		want   []string
	}{
		{"no key", Record{Tag: "r", Payload: []Field{{Attribute: "a", Value: V("e")}}}, []string{ErrMissingIdentityKey}},
		{"no tag", Record{Key: []Field{{Attribute: "a", Value: V("e")}}}, []string{ErrEmptyName}},
		{
			"duplicate attribute across key and payload",
			Record{Tag: "r", Key: []Field{{Attribute: "a", Value: V("e")}}, Payload: []Field{{Attribute: "a", Value: C(ir.IRInt(1))}}},
			[]string{ErrDuplicateField},
		},
		{"reserved tag attribute", Record{Tag: "r", Key: []Field{{Attribute: "tag", Value: V("e")}}}, []string{ErrDuplicateField}},
		{"empty term", Record{Tag: "r", Key: []Field{{Attribute: "a"}}}, []string{ErrEmptyTerm}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&Plan{Blocks: []Block{{Name: "b", Clauses: find, Outputs: []Output{tt.record}}}})
			assert.Equal(t, tt.want, codes(err))
		})
	}
}

func TestValidate_BlockNames(t *testing.T) {
	err := Validate(&Plan{Blocks: []Block{{Name: "a"}, {Name: "a"}, {}}})
	assert.Equal(t, []string{ErrDuplicateBlock, ErrEmptyName}, codes(err))
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	b := dogBlock()
	b.Outputs = append(b.Outputs, Record{Tag: "x"}, Add{Entity: "missing", Attribute: "a", Value: V("info")})

	err := Validate(&Plan{Blocks: []Block{b}})
	assert.Equal(t, []string{ErrMissingIdentityKey, ErrUnboundVariable}, codes(err))
}

func TestPrepare_ApplyScope(t *testing.T) {
	b := Block{
		Name: "b",
		Clauses: []Clause{
			Find{Var: "e", Tag: "input"},
			Attr{Entity: "e", Attribute: "n", Value: "n"},
			Apply{Var: "m", Expr: "n + 1"},
		},
	}
	p, err := Prepare(&Plan{Blocks: []Block{b}})
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "n"}, p.Blocks[0].Clauses[2].(Apply).Scope)
}

func TestPrepare_NilPlan(t *testing.T) {
	_, err := Prepare(nil)
	assert.Error(t, err)
}
