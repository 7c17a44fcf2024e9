package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjedMoriAnktah/Eve/internal/binding"
	"github.com/jjedMoriAnktah/Eve/internal/eval"
	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

func TestScripts_Golden(t *testing.T) {
	scripts, err := filepath.Glob("testdata/scripts/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, scripts)

	for _, path := range scripts {
		t.Run(filepath.Base(path), func(t *testing.T) {
			RunWithGolden(t, path)
		})
	}
}

func TestScripts_SameTranscriptWithParallelism(t *testing.T) {
	s, err := LoadScript("testdata/scripts/fan_out.yaml")
	require.NoError(t, err)

	one, err := Run(context.Background(), s, eval.WithParallelism(1))
	require.NoError(t, err)
	many, err := Run(context.Background(), s, eval.WithParallelism(8), eval.WithChooseShards(4))
	require.NoError(t, err)
	assert.Equal(t, one.Text, many.Text)
	assert.Len(t, many.Outputs, 2)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScript_ResolvesPlanRelativeToScript(t *testing.T) {
	s, err := LoadScript("testdata/scripts/static_branch.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "plans", "static.cue"), s.Plan)
	assert.Equal(t, "static-branch", s.Name)
	require.Len(t, s.Rounds, 2)

	deltas, err := s.Rounds[1].Deltas()
	require.NoError(t, err)
	assert.Equal(t, []ir.Delta{ir.Remove("A", "tag", ir.IRString("input"))}, deltas)
}

func TestLoadScript_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", "name: x\nplan: p.cue\nrounds: [{}]\nbogus: 1\n"},
		{"missing name", "plan: p.cue\nrounds: [{}]\n"},
		{"missing plan", "name: x\nrounds: [{}]\n"},
		{"no rounds", "name: x\nplan: p.cue\n"},
		{"float value", "name: x\nplan: p.cue\nrounds:\n  - add: [{e: A, a: n, v: 1.5}]\n"},
		{"null value", "name: x\nplan: p.cue\nrounds:\n  - add: [{e: A, a: n}]\n"},
		{"negative count", "name: x\nplan: p.cue\nrounds:\n  - add: [{e: A, a: n, v: 1, n: -2}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScript(writeScript(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestRound_DeltasWithCounts(t *testing.T) {
	r := Round{
		Add:    []Fact{{Entity: "A", Attribute: "owner", Value: map[string]any{"ref": "P"}, Count: 2}},
		Remove: []Fact{{Entity: "A", Attribute: "n", Value: 3}},
	}
	deltas, err := r.Deltas()
	require.NoError(t, err)
	assert.Equal(t, []ir.Delta{
		{Triple: ir.T("A", "owner", ir.IRRef("P")), Count: 2},
		{Triple: ir.T("A", "n", ir.IRInt(3)), Count: -1},
	}, deltas)
}

func TestLoadPlan_RejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.txt")
	require.NoError(t, os.WriteFile(path, []byte("blocks: []"), 0o644))
	_, err := LoadPlan(path)
	assert.Error(t, err)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}

func TestLoadPlan_Directory(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile("testdata/plans/cool.cue")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plan.cue"), append([]byte("package plans\n"), src...), 0o644))

	p, err := LoadPlan(dir)
	require.NoError(t, err)
	require.Len(t, p.Blocks, 1)
	assert.Equal(t, "cool", p.Blocks[0].Name)
}

func TestFormatOutput(t *testing.T) {
	out := &eval.Output{
		Round:  3,
		Inputs: []ir.Delta{ir.Add("A", "dog", ir.IRString("rex"))},
		Removals: []ir.Delta{
			ir.Remove("x2", "tag", ir.IRString("owned")),
			ir.Remove("x1", "owner", ir.IRRef("x2")),
		},
		Additions: []ir.Delta{{Triple: ir.T("A", "n", ir.IRInt(2)), Count: 2}},
		Diagnostics: []binding.Diagnostic{
			{Round: 3, Block: "b", Code: binding.DiagExpression, Message: "division by zero"},
		},
	}
	names := map[ir.EntityID]string{"x1": "r{k=1}", "x2": "s{k=2}"}
	describe := func(id ir.EntityID) string {
		if n, ok := names[id]; ok {
			return n
		}
		return string(id)
	}

	want := "round 3: inputs=1 removed=2 added=1\n" +
		"  -1 r{k=1} owner #s{k=2}\n" +
		"  -1 s{k=2} tag \"owned\"\n" +
		"  +2 A n 2\n" +
		"  ! b EXPR_ERROR: division by zero\n"
	assert.Equal(t, want, FormatOutput(out, describe))
}
