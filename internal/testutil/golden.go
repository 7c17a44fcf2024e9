package testutil

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/jjedMoriAnktah/Eve/internal/eval"
)

// AssertGolden compares data against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/testutil -update
func AssertGolden(t *testing.T, name string, data []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

// RunWithGolden loads the script at path, runs it and compares its
// transcript against the golden file named after the script.
func RunWithGolden(t *testing.T, path string, opts ...eval.Option) *Transcript {
	t.Helper()
	s, err := LoadScript(path)
	require.NoError(t, err)

	tr, err := Run(context.Background(), s, opts...)
	require.NoError(t, err)

	AssertGolden(t, s.Name, []byte(tr.Text))
	return tr
}
