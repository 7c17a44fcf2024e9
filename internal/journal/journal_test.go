package journal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// openTestJournal opens a journal in a temporary directory.
func openTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j, path
}

var (
	personTag = ir.T("p1", "tag", ir.IRString("person"))
	dogTag    = ir.T("d1", "tag", ir.IRString("dog"))
	ownsDog   = ir.T("d1", "owner", ir.IRRef("p1"))
	derived   = ir.T("x1", "tag", ir.IRString("dog-owner"))
)

func TestOpen_CreatesDatabase(t *testing.T) {
	_, path := openTestJournal(t)

	_, err := os.Stat(path)
	require.NoError(t, err, "database file was created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := 0; i < 3; i++ {
		j, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		require.NoError(t, j.Close())
	}
}

func TestOpen_SetsPragmasAndVersion(t *testing.T) {
	j, _ := openTestJournal(t)

	var mode string
	require.NoError(t, j.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, j.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestJournal_AppendAndRead(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()

	entry := Entry{
		Round:   1,
		Inputs:  []ir.Delta{{Triple: personTag, Count: 1}, {Triple: dogTag, Count: 1}, {Triple: ownsDog, Count: 2}},
		Outputs: []ir.Delta{{Triple: derived, Count: 2}},
	}
	require.NoError(t, j.Append(ctx, entry))

	rounds, err := j.Rounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, rounds)

	inputs, err := j.Inputs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entry.Inputs, inputs, "order and ref values survive")

	outputs, err := j.Outputs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entry.Outputs, outputs)
}

func TestJournal_AppendIsIdempotentPerRound(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, Entry{Round: 1, Inputs: []ir.Delta{{Triple: personTag, Count: 1}}}))
	require.NoError(t, j.Append(ctx, Entry{Round: 1, Inputs: []ir.Delta{{Triple: dogTag, Count: 1}}}))

	inputs, err := j.Inputs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []ir.Delta{{Triple: personTag, Count: 1}}, inputs, "first write wins")
}

func TestJournal_AppendRollsBackOnBadDelta(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()

	err := j.Append(ctx, Entry{
		Round:  1,
		Inputs: []ir.Delta{{Triple: personTag, Count: 1}, {Triple: dogTag, Count: 0}},
	})
	require.Error(t, err)

	rounds, err := j.Rounds(ctx)
	require.NoError(t, err)
	assert.Empty(t, rounds, "failed append leaves no round behind")
}

func TestJournal_EmptyReadsAreNotNil(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()

	rounds, err := j.Rounds(ctx)
	require.NoError(t, err)
	assert.NotNil(t, rounds)

	outputs, err := j.Outputs(ctx, 9)
	require.NoError(t, err)
	assert.NotNil(t, outputs)

	last, err := j.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}

func TestJournal_ReplayInRoundOrder(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()

	// Appended out of order; replay still ascends.
	require.NoError(t, j.Append(ctx, Entry{Round: 2, Inputs: []ir.Delta{{Triple: personTag, Count: -1}}}))
	require.NoError(t, j.Append(ctx, Entry{Round: 1, Inputs: []ir.Delta{{Triple: personTag, Count: 1}}}))

	var seen []int64
	require.NoError(t, j.Replay(ctx, func(e Entry) error {
		seen = append(seen, e.Round)
		require.Len(t, e.Inputs, 1)
		return nil
	}))
	assert.Equal(t, []int64{1, 2}, seen)

	last, err := j.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)
}

func TestJournal_ReplayStopsOnError(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()
	require.NoError(t, j.Append(ctx, Entry{Round: 1}))
	require.NoError(t, j.Append(ctx, Entry{Round: 2}))

	boom := errors.New("boom")
	calls := 0
	err := j.Replay(ctx, func(Entry) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestJournal_AuditSumsOutputs(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()

	other := ir.T("x2", "tag", ir.IRString("dog-owner"))
	require.NoError(t, j.Append(ctx, Entry{Round: 1, Outputs: []ir.Delta{{Triple: derived, Count: 2}, {Triple: other, Count: 1}}}))
	require.NoError(t, j.Append(ctx, Entry{Round: 2, Outputs: []ir.Delta{{Triple: other, Count: -1}, {Triple: derived, Count: -1}}}))
	require.NoError(t, j.Append(ctx, Entry{Round: 3, Inputs: []ir.Delta{{Triple: derived, Count: 5}}}))

	totals, err := j.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.Delta{{Triple: derived, Count: 1}}, totals, "inputs are not audited and zero totals drop")
}

func TestJournal_CloseTwice(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
}
