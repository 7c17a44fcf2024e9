package journal

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// Rounds returns the recorded round numbers in ascending order.
// Returns an empty slice (not nil) for an empty journal.
func (j *Journal) Rounds(ctx context.Context) ([]int64, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT round FROM rounds ORDER BY round ASC`)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	rounds := []int64{}
	for rows.Next() {
		var r int64
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rounds: %w", err)
	}
	return rounds, nil
}

// Last returns the highest recorded round, 0 for an empty journal.
func (j *Journal) Last(ctx context.Context) (int64, error) {
	var last sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT MAX(round) FROM rounds`).Scan(&last); err != nil {
		return 0, fmt.Errorf("query last round: %w", err)
	}
	return last.Int64, nil
}

// Inputs returns the input deltas of a round in the order they were
// appended.
func (j *Journal) Inputs(ctx context.Context, round int64) ([]ir.Delta, error) {
	return j.readDeltas(ctx, round, kindInput)
}

// Outputs returns the derived deltas of a round in the order they were
// appended.
func (j *Journal) Outputs(ctx context.Context, round int64) ([]ir.Delta, error) {
	return j.readDeltas(ctx, round, kindOutput)
}

func (j *Journal) readDeltas(ctx context.Context, round int64, kind string) ([]ir.Delta, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT entity, attribute, value, count
		FROM deltas
		WHERE round = ? AND kind = ?
		ORDER BY seq ASC
	`, round, kind)
	if err != nil {
		return nil, fmt.Errorf("query %s deltas: %w", kind, err)
	}
	defer rows.Close()

	deltas := []ir.Delta{}
	for rows.Next() {
		d, err := scanDelta(rows)
		if err != nil {
			return nil, err
		}
		deltas = append(deltas, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s deltas: %w", kind, err)
	}
	return deltas, nil
}

func scanDelta(rows *sql.Rows) (ir.Delta, error) {
	var (
		entity, attribute, value string
		count                    int64
	)
	if err := rows.Scan(&entity, &attribute, &value, &count); err != nil {
		return ir.Delta{}, fmt.Errorf("scan delta: %w", err)
	}
	v, err := ir.UnmarshalIRValue([]byte(value))
	if err != nil {
		return ir.Delta{}, fmt.Errorf("decode value of %s.%s: %w", entity, attribute, err)
	}
	return ir.Delta{Triple: ir.T(ir.EntityID(entity), attribute, v), Count: count}, nil
}

// Replay calls fn for every recorded round in ascending order. It stops at
// the first error fn returns.
func (j *Journal) Replay(ctx context.Context, fn func(Entry) error) error {
	rounds, err := j.Rounds(ctx)
	if err != nil {
		return err
	}
	for _, r := range rounds {
		if err := ctx.Err(); err != nil {
			return err
		}
		inputs, err := j.Inputs(ctx, r)
		if err != nil {
			return err
		}
		outputs, err := j.Outputs(ctx, r)
		if err != nil {
			return err
		}
		if err := fn(Entry{Round: r, Inputs: inputs, Outputs: outputs}); err != nil {
			return fmt.Errorf("replay round %d: %w", r, err)
		}
	}
	return nil
}

// Audit sums every recorded output delta per triple and returns the
// non-zero totals sorted by triple. For a journal written by one engine from
// its first round, the totals equal that engine's derived supports.
func (j *Journal) Audit(ctx context.Context) ([]ir.Delta, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT entity, attribute, value, SUM(count)
		FROM deltas
		WHERE kind = ?
		GROUP BY triple_hash
		HAVING SUM(count) != 0
	`, kindOutput)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	totals := []ir.Delta{}
	for rows.Next() {
		d, err := scanDelta(rows)
		if err != nil {
			return nil, err
		}
		totals = append(totals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit: %w", err)
	}

	slices.SortFunc(totals, func(a, b ir.Delta) int {
		return ir.CompareTriples(a.Triple, b.Triple)
	})
	return totals, nil
}
