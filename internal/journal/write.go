package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

const (
	kindInput  = "input"
	kindOutput = "output"
)

// Append records one round in a single transaction.
// Uses ON CONFLICT(round) DO NOTHING for idempotency - appending a round that
// is already recorded is silently ignored and its deltas are not rewritten.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append round %d: %w", e.Round, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO rounds (round, input_count, output_count)
		VALUES (?, ?, ?)
		ON CONFLICT(round) DO NOTHING
	`, e.Round, len(e.Inputs), len(e.Outputs))
	if err != nil {
		return fmt.Errorf("append round %d: %w", e.Round, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append round %d: %w", e.Round, err)
	}
	if n == 0 {
		return nil
	}

	if err := writeDeltas(ctx, tx, e.Round, kindInput, e.Inputs); err != nil {
		return fmt.Errorf("append round %d: %w", e.Round, err)
	}
	if err := writeDeltas(ctx, tx, e.Round, kindOutput, e.Outputs); err != nil {
		return fmt.Errorf("append round %d: %w", e.Round, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append round %d: %w", e.Round, err)
	}
	return nil
}

func writeDeltas(ctx context.Context, tx *sql.Tx, round int64, kind string, deltas []ir.Delta) error {
	if len(deltas) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO deltas
		(round, kind, seq, triple_hash, entity, attribute, value, count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for seq, d := range deltas {
		if d.Count == 0 {
			return fmt.Errorf("%s %d: zero count for %s", kind, seq, d.Triple)
		}
		hash, err := ir.TripleHash(d.Triple)
		if err != nil {
			return fmt.Errorf("%s %d: %w", kind, seq, err)
		}
		value, err := ir.MarshalIRValue(d.Triple.Value)
		if err != nil {
			return fmt.Errorf("%s %d: %w", kind, seq, err)
		}
		if _, err := stmt.ExecContext(ctx,
			round,
			kind,
			seq,
			hash,
			string(d.Triple.Entity),
			d.Triple.Attribute,
			string(value),
			d.Count,
		); err != nil {
			return fmt.Errorf("%s %d: %w", kind, seq, err)
		}
	}
	return nil
}
