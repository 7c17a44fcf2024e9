package factstore

import (
	"fmt"
	"slices"
	"sync"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// Store holds input facts with signed multiplicity and the derived view of
// the last committed round.
//
// Writes happen only in Txn.Commit, the single serialization point between
// rounds. Committed indexes are never mutated: Commit builds the next input
// index from a copy and swaps it in, so a View keeps reading the round it was
// taken from while later rounds commit.
type Store struct {
	mu      sync.RWMutex
	base    *Index
	derived *Index
	round   int64 // last committed round
	active  bool  // a Txn is open
}

// New creates an empty store. No round has been committed yet.
func New() *Store {
	return &Store{
		base:    NewIndex(),
		derived: NewIndex(),
	}
}

// NewAt creates an empty store whose last committed round is round, so the
// first transaction runs as round+1.
func NewAt(round int64) *Store {
	s := New()
	s.round = round
	return s
}

// Round returns the last committed round (0 before the first commit).
func (s *Store) Round() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round
}

// View returns the committed input facts as of the last commit. The view is
// immutable and may be read from any goroutine.
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// Snapshot returns the committed inputs, the derived view and the round they
// belong to, read together so they describe the same commit.
func (s *Store) Snapshot() (inputs, derived *Index, round int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base, s.derived, s.round
}

// Support returns the committed support of an input triple.
func (s *Store) Support(t ir.Triple) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.Support(t)
}

// Derived returns the derived view retained from the last committed round.
// Callers must treat it as read-only.
func (s *Store) Derived() *Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.derived
}

// Begin opens the transaction for the given round. Rounds are strictly
// increasing and only one may be in flight.
func (s *Store) Begin(round int64) (*Txn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return nil, &AccountingError{
			Code:    ErrCodeRoundOrder,
			Message: "a round is already in flight",
			Round:   round,
		}
	}
	if round <= s.round {
		return nil, &AccountingError{
			Code:    ErrCodeRoundOrder,
			Message: fmt.Sprintf("round must follow committed round %d", s.round),
			Round:   round,
		}
	}
	s.active = true
	return &Txn{store: s, round: round, base: s.base, pending: NewIndex()}, nil
}

// Txn stages one round's input deltas. Deltas for the same triple are summed
// before any support changes; nothing is visible to Store readers until
// Commit.
type Txn struct {
	store   *Store
	round   int64
	base    *Index // committed inputs at Begin
	pending *Index
	done    bool
}

// Round returns the transaction's round.
func (tx *Txn) Round() int64 {
	return tx.round
}

// ApplyDelta stages a signed change for (entity, attribute, value).
// A zero count is ignored.
func (tx *Txn) ApplyDelta(entity ir.EntityID, attribute string, value ir.IRValue, count int64) error {
	if tx.done {
		return fmt.Errorf("apply delta: transaction for round %d already finished", tx.round)
	}
	t := ir.T(entity, attribute, value)
	if err := t.Validate(); err != nil {
		return &AccountingError{
			Code:    ErrCodeInvalidDelta,
			Message: err.Error(),
			Round:   tx.round,
		}
	}
	tx.pending.Add(t, count, tx.round)
	return nil
}

// Apply stages a batch of deltas.
func (tx *Txn) Apply(deltas []ir.Delta) error {
	for _, d := range deltas {
		if err := tx.ApplyDelta(d.Entity, d.Attribute, d.Value, d.Count); err != nil {
			return err
		}
	}
	return nil
}

// View returns committed facts with this round's deltas applied.
func (tx *Txn) View() View {
	return &stagedView{base: tx.base, pending: tx.pending}
}

// Changes returns the round's net non-zero deltas, sorted.
func (tx *Txn) Changes() []ir.Delta {
	var out []ir.Delta
	for t, n := range tx.pending.Supports() {
		if n != 0 {
			out = append(out, ir.Delta{Triple: t, Count: n})
		}
	}
	slices.SortFunc(out, func(a, b ir.Delta) int {
		return ir.CompareTriples(a.Triple, b.Triple)
	})
	return out
}

// Check verifies that no triple's support would become negative.
// The first offending triple in sorted order is reported.
func (tx *Txn) Check() error {
	for _, d := range tx.Changes() {
		committed := tx.base.Support(d.Triple)
		if committed+d.Count < 0 {
			return NewNegativeSupportError(tx.round, d.Triple, committed, d.Count)
		}
	}
	return nil
}

// Commit merges the staged deltas into the store and retains derived as the
// round's derived view (nil keeps the previous one). Tombstones older than
// the previous round are compacted. On error the store is unchanged.
func (tx *Txn) Commit(derived *Index) error {
	if tx.done {
		return fmt.Errorf("commit: transaction for round %d already finished", tx.round)
	}
	if err := tx.Check(); err != nil {
		return err
	}

	next := tx.base.Clone()
	next.Merge(tx.pending, tx.round)
	next.Compact(tx.round - 1)

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.base = next
	if derived != nil {
		s.derived = derived
	}
	s.round = tx.round
	s.active = false
	tx.done = true
	return nil
}

// Discard abandons the transaction. Safe to call after Commit.
func (tx *Txn) Discard() {
	if tx.done {
		return
	}
	tx.store.mu.Lock()
	tx.store.active = false
	tx.store.mu.Unlock()
	tx.done = true
}
