package eval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jjedMoriAnktah/Eve/internal/binding"
	"github.com/jjedMoriAnktah/Eve/internal/choose"
	"github.com/jjedMoriAnktah/Eve/internal/factstore"
	"github.com/jjedMoriAnktah/Eve/internal/identity"
	"github.com/jjedMoriAnktah/Eve/internal/ir"
	"github.com/jjedMoriAnktah/Eve/internal/journal"
	"github.com/jjedMoriAnktah/Eve/internal/plan"
)

// DefaultParallelism bounds how many blocks of one layer run at once.
const DefaultParallelism = 4

// Engine runs rounds of a prepared plan against a fact store.
//
// Each round applies a batch of input deltas, re-derives every block in
// dependency order from the staged inputs, and commits only if nothing
// aborted. The reported output reconciles the previous derived view with
// the new one.
//
// Thread-safety model:
//   - Round(): safe from any goroutine; rounds are serialized
//   - read accessors: safe from any goroutine, observe the last commit
//   - views returned by View and Derived are immutable snapshots and stay
//     valid across later rounds
type Engine struct {
	mu sync.Mutex // held for the whole of a round

	store    *factstore.Store
	prepared *plan.Prepared
	binder   *binding.Engine
	ids      *identity.Assigner
	clock    *Clock
	journal  journal.Writer
	logger   *slog.Logger

	parallelism int
	shards      int
	cacheSize   int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithParallelism sets how many blocks of one layer evaluate concurrently.
// Values below 1 are treated as 1.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		e.parallelism = max(n, 1)
	}
}

// WithChooseShards sets how many shards each choose branch splits its
// residual rows into.
func WithChooseShards(n int) Option {
	return func(e *Engine) {
		e.shards = n
	}
}

// WithIdentityCacheSize sets the identity key cache size.
func WithIdentityCacheSize(n int) Option {
	return func(e *Engine) {
		e.cacheSize = n
	}
}

// WithJournal records every committed round in w before it commits.
func WithJournal(w journal.Writer) Option {
	return func(e *Engine) {
		e.journal = w
	}
}

// WithStartRound numbers the first round start+1.
func WithStartRound(start int64) Option {
	return func(e *Engine) {
		e.clock = NewClockAt(start)
	}
}

// New validates p and builds an engine for it. Validation failures are
// returned as plan.ValidationError values aggregated with multierr; an arity
// mismatch in a choose is one of them.
func New(p *plan.Plan, opts ...Option) (*Engine, error) {
	e := &Engine{
		clock:       NewClock(),
		logger:      slog.Default(),
		parallelism: DefaultParallelism,
		shards:      1,
		cacheSize:   identity.DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}

	prepared, err := plan.Prepare(p)
	if err != nil {
		return nil, err
	}
	binder, err := binding.New(prepared, binding.WithChooser(choose.New(choose.WithShards(e.shards))))
	if err != nil {
		return nil, err
	}
	ids, err := identity.New(identity.WithCacheSize(e.cacheSize))
	if err != nil {
		return nil, err
	}

	e.prepared = prepared
	e.binder = binder
	e.ids = ids
	e.store = factstore.NewAt(e.clock.Current())
	return e, nil
}

// Round applies deltas as the next round and returns what changed in the
// derived view. An empty batch is a valid round.
//
// On error the round is aborted: the fact store, derived view, identity live
// table and clock are as they were before the call. The error is a
// *RoundError.
func (e *Engine) Round(ctx context.Context, deltas []ir.Delta) (*Output, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	round := e.clock.Pending()
	if err := ctx.Err(); err != nil {
		return nil, roundError(ErrCodeCanceled, round, err)
	}

	e.logger.Debug("round starting",
		"round", round,
		"deltas", len(deltas),
	)

	out, liveIDs, err := e.run(ctx, round, deltas)
	if err != nil {
		e.logger.Error("round aborted",
			"round", round,
			"error", err,
		)
		return nil, err
	}

	e.clock.Advance()
	e.ids.Retain(liveIDs)

	for _, d := range out.Diagnostics {
		e.logger.Warn("row dropped",
			"round", d.Round,
			"block", d.Block,
			"code", d.Code,
			"message", d.Message,
		)
	}
	e.logger.Debug("round committed",
		"round", round,
		"inputs", len(out.Inputs),
		"additions", len(out.Additions),
		"removals", len(out.Removals),
		"live", len(liveIDs),
	)
	return out, nil
}

func (e *Engine) run(ctx context.Context, round int64, deltas []ir.Delta) (*Output, []ir.EntityID, error) {
	tx, err := e.store.Begin(round)
	if err != nil {
		return nil, nil, roundError(ErrCodeInvalidDelta, round, err)
	}
	defer tx.Discard()

	if err := tx.Apply(deltas); err != nil {
		return nil, nil, roundError(ErrCodeInvalidDelta, round, err)
	}
	if err := tx.Check(); err != nil {
		return nil, nil, roundError(ErrCodeNegativeSupport, round, err)
	}

	rc := binding.NewRound(round, tx.View())
	derived, liveIDs, err := e.derive(ctx, rc, tx.View())
	if err != nil {
		return nil, nil, err
	}

	out := diff(round, e.store.Derived(), derived)
	out.Inputs = tx.Changes()
	out.Diagnostics = rc.Diagnostics()

	if e.journal != nil {
		entry := journal.Entry{Round: round, Inputs: out.Inputs, Outputs: out.Deltas()}
		if err := e.journal.Append(ctx, entry); err != nil {
			return nil, nil, roundError(ErrCodeJournal, round, err)
		}
	}

	if err := tx.Commit(derived); err != nil {
		return nil, nil, roundError(ErrCodeNegativeSupport, round, err)
	}
	return out, liveIDs, nil
}

// derive evaluates every layer of the plan. Blocks of one layer read the
// inputs overlaid with everything earlier layers derived this round.
func (e *Engine) derive(ctx context.Context, rc *binding.Round, inputs factstore.View) (*factstore.Index, []ir.EntityID, error) {
	derived := factstore.NewIndex()
	var liveIDs []ir.EntityID

	for _, layer := range e.prepared.Layers {
		view := factstore.Overlay(inputs, derived)
		results := make([]*blockResult, len(layer))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.parallelism)
		for i, bi := range layer {
			b := e.prepared.Blocks[bi]
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := e.runBlock(rc.WithView(view).InBlock(b.Name), b)
				if err != nil {
					return &RoundError{Code: ErrCodeEvaluation, Round: rc.Number, Block: b.Name, Err: err}
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			var re *RoundError
			if errors.As(err, &re) {
				return nil, nil, re
			}
			return nil, nil, roundError(ErrCodeCanceled, rc.Number, err)
		}

		// Merge in block order so the index is built deterministically.
		for _, res := range results {
			derived.Merge(res.facts, rc.Number)
			liveIDs = append(liveIDs, res.ids...)
		}
	}

	slices.Sort(liveIDs)
	return derived, slices.Compact(liveIDs), nil
}

// Support returns the committed input support of t.
func (e *Engine) Support(t ir.Triple) int64 {
	return e.store.Support(t)
}

// DerivedSupport returns the committed derived support of t.
func (e *Engine) DerivedSupport(t ir.Triple) int64 {
	return e.store.Derived().Support(t)
}

// View returns the committed inputs overlaid with the committed derived
// facts.
func (e *Engine) View() factstore.View {
	inputs, derived, _ := e.store.Snapshot()
	return factstore.Overlay(inputs, derived)
}

// Derived returns the committed derived facts.
func (e *Engine) Derived() factstore.View {
	return e.store.Derived()
}

// Describe renders a derived identifier by its identity key, or returns it
// unchanged if it is not a known derived identifier.
func (e *Engine) Describe(id ir.EntityID) string {
	return e.ids.Describe(id)
}

// Live reports whether id is supported by the committed derived view.
func (e *Engine) Live(id ir.EntityID) bool {
	return e.ids.Live(id)
}

// Current returns the last committed round.
func (e *Engine) Current() int64 {
	return e.clock.Current()
}

// Plan returns the prepared plan the engine runs.
func (e *Engine) Plan() *plan.Prepared {
	return e.prepared
}

// Stats summarizes the committed state.
type Stats struct {
	Round        int64
	InputFacts   int
	DerivedFacts int
	LiveEntities int
	Blocks       int
	Layers       int
}

func (s Stats) String() string {
	return fmt.Sprintf("round %d: %d input facts, %d derived facts, %d live entities, %d blocks in %d layers",
		s.Round, s.InputFacts, s.DerivedFacts, s.LiveEntities, s.Blocks, s.Layers)
}

// Stats returns a summary of the committed state.
func (e *Engine) Stats() Stats {
	inputs, derived, round := e.store.Snapshot()
	return Stats{
		Round:        round,
		InputFacts:   inputs.Len(),
		DerivedFacts: derived.Len(),
		LiveEntities: e.ids.LiveCount(),
		Blocks:       len(e.prepared.Blocks),
		Layers:       len(e.prepared.Layers),
	}
}
