package binding

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/jjedMoriAnktah/Eve/internal/factstore"
)

// Diagnostic codes for group-local failures. None of these abort a round.
const (
	DiagExpression   = "EXPR_ERROR"    // apply expression failed for one row
	DiagKeyViolation = "KEY_VIOLATION" // record row lacks an identity key value
	DiagInvalidValue = "INVALID_VALUE" // output value cannot be stored as a fact
)

// Diagnostic records a row that was dropped during evaluation.
type Diagnostic struct {
	Round   int64  `json:"round"`
	Block   string `json:"block"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("round %d: block %q: %s: %s", d.Round, d.Block, d.Code, d.Message)
}

// diagnostics is shared by every scope derived from one Round. Blocks in the
// same layer report concurrently.
type diagnostics struct {
	mu    sync.Mutex
	items []Diagnostic
}

// Round is the context threaded through one round of evaluation: the round
// number, the fact view clauses read from, and the sink for diagnostics.
// Scopes derived with InBlock and WithView share the sink.
type Round struct {
	Number int64
	Block  string
	View   factstore.View

	diags *diagnostics
}

// NewRound creates the context for round number reading view.
func NewRound(number int64, view factstore.View) *Round {
	return &Round{Number: number, View: view, diags: &diagnostics{}}
}

// InBlock returns a scope of rc attributing diagnostics to block.
func (rc *Round) InBlock(block string) *Round {
	scoped := *rc
	scoped.Block = block
	return &scoped
}

// WithView returns a scope of rc reading from view.
func (rc *Round) WithView(view factstore.View) *Round {
	scoped := *rc
	scoped.View = view
	return &scoped
}

// Report records a diagnostic for the current block.
func (rc *Round) Report(code, format string, args ...any) {
	d := Diagnostic{Round: rc.Number, Block: rc.Block, Code: code, Message: fmt.Sprintf(format, args...)}
	rc.diags.mu.Lock()
	rc.diags.items = append(rc.diags.items, d)
	rc.diags.mu.Unlock()
}

// Diagnostics returns every diagnostic reported in the round, ordered by
// block, code and message.
func (rc *Round) Diagnostics() []Diagnostic {
	rc.diags.mu.Lock()
	out := slices.Clone(rc.diags.items)
	rc.diags.mu.Unlock()

	slices.SortFunc(out, func(a, b Diagnostic) int {
		return cmp.Or(
			cmp.Compare(a.Block, b.Block),
			cmp.Compare(a.Code, b.Code),
			cmp.Compare(a.Message, b.Message),
		)
	})
	return out
}
