package eval

import (
	"errors"
	"fmt"

	"github.com/jjedMoriAnktah/Eve/internal/factstore"
)

// RoundErrorCode categorizes aborted rounds.
type RoundErrorCode string

const (
	// ErrCodeInvalidDelta indicates a malformed input delta.
	ErrCodeInvalidDelta RoundErrorCode = "INVALID_DELTA"

	// ErrCodeNegativeSupport indicates the deltas would drive a fact's
	// support below zero.
	ErrCodeNegativeSupport RoundErrorCode = "NEGATIVE_SUPPORT"

	// ErrCodeEvaluation indicates a block failed in a way that is not local
	// to a row, such as an identifier collision.
	ErrCodeEvaluation RoundErrorCode = "EVALUATION_FAILED"

	// ErrCodeJournal indicates the round could not be recorded.
	ErrCodeJournal RoundErrorCode = "JOURNAL_FAILED"

	// ErrCodeCanceled indicates the context was done before the round began.
	ErrCodeCanceled RoundErrorCode = "CANCELED"
)

// RoundError reports an aborted round. The fact store, derived view and
// identity live table are unchanged when a round returns one.
type RoundError struct {
	Code  RoundErrorCode
	Round int64
	Block string
	Err   error
}

func (e *RoundError) Error() string {
	if e.Block != "" {
		return fmt.Sprintf("%s: round %d: block %q: %v", e.Code, e.Round, e.Block, e.Err)
	}
	return fmt.Sprintf("%s: round %d: %v", e.Code, e.Round, e.Err)
}

func (e *RoundError) Unwrap() error {
	return e.Err
}

// IsNegativeSupport reports whether err aborted a round for driving support
// below zero.
func IsNegativeSupport(err error) bool {
	var re *RoundError
	if errors.As(err, &re) && re.Code == ErrCodeNegativeSupport {
		return true
	}
	return factstore.IsNegativeSupport(err)
}

func roundError(code RoundErrorCode, round int64, err error) *RoundError {
	return &RoundError{Code: code, Round: round, Err: err}
}
