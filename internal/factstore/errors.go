package factstore

import (
	"errors"
	"fmt"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// AccountingErrorCode categorizes fact store accounting errors.
type AccountingErrorCode string

const (
	// ErrCodeNegativeSupport indicates a round's deltas would drive a
	// triple's support below zero: the caller retracted something twice.
	ErrCodeNegativeSupport AccountingErrorCode = "NEGATIVE_SUPPORT"

	// ErrCodeInvalidDelta indicates a malformed delta (empty entity or
	// attribute, null value).
	ErrCodeInvalidDelta AccountingErrorCode = "INVALID_DELTA"

	// ErrCodeRoundOrder indicates a round that does not follow the last
	// committed round, or a second round begun while one is in flight.
	ErrCodeRoundOrder AccountingErrorCode = "ROUND_ORDER"
)

// AccountingError reports an inconsistency between the delta stream and the
// store's support counts. It is never clamped or ignored.
type AccountingError struct {
	Code    AccountingErrorCode
	Message string
	Round   int64
	Triple  ir.Triple

	// Support is the committed support before the round.
	Support int64

	// Delta is the round's net change for Triple.
	Delta int64
}

// Error implements the error interface.
func (e *AccountingError) Error() string {
	if e.Triple.Entity != "" {
		return fmt.Sprintf("%s: %s (round=%d, triple=%s)", e.Code, e.Message, e.Round, e.Triple)
	}
	return fmt.Sprintf("%s: %s (round=%d)", e.Code, e.Message, e.Round)
}

// IsNegativeSupport returns true if the error is a negative support error.
// Uses errors.As to handle wrapped errors.
func IsNegativeSupport(err error) bool {
	var ae *AccountingError
	if errors.As(err, &ae) {
		return ae.Code == ErrCodeNegativeSupport
	}
	return false
}

// NewNegativeSupportError creates an AccountingError for a triple whose
// support would drop below zero.
func NewNegativeSupportError(round int64, t ir.Triple, support, delta int64) *AccountingError {
	return &AccountingError{
		Code:    ErrCodeNegativeSupport,
		Message: fmt.Sprintf("support would become %d (committed %d, delta %d)", support+delta, support, delta),
		Round:   round,
		Triple:  t,
		Support: support,
		Delta:   delta,
	}
}
