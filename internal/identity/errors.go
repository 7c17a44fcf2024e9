package identity

import (
	"errors"
	"fmt"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// KeyViolation reports a record whose bindings lack a usable identity key.
// It is local to the record row: the row is skipped and evaluation goes on.
type KeyViolation struct {
	Tag       string
	Attribute string
	Reason    string
}

func (e *KeyViolation) Error() string {
	if e.Attribute != "" {
		return fmt.Sprintf("identity key of %q: attribute %q: %s", e.Tag, e.Attribute, e.Reason)
	}
	return fmt.Sprintf("identity key of %q: %s", e.Tag, e.Reason)
}

// IsKeyViolation reports whether err is a KeyViolation.
func IsKeyViolation(err error) bool {
	var kv *KeyViolation
	return errors.As(err, &kv)
}

// CollisionError reports two distinct keys hashing to one identifier.
type CollisionError struct {
	ID       ir.EntityID
	Existing string
	Incoming string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("identifier %s already assigned to %s, refusing %s", e.ID, e.Existing, e.Incoming)
}
