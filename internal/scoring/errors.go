package scoring

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers missing criteria, groups, records, details and
	// semesters. Batch callers log and skip it; synchronous callers surface it.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOperation covers editing or deleting an auto line and awarding
	// with no active semester.
	ErrInvalidOperation = errors.New("invalid operation")
)

// ValidationError rejects malformed or out-of-range input before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
