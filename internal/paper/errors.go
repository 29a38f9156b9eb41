package paper

import (
	"errors"
	"fmt"
)

// Errors returned by Tree mutation.
var (
	// ErrDuplicatePaper indicates a paper with the same ID is already in the tree.
	ErrDuplicatePaper = errors.New("paper already in tree")

	// ErrDuplicateRoot indicates a second depth-0 paper was offered.
	ErrDuplicateRoot = errors.New("tree already has a root")

	// ErrTreeFrozen indicates the tree has been handed out and is read-only.
	ErrTreeFrozen = errors.New("tree is read-only")
)

// ValidationError reports malformed input for a paper record.
type ValidationError struct {
	Field   string
	Message string
	PaperID string // For context when the identifier itself is valid
}

func (e *ValidationError) Error() string {
	if e.PaperID != "" {
		return fmt.Sprintf("invalid paper %s: %s: %s", e.PaperID, e.Field, e.Message)
	}
	return fmt.Sprintf("invalid paper: %s: %s", e.Field, e.Message)
}

// IsValidationError returns true if err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
