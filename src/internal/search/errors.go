package search

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a malformed request. Callers fail fast and map
	// it to a 4xx at the HTTP boundary.
	ErrValidation = errors.New("invalid search request")

	// ErrIndexUnavailable marks an unreachable or timed-out index engine.
	// It is always surfaced; callers retry with backoff instead of
	// treating it as zero results.
	ErrIndexUnavailable = errors.New("search index unavailable")

	// ErrNotFound marks a lookup for a document the index does not hold.
	ErrNotFound = errors.New("document not found")
)

// BulkItemError reports one failed item of a bulk operation
type BulkItemError struct {
	ID  string `json:"id"`
	Err string `json:"error"`
}

// BulkResult is the structured outcome of a bulk index operation.
// Partial failure is data, not an error: a failing item never aborts
// its siblings.
type BulkResult struct {
	Indexed int             `json:"indexed"`
	Failed  []BulkItemError `json:"failed,omitempty"`
}

// HasFailures reports whether any item failed
func (r *BulkResult) HasFailures() bool {
	return len(r.Failed) > 0
}

func (r *BulkResult) addFailure(id string, err error) {
	r.Failed = append(r.Failed, BulkItemError{ID: id, Err: err.Error()})
}

// validationError wraps a field-level problem under ErrValidation so
// errors.Is(err, ErrValidation) holds.
func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
