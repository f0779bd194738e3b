package repositories

import "fmt"

// StoreError is the RepositoryError used by non-Firestore stores such as Redis and the in-process fallbacks.
type StoreError struct {
	Op          string
	NotFound    bool
	Unavailable bool
	Err         error
}

// NewNotFoundError reports a missing record.
func NewNotFoundError(op string) *StoreError {
	return &StoreError{Op: op, NotFound: true}
}

// NewUnavailableError reports a backend failure.
func NewUnavailableError(op string, err error) *StoreError {
	return &StoreError{Op: op, Unavailable: true, Err: err}
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	switch {
	case e.NotFound:
		return fmt.Sprintf("%s: not found", e.Op)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": store error"
	}
}

// Unwrap exposes the backend error.
func (e *StoreError) Unwrap() error { return e.Err }

// IsNotFound implements RepositoryError.
func (e *StoreError) IsNotFound() bool { return e.NotFound }

// IsConflict implements RepositoryError.
func (e *StoreError) IsConflict() bool { return false }

// IsUnavailable implements RepositoryError.
func (e *StoreError) IsUnavailable() bool { return e.Unavailable }
