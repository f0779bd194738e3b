package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errDocumentNotFound = errors.New("document not found")

// Error satisfies repositories.RepositoryError for Firestore failures.
type Error struct {
	op   string
	err  error
	code codes.Code
}

func (e *Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// IsNotFound reports a missing document.
func (e *Error) IsNotFound() bool { return e != nil && e.code == codes.NotFound }

// IsConflict reports a write that lost to a concurrent or pre-existing one.
func (e *Error) IsConflict() bool {
	if e == nil {
		return false
	}
	switch e.code {
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return true
	}
	return false
}

// IsUnavailable reports a transient backend failure.
func (e *Error) IsUnavailable() bool {
	if e == nil {
		return false
	}
	switch e.code {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return true
	}
	return false
}

// NotFound builds a not-found repository error for lookups that do not go through a snapshot Get.
func NotFound(op string) error {
	return &Error{op: op, err: errDocumentNotFound, code: codes.NotFound}
}

// IsAlreadyExists reports whether err came from a Create on an existing document.
func IsAlreadyExists(err error) bool {
	var repoErr *Error
	if errors.As(err, &repoErr) {
		return repoErr.code == codes.AlreadyExists
	}
	return status.Code(err) == codes.AlreadyExists
}

// IsNotFoundStatus reports whether err is a raw or wrapped NotFound.
func IsNotFoundStatus(err error) bool {
	var repoErr *Error
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return status.Code(err) == codes.NotFound
}

// WrapError attaches repository semantics to a Firestore error. Context errors pass through
// and errors that already carry repository semantics keep them.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var repoErr *Error
	if errors.As(err, &repoErr) {
		return err
	}

	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.OK, codes.Unknown:
		// not a gRPC status; leave typed errors from transaction bodies intact
		if _, ok := status.FromError(err); !ok {
			return err
		}
	}
	return &Error{op: op, err: err, code: code}
}
