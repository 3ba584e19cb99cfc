// Package core provides the Engram client: memory storage, hybrid-scored
// retrieval, the relation graph, recall merging, and lifecycle management.
package core

import (
	"errors"
	"fmt"

	"github.com/engram-ai/engram-go/pkg/storage"
)

// Predefined errors for the failure taxonomy.
var (
	// ErrValidation indicates malformed input: empty content, bad
	// embedding dimension, out-of-range importance or strength,
	// malformed tags or metadata. Validation is rejected before any
	// store interaction and never mutates state.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the operation targeted a missing or already
	// soft-deleted memory or relation. Aliased to the storage sentinel
	// so errors.Is works across layers.
	ErrNotFound = storage.ErrNotFound

	// ErrDependency indicates the embedding service or similarity
	// search is unavailable. Recoverable at the caller's discretion;
	// operations that need embeddings fail closed instead of returning
	// stale or empty results.
	ErrDependency = errors.New("dependency unavailable")

	// ErrConsistency indicates an internal invariant would be violated
	// (an access event decoupled from its counter update, or a
	// self-loop relation reaching the store). It must never be
	// reachable through the public contract.
	ErrConsistency = errors.New("consistency violation")

	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// MemoryError wraps errors with operation context.
//
// It records which operation failed, making structured failures
// distinguishable by callers via errors.Is/errors.As.
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns "engram: <Op>: <Err>".
func (e *MemoryError) Error() string {
	return fmt.Sprintf("engram: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is / errors.As.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError creates a MemoryError wrapping err, or nil if err is nil.
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{
		Op:  op,
		Err: err,
	}
}

// validationError builds an ErrValidation with a reason, wrapped for the
// given operation.
func validationError(op, reason string) error {
	return NewMemoryError(op, fmt.Errorf("%w: %s", ErrValidation, reason))
}

// dependencyError wraps a collaborator failure as ErrDependency.
func dependencyError(op string, err error) error {
	return NewMemoryError(op, fmt.Errorf("%w: %v", ErrDependency, err))
}
