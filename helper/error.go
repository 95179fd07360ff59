package helper

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes callers need to distinguish.
// Wrapped errors remain matchable with errors.Is.
var (
	// ErrStoreUnavailable marks persistence failures (open, read or
	// write). They are never recovered locally and abort the current
	// operation or batch.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrWrongPassphrase marks a failed canary verification when
	// opening the store.
	ErrWrongPassphrase = errors.New("wrong passphrase")

	// ErrInvariantViolation marks a defensive storage-layer check
	// firing, e.g. a uniqueness constraint on a component mapping.
	// It indicates the non-collision guarantee was about to break.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrInvalidMention marks malformed detector input. It rejects
	// one document, not the batch.
	ErrInvalidMention = errors.New("invalid mention")
)

// NewError wraps an error with the operation context it occurred in.
func NewError(context string, err error) error {
	return fmt.Errorf("error %v: %w", context, err)
}
