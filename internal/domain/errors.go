package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientStore marks a store that is unreachable or timed out. Retryable.
	ErrTransientStore = errors.New("store unavailable")

	ErrIdentityMissing  = errors.New("identity missing")
	ErrInvalidIdentity  = errors.New("invalid device identity")
	ErrInvalidItem      = errors.New("invalid item id")
	ErrInvalidListKind  = errors.New("invalid list kind")
	ErrMergeNeedsBoth   = errors.New("merge requires both device identity and session")
	ErrNotificationPath = errors.New("notifications are only scheduled on the guest path")

	// Client side.
	ErrReconciliationMismatch = errors.New("optimistic state disagreed with server")
	ErrToggleInFlight         = errors.New("toggle already in flight for item")
	ErrRefetchInProgress      = errors.New("list refetch in progress")
)

// Transient wraps a store failure so callers can match ErrTransientStore
// while keeping the driver error in the chain.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransientStore, err)
}
