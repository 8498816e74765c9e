package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ListKind string

const (
	ListCart     ListKind = "cart"
	ListWishlist ListKind = "wishlist"
)

func ParseListKind(s string) (ListKind, error) {
	switch ListKind(strings.ToLower(strings.TrimSpace(s))) {
	case ListCart:
		return ListCart, nil
	case ListWishlist:
		return ListWishlist, nil
	default:
		return "", ErrInvalidListKind
	}
}

func AllListKinds() []ListKind { return []ListKind{ListCart, ListWishlist} }

// MembershipStatus is a tagged status rather than a bool so new states
// (e.g. "purchased") can be added without touching stored rows.
type MembershipStatus string

const (
	StatusActive  MembershipStatus = "active"
	StatusRemoved MembershipStatus = "removed"
)

func (s MembershipStatus) IsActive() bool { return s == StatusActive }

type MembershipEntry struct {
	ItemID    string           `json:"item_id"`
	Status    MembershipStatus `json:"status"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type EngagementRecord struct {
	DeviceID            string     `json:"device_id"`
	ItemID              string     `json:"item_id"`
	UserID              string     `json:"user_id,omitempty"`
	ViewStartTime       time.Time  `json:"view_start_time"`
	ViewDurationSeconds int64      `json:"view_duration_seconds"`
	LastInteractionTime *time.Time `json:"last_interaction_time,omitempty"`
	Referrer            string     `json:"referrer,omitempty"`
	SessionID           string     `json:"session_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// EngagementMeta is the optional context captured when a view starts.
type EngagementMeta struct {
	UserID    string
	Referrer  string
	SessionID string
}

// EngagementPatch carries a partial update; nil fields are left untouched.
type EngagementPatch struct {
	DurationSeconds *int64
	LastInteraction *time.Time
}

// Identity is resolved once per request. UserID is uuid.Nil for guests.
type Identity struct {
	DeviceID string
	UserID   uuid.UUID
}

func (i Identity) Authenticated() bool { return i.UserID != uuid.Nil }

func (i Identity) Validate() error {
	if i.Authenticated() {
		return nil
	}
	if strings.TrimSpace(i.DeviceID) == "" {
		return ErrIdentityMissing
	}
	return ValidateDeviceID(i.DeviceID)
}

type PendingNotification struct {
	DeviceID string `json:"device_id"`
	ItemID   string `json:"item_id"`
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ListOperations is the single contract behind which the guest and user
// paths are interchangeable.
type ListOperations interface {
	FetchList(ctx context.Context) ([]string, error)
	Toggle(ctx context.Context, itemID string) (bool, error)
	Clear(ctx context.Context) error
}
