package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EngagementStore owns per-(device,item) records and the active pointer.
type EngagementStore interface {
	GetEngagement(ctx context.Context, deviceID, itemID string) (EngagementRecord, bool, error)
	SaveEngagement(ctx context.Context, rec EngagementRecord) error

	GetActiveEngagement(ctx context.Context, deviceID string) (string, error) // "" when none
	SetActiveEngagement(ctx context.Context, deviceID, itemID string) error
	// ClearActiveEngagement drops the pointer only while it still references itemID.
	ClearActiveEngagement(ctx context.Context, deviceID, itemID string) error
}

type RecencyStore interface {
	RecentViews(ctx context.Context, deviceID string) ([]string, error)
	// PushRecentView removes itemID, prepends it, trims to limit and
	// refreshes ttl (0 = no expiry) in one round trip.
	PushRecentView(ctx context.Context, deviceID, itemID string, limit int, ttl time.Duration) error
}

// GuestListStore keeps one serialized list per (kind, device).
type GuestListStore interface {
	LoadList(ctx context.Context, kind ListKind, deviceID string) ([]MembershipEntry, error)
	SaveList(ctx context.Context, kind ListKind, deviceID string, entries []MembershipEntry) error
	GuestIdentities(ctx context.Context, kind ListKind) ([]string, error)
}

// NotificationStore keeps scheduler state in its own keys so a scan never
// rewrites a visitor's list. ClaimNotification hands out one claim per
// (device,item) per interval.
type NotificationStore interface {
	ClaimNotification(ctx context.Context, deviceID, itemID string, ttl time.Duration) (bool, error)
	TouchNotifyIntent(ctx context.Context, deviceID, itemID string, at time.Time) error
	SetLastNotified(ctx context.Context, deviceID, itemID string, at time.Time) error
	// LastNotified maps item id to its last_notified_at for one device.
	LastNotified(ctx context.Context, deviceID string) (map[string]time.Time, error)
}

// UserListRepository is the durable, authenticated path.
type UserListRepository interface {
	ListActive(ctx context.Context, userID uuid.UUID, kind ListKind) ([]string, error)
	Toggle(ctx context.Context, userID uuid.UUID, kind ListKind, itemID string) (MembershipStatus, error)
	ClearAll(ctx context.Context, userID uuid.UUID, kind ListKind) error
	Activate(ctx context.Context, userID uuid.UUID, kind ListKind, itemIDs []string) (int, error)
}

type NotificationPublisher interface {
	PublishAbandonedCart(ctx context.Context, n PendingNotification) error
}
