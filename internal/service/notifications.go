package service

import (
	"context"
	"errors"
	"time"

	"github.com/baechuer/artfront/services/visitor-state/internal/audit"
	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/baechuer/artfront/services/visitor-state/internal/metrics"
	"github.com/baechuer/artfront/services/visitor-state/internal/pkg/logger"
	"github.com/rs/zerolog"
)

const DefaultNotifyMinInterval = 60 * time.Second

// NotificationScheduler computes abandoned-cart eligibility over guest carts.
// It is polled by an external trigger and never delivers anything itself.
type NotificationScheduler struct {
	guests   domain.GuestListStore
	state    domain.NotificationStore
	clock    domain.Clock
	interval time.Duration
	audit    *audit.Logger
}

func NewNotificationScheduler(guests domain.GuestListStore, state domain.NotificationStore, clock domain.Clock, interval time.Duration, auditLog *audit.Logger) *NotificationScheduler {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if interval <= 0 {
		interval = DefaultNotifyMinInterval
	}
	if auditLog == nil {
		auditLog = audit.New(zerolog.Nop())
	}
	return &NotificationScheduler{
		guests:   guests,
		state:    state,
		clock:    clock,
		interval: interval,
		audit:    auditLog,
	}
}

// Schedule records fresh intent for (device,item) so the next scan sees it.
// It reports false when the item is not active in the cart. The cart itself
// is only read.
func (s *NotificationScheduler) Schedule(ctx context.Context, deviceID, itemID string) (bool, error) {
	deviceID, itemID, err := validatePair(deviceID, itemID)
	if err != nil {
		return false, err
	}
	active, err := s.inCart(ctx, deviceID, itemID)
	if err != nil || !active {
		return false, err
	}
	if err := s.state.TouchNotifyIntent(ctx, deviceID, itemID, s.clock.Now()); err != nil {
		return false, err
	}
	return true, nil
}

// Pending scans every guest cart and returns the eligible pairs. Each pair
// is claimed for one interval, so it comes back at most once per interval
// no matter how often or from how many pollers Pending is called.
func (s *NotificationScheduler) Pending(ctx context.Context) ([]domain.PendingNotification, error) {
	devices, err := s.guests.GuestIdentities(ctx, domain.ListCart)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	out := make([]domain.PendingNotification, 0)
	for _, dev := range devices {
		entries, err := s.guests.LoadList(ctx, domain.ListCart, dev)
		if err != nil {
			if errors.Is(err, domain.ErrTransientStore) {
				return nil, err
			}
			logger.WithCtx(ctx).Warn().Err(err).Str("device_id", dev).Msg("skipping unreadable guest cart")
			continue
		}
		last, err := s.state.LastNotified(ctx, dev)
		if err != nil {
			if errors.Is(err, domain.ErrTransientStore) {
				return nil, err
			}
			logger.WithCtx(ctx).Warn().Err(err).Str("device_id", dev).Msg("ignoring unreadable notify history")
			last = nil
		}
		for _, e := range domain.NormalizeEntries(entries) {
			var lastAt *time.Time
			if at, ok := last[e.ItemID]; ok {
				lastAt = &at
			}
			if !domain.NotificationDue(e, lastAt, now, s.interval) {
				continue
			}
			ok, err := s.state.ClaimNotification(ctx, dev, e.ItemID, s.interval)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			n := domain.PendingNotification{DeviceID: dev, ItemID: e.ItemID}
			s.audit.NotificationClaimed(ctx, n)
			out = append(out, n)
		}
	}

	domain.SortPending(out)
	metrics.RecordNotificationsClaimed(len(out))
	return out, nil
}

// MarkNotified stamps last_notified_at for the pair. Pairs not in the cart
// are a no-op.
func (s *NotificationScheduler) MarkNotified(ctx context.Context, deviceID, itemID string) error {
	deviceID, itemID, err := validatePair(deviceID, itemID)
	if err != nil {
		return err
	}
	entries, err := s.guests.LoadList(ctx, domain.ListCart, deviceID)
	if err != nil {
		return err
	}
	if !containsItem(entries, itemID) {
		return nil
	}
	if err := s.state.SetLastNotified(ctx, deviceID, itemID, s.clock.Now()); err != nil {
		return err
	}
	s.audit.NotificationMarked(ctx, domain.PendingNotification{DeviceID: deviceID, ItemID: itemID})
	return nil
}

// Dispatch runs one scan and hands every claimed pair to pub, marking it
// notified on success. A failed publish leaves the pair unmarked; its lease
// keeps it out of scans until the interval passes.
func (s *NotificationScheduler) Dispatch(ctx context.Context, pub domain.NotificationPublisher) (int, error) {
	if pub == nil {
		return 0, errors.New("nil notification publisher")
	}
	pending, err := s.Pending(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, n := range pending {
		err := pub.PublishAbandonedCart(ctx, n)
		metrics.RecordNotificationPublished(err)
		if err != nil {
			logger.WithCtx(ctx).Warn().Err(err).
				Str("device_id", n.DeviceID).
				Str("item_id", n.ItemID).
				Msg("abandoned-cart publish failed")
			continue
		}
		if err := s.MarkNotified(ctx, n.DeviceID, n.ItemID); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (s *NotificationScheduler) inCart(ctx context.Context, deviceID, itemID string) (bool, error) {
	entries, err := s.guests.LoadList(ctx, domain.ListCart, deviceID)
	if err != nil {
		return false, err
	}
	for _, e := range domain.NormalizeEntries(entries) {
		if e.ItemID == itemID {
			return e.Status.IsActive(), nil
		}
	}
	return false, nil
}

func containsItem(entries []domain.MembershipEntry, itemID string) bool {
	for _, e := range entries {
		if e.ItemID == itemID {
			return true
		}
	}
	return false
}

// Interval is the minimum re-notify interval in effect.
func (s *NotificationScheduler) Interval() time.Duration { return s.interval }
