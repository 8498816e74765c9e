package service

import (
	"context"
	"strings"
	"time"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/baechuer/artfront/services/visitor-state/internal/metrics"
	"github.com/baechuer/artfront/services/visitor-state/internal/pkg/logger"
)

const DefaultRecentViewsCap = 20

// EngagementTracker owns view records, the per-device active pointer and
// the recency list. Records are last-writer-wins per (device,item); no
// locking is attempted.
type EngagementTracker struct {
	store  domain.EngagementStore
	recent domain.RecencyStore
	clock  domain.Clock

	recentCap int
	recentTTL time.Duration
}

func NewEngagementTracker(store domain.EngagementStore, recent domain.RecencyStore, clock domain.Clock, recentCap int, recentTTL time.Duration) *EngagementTracker {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if recentCap < 1 {
		recentCap = DefaultRecentViewsCap
	}
	return &EngagementTracker{
		store:     store,
		recent:    recent,
		clock:     clock,
		recentCap: recentCap,
		recentTTL: recentTTL,
	}
}

// Start opens (or reopens) the engagement for itemID and moves the active
// pointer to it. A different item still under the pointer is finalized
// first.
func (t *EngagementTracker) Start(ctx context.Context, deviceID, itemID string, meta domain.EngagementMeta) (domain.EngagementRecord, error) {
	deviceID, itemID, err := validatePair(deviceID, itemID)
	if err != nil {
		return domain.EngagementRecord{}, err
	}
	now := t.clock.Now()

	prev, err := t.store.GetActiveEngagement(ctx, deviceID)
	if err != nil {
		return domain.EngagementRecord{}, err
	}
	if prev != "" && prev != itemID {
		if _, _, err := t.finalize(ctx, deviceID, prev, now); err != nil {
			return domain.EngagementRecord{}, err
		}
	}

	rec, found, err := t.store.GetEngagement(ctx, deviceID, itemID)
	if err != nil {
		return domain.EngagementRecord{}, err
	}
	if found {
		rec.Restart(now, meta)
	} else {
		rec = domain.NewEngagement(deviceID, itemID, now, meta)
	}

	if err := t.store.SaveEngagement(ctx, rec); err != nil {
		return domain.EngagementRecord{}, err
	}
	if err := t.store.SetActiveEngagement(ctx, deviceID, itemID); err != nil {
		return domain.EngagementRecord{}, err
	}
	return rec, nil
}

// End finalizes the record and releases the pointer if it still points at
// itemID. A missing record is a no-op.
func (t *EngagementTracker) End(ctx context.Context, deviceID, itemID string) (domain.EngagementRecord, bool, error) {
	deviceID, itemID, err := validatePair(deviceID, itemID)
	if err != nil {
		return domain.EngagementRecord{}, false, err
	}
	rec, found, err := t.finalize(ctx, deviceID, itemID, t.clock.Now())
	if err != nil || !found {
		return rec, found, err
	}
	if err := t.store.ClearActiveEngagement(ctx, deviceID, itemID); err != nil {
		return domain.EngagementRecord{}, false, err
	}
	return rec, true, nil
}

// Update applies a partial patch. A missing record is a no-op.
func (t *EngagementTracker) Update(ctx context.Context, deviceID, itemID string, patch domain.EngagementPatch) (domain.EngagementRecord, bool, error) {
	deviceID, itemID, err := validatePair(deviceID, itemID)
	if err != nil {
		return domain.EngagementRecord{}, false, err
	}
	rec, found, err := t.store.GetEngagement(ctx, deviceID, itemID)
	if err != nil || !found {
		return rec, found, err
	}
	rec.Apply(patch, t.clock.Now())
	if err := t.store.SaveEngagement(ctx, rec); err != nil {
		return domain.EngagementRecord{}, false, err
	}
	return rec, true, nil
}

// RecordView moves itemID to the front of the device's recency list. Rapid
// repeats of the current front entry are not written again.
func (t *EngagementTracker) RecordView(ctx context.Context, deviceID, itemID string) error {
	deviceID, itemID, err := validatePair(deviceID, itemID)
	if err != nil {
		return err
	}
	cur, err := t.recent.RecentViews(ctx, deviceID)
	if err != nil {
		return err
	}
	if len(cur) > 0 && cur[0] == itemID {
		return nil
	}
	return t.recent.PushRecentView(ctx, deviceID, itemID, t.recentCap, t.recentTTL)
}

func (t *EngagementTracker) Get(ctx context.Context, deviceID, itemID string) (domain.EngagementRecord, bool, error) {
	deviceID, itemID, err := validatePair(deviceID, itemID)
	if err != nil {
		return domain.EngagementRecord{}, false, err
	}
	return t.store.GetEngagement(ctx, deviceID, itemID)
}

func (t *EngagementTracker) Active(ctx context.Context, deviceID string) (string, error) {
	if err := domain.ValidateDeviceID(deviceID); err != nil {
		return "", err
	}
	return t.store.GetActiveEngagement(ctx, deviceID)
}

func (t *EngagementTracker) Recent(ctx context.Context, deviceID string) ([]string, error) {
	if err := domain.ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}
	ids, err := t.recent.RecentViews(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if len(ids) > t.recentCap {
		ids = ids[:t.recentCap]
	}
	return ids, nil
}

func (t *EngagementTracker) finalize(ctx context.Context, deviceID, itemID string, now time.Time) (domain.EngagementRecord, bool, error) {
	rec, found, err := t.store.GetEngagement(ctx, deviceID, itemID)
	if err != nil {
		return domain.EngagementRecord{}, false, err
	}
	if !found {
		logger.WithCtx(ctx).Debug().
			Str("device_id", deviceID).
			Str("item_id", itemID).
			Msg("finalize skipped: no engagement record")
		return domain.EngagementRecord{}, false, nil
	}
	rec.Finalize(now)
	if err := t.store.SaveEngagement(ctx, rec); err != nil {
		return domain.EngagementRecord{}, false, err
	}
	metrics.RecordEngagementFinalized(rec.ViewDurationSeconds)
	return rec, true, nil
}

func validatePair(deviceID, itemID string) (string, string, error) {
	deviceID = strings.TrimSpace(deviceID)
	itemID = strings.TrimSpace(itemID)
	if err := domain.ValidateDeviceID(deviceID); err != nil {
		return "", "", err
	}
	if err := domain.ValidateItemID(itemID); err != nil {
		return "", "", err
	}
	return deviceID, itemID, nil
}
