package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Scheduler state lives in per-device hashes keyed by item id, next to the
// guest lists but never inside them.

// ClaimNotification takes a lease on (device,item) for ttl. Only the first
// caller within the window gets true.
func (s *Store) ClaimNotification(ctx context.Context, deviceID, itemID string, ttl time.Duration) (bool, error) {
	ok, err := s.Client.SetNX(ctx, keyNotifyLease(deviceID, itemID), time.Now().UTC().Unix(), ttl).Result()
	if err != nil {
		return false, domain.Transient("claim notification", err)
	}
	return ok, nil
}

func (s *Store) TouchNotifyIntent(ctx context.Context, deviceID, itemID string, at time.Time) error {
	if err := s.Client.HSet(ctx, keyNotifyIntent(deviceID), itemID, at.UTC().UnixMilli()).Err(); err != nil {
		return domain.Transient("touch notify intent", err)
	}
	return nil
}

func (s *Store) SetLastNotified(ctx context.Context, deviceID, itemID string, at time.Time) error {
	if err := s.Client.HSet(ctx, keyNotifyLast(deviceID), itemID, at.UTC().UnixMilli()).Err(); err != nil {
		return domain.Transient("set last notified", err)
	}
	return nil
}

func (s *Store) LastNotified(ctx context.Context, deviceID string) (map[string]time.Time, error) {
	raw, err := s.Client.HGetAll(ctx, keyNotifyLast(deviceID)).Result()
	if err != nil {
		return nil, domain.Transient("load last notified", err)
	}
	out := make(map[string]time.Time, len(raw))
	for item, v := range raw {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode last notified %s/%s: %w", deviceID, item, err)
		}
		out[item] = time.UnixMilli(ms).UTC()
	}
	return out, nil
}

// NotifyIntent returns when (device,item) was last scheduled, if ever.
func (s *Store) NotifyIntent(ctx context.Context, deviceID, itemID string) (time.Time, bool, error) {
	ms, err := s.Client.HGet(ctx, keyNotifyIntent(deviceID), itemID).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, domain.Transient("load notify intent", err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}
