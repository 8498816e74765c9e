package redis

import (
	"context"
	"time"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
)

func (s *Store) RecentViews(ctx context.Context, deviceID string) ([]string, error) {
	out, err := s.Client.LRange(ctx, keyRecent(deviceID), 0, -1).Result()
	if err != nil {
		return nil, domain.Transient("recent views", err)
	}
	return out, nil
}

// PushRecentView moves itemID to the front of the device's list. The list
// key is the only engagement key allowed to expire.
func (s *Store) PushRecentView(ctx context.Context, deviceID, itemID string, limit int, ttl time.Duration) error {
	key := keyRecent(deviceID)

	pipe := s.Client.TxPipeline()
	pipe.LRem(ctx, key, 0, itemID)
	pipe.LPush(ctx, key, itemID)
	pipe.LTrim(ctx, key, 0, int64(limit-1))
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Transient("push recent view", err)
	}
	return nil
}
