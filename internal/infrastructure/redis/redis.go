package redis

import (
	"context"
	"time"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Store is the ephemeral key-value backend for the guest path and for
// engagement tracking. Engagement and membership keys carry no expiry.
type Store struct {
	Client *redis.Client
}

// Bounds on a single command. A request that reaches a dead store must get
// ErrTransientStore back well inside a client's deadline.
const (
	dialTimeout     = 500 * time.Millisecond
	ioTimeout       = 500 * time.Millisecond
	poolTimeout     = time.Second
	maxRetries      = 1
	maxRetryBackoff = 50 * time.Millisecond
)

// Options returns client options with bounded timeouts and retries.
func Options(addr, pass string, db int) *redis.Options {
	return &redis.Options{
		Addr:            addr,
		Password:        pass,
		DB:              db,
		DialTimeout:     dialTimeout,
		ReadTimeout:     ioTimeout,
		WriteTimeout:    ioTimeout,
		PoolTimeout:     poolTimeout,
		MaxRetries:      maxRetries,
		MaxRetryBackoff: maxRetryBackoff,
	}
}

func New(addr, pass string, db int) *Store {
	return &Store{Client: redis.NewClient(Options(addr, pass, db))}
}

func NewWithClient(c *redis.Client) *Store {
	return &Store{Client: c}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.Client.Close()
}

// AllowRequest: Simple Fixed Window Rate Limit
func (s *Store) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	key := keyRateLimit(ip)
	count, err := s.Client.Incr(ctx, key).Result()
	if err != nil {
		return true, nil // fail open
	}
	if count == 1 {
		_ = s.Client.Expire(ctx, key, window).Err()
	}
	return count <= int64(limit), nil
}

// PurgeDevice is the explicit bulk cleanup for one device identity. It
// removes every engagement, recency and guest list key the device owns.
func (s *Store) PurgeDevice(ctx context.Context, deviceID string) (int64, error) {
	items, err := s.Client.SMembers(ctx, keyEngagementIndex(deviceID)).Result()
	if err != nil {
		return 0, domain.Transient("purge device", err)
	}

	keys := make([]string, 0, len(items)+8)
	for _, it := range items {
		keys = append(keys, keyEngagement(deviceID, it))
	}
	keys = append(keys,
		keyEngagementIndex(deviceID),
		keyActiveEngagement(deviceID),
		keyRecent(deviceID),
		keyNotifyIntent(deviceID),
		keyNotifyLast(deviceID),
	)
	for _, kind := range domain.AllListKinds() {
		keys = append(keys, keyGuestList(kind, deviceID))
	}

	pipe := s.Client.TxPipeline()
	del := pipe.Del(ctx, keys...)
	for _, kind := range domain.AllListKinds() {
		pipe.SRem(ctx, keyGuestIdentities(kind), deviceID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, domain.Transient("purge device", err)
	}
	return del.Val(), nil
}
