package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	redisstore "github.com/baechuer/artfront/services/visitor-state/internal/infrastructure/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func setupStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(redisstore.Options(mr.Addr(), "", 0))
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.NewWithClient(client), mr
}

type MockUserRepo struct{ mock.Mock }

func (m *MockUserRepo) ListActive(ctx context.Context, userID uuid.UUID, kind domain.ListKind) ([]string, error) {
	args := m.Called(ctx, userID, kind)
	var ids []string
	if v := args.Get(0); v != nil {
		ids = v.([]string)
	}
	return ids, args.Error(1)
}

func (m *MockUserRepo) Toggle(ctx context.Context, userID uuid.UUID, kind domain.ListKind, itemID string) (domain.MembershipStatus, error) {
	args := m.Called(ctx, userID, kind, itemID)
	return args.Get(0).(domain.MembershipStatus), args.Error(1)
}

func (m *MockUserRepo) ClearAll(ctx context.Context, userID uuid.UUID, kind domain.ListKind) error {
	return m.Called(ctx, userID, kind).Error(0)
}

func (m *MockUserRepo) Activate(ctx context.Context, userID uuid.UUID, kind domain.ListKind, itemIDs []string) (int, error) {
	args := m.Called(ctx, userID, kind, itemIDs)
	return args.Int(0), args.Error(1)
}

// countingRecency records how many writes reach the store.
type countingRecency struct {
	domain.RecencyStore
	pushes int
}

func (c *countingRecency) PushRecentView(ctx context.Context, deviceID, itemID string, limit int, ttl time.Duration) error {
	c.pushes++
	return c.RecencyStore.PushRecentView(ctx, deviceID, itemID, limit, ttl)
}
