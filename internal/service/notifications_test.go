package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/baechuer/artfront/services/visitor-state/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	sent []domain.PendingNotification
	fail map[string]bool
}

func (f *fakePublisher) PublishAbandonedCart(ctx context.Context, n domain.PendingNotification) error {
	if f.fail[n.ItemID] {
		return errors.New("broker down")
	}
	f.sent = append(f.sent, n)
	return nil
}

func seedCart(t *testing.T, r *service.Resolver, dev string, items ...string) {
	t.Helper()
	ops, err := r.Resolve(domain.Identity{DeviceID: dev}, domain.ListCart)
	require.NoError(t, err)
	for _, it := range items {
		_, err := ops.Toggle(context.Background(), it)
		require.NoError(t, err)
	}
}

func TestNotifications_PendingAtMostOncePerWindow(t *testing.T) {
	store, mr := setupStore(t)
	clock := newFakeClock()
	r := service.NewResolver(store, nil, clock, nil)
	s := service.NewNotificationScheduler(store, store, clock, time.Minute, nil)
	ctx := context.Background()

	seedCart(t, r, "dev1", "art-9")

	got, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.PendingNotification{{DeviceID: "dev1", ItemID: "art-9"}}, got)

	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Second)
		mr.FastForward(10 * time.Second)
		got, err = s.Pending(ctx)
		require.NoError(t, err)
		assert.Empty(t, got, "poll %d inside the window", i)
	}

	clock.Advance(11 * time.Second)
	mr.FastForward(11 * time.Second)
	got, err = s.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1, "never marked, so it comes back after the window")
}

func TestNotifications_MarkedPairWaitsForInterval(t *testing.T) {
	store, mr := setupStore(t)
	clock := newFakeClock()
	r := service.NewResolver(store, nil, clock, nil)
	s := service.NewNotificationScheduler(store, store, clock, time.Minute, nil)
	ctx := context.Background()

	seedCart(t, r, "dev1", "a")
	require.NoError(t, s.MarkNotified(ctx, "dev1", "a"))

	got, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	clock.Advance(59 * time.Second)
	mr.FastForward(59 * time.Second)
	got, _ = s.Pending(ctx)
	assert.Empty(t, got)

	clock.Advance(time.Second)
	mr.FastForward(time.Second)
	got, _ = s.Pending(ctx)
	assert.Len(t, got, 1)
}

func TestNotifications_OnlyActiveCartEntries(t *testing.T) {
	store, _ := setupStore(t)
	clock := newFakeClock()
	r := service.NewResolver(store, nil, clock, nil)
	s := service.NewNotificationScheduler(store, store, clock, 0, nil)
	ctx := context.Background()

	seedCart(t, r, "dev2", "b", "removed", "removed")
	seedCart(t, r, "dev1", "a")
	wish, _ := r.Resolve(domain.Identity{DeviceID: "dev3"}, domain.ListWishlist)
	_, err := wish.Toggle(ctx, "w")
	require.NoError(t, err)

	got, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.PendingNotification{
		{DeviceID: "dev1", ItemID: "a"},
		{DeviceID: "dev2", ItemID: "b"},
	}, got)
	assert.Equal(t, service.DefaultNotifyMinInterval, s.Interval())
}

func TestNotifications_CorruptCartIsSkipped(t *testing.T) {
	store, mr := setupStore(t)
	clock := newFakeClock()
	r := service.NewResolver(store, nil, clock, nil)
	s := service.NewNotificationScheduler(store, store, clock, time.Minute, nil)

	seedCart(t, r, "dev1", "a")
	seedCart(t, r, "dev2", "b")
	require.NoError(t, mr.Set("guest:cart:dev2", "garbage"))

	got, err := s.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.PendingNotification{{DeviceID: "dev1", ItemID: "a"}}, got)
}

func TestNotifications_Schedule(t *testing.T) {
	store, _ := setupStore(t)
	clock := newFakeClock()
	r := service.NewResolver(store, nil, clock, nil)
	s := service.NewNotificationScheduler(store, store, clock, time.Minute, nil)
	ctx := context.Background()

	ok, err := s.Schedule(ctx, "dev1", "a")
	require.NoError(t, err)
	assert.False(t, ok, "not in cart")

	seedCart(t, r, "dev1", "a")
	clock.Advance(time.Hour)
	ok, err = s.Schedule(ctx, "dev1", "a")
	require.NoError(t, err)
	assert.True(t, ok)

	at, found, err := store.NotifyIntent(ctx, "dev1", "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, clock.Now().Equal(at))

	_, err = s.Schedule(ctx, "", "a")
	assert.ErrorIs(t, err, domain.ErrIdentityMissing)
}

func TestNotifications_MarkUnknownIsNoop(t *testing.T) {
	store, _ := setupStore(t)
	s := service.NewNotificationScheduler(store, store, newFakeClock(), time.Minute, nil)
	ctx := context.Background()
	require.NoError(t, s.MarkNotified(ctx, "dev1", "nothing"))

	last, err := store.LastNotified(ctx, "dev1")
	require.NoError(t, err)
	assert.Empty(t, last)
}

func TestNotifications_SchedulerNeverWritesTheCart(t *testing.T) {
	store, mr := setupStore(t)
	clock := newFakeClock()
	r := service.NewResolver(store, nil, clock, nil)
	s := service.NewNotificationScheduler(store, store, clock, time.Minute, nil)
	ctx := context.Background()

	seedCart(t, r, "dev1", "a")
	got, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// the visitor removes the item while the notification is in flight
	seedCart(t, r, "dev1", "a")
	before, err := mr.Get("guest:cart:dev1")
	require.NoError(t, err)

	require.NoError(t, s.MarkNotified(ctx, "dev1", "a"))
	ok, err := s.Schedule(ctx, "dev1", "a")
	require.NoError(t, err)
	assert.False(t, ok)

	after, err := mr.Get("guest:cart:dev1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	ops, err := r.Resolve(domain.Identity{DeviceID: "dev1"}, domain.ListCart)
	require.NoError(t, err)
	ids, err := ops.FetchList(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "removed item stays removed")
}

func TestNotifications_Dispatch(t *testing.T) {
	store, _ := setupStore(t)
	clock := newFakeClock()
	r := service.NewResolver(store, nil, clock, nil)
	s := service.NewNotificationScheduler(store, store, clock, time.Minute, nil)
	ctx := context.Background()

	seedCart(t, r, "dev1", "ok-1", "fails")
	pub := &fakePublisher{fail: map[string]bool{"fails": true}}

	sent, err := s.Dispatch(ctx, pub)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []domain.PendingNotification{{DeviceID: "dev1", ItemID: "ok-1"}}, pub.sent)

	last, err := store.LastNotified(ctx, "dev1")
	require.NoError(t, err)
	assert.Contains(t, last, "ok-1")
	assert.NotContains(t, last, "fails")

	_, err = s.Dispatch(ctx, nil)
	assert.Error(t, err)
}

func TestNotifications_StoreDown(t *testing.T) {
	store, mr := setupStore(t)
	s := service.NewNotificationScheduler(store, store, newFakeClock(), time.Minute, nil)
	mr.Close()

	_, err := s.Pending(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransientStore)
}
