package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(Options(mr.Addr(), "", 0))
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client), mr
}

func TestStore_EngagementRoundTrip(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	_, found, err := s.GetEngagement(ctx, "dev1", "art-42")
	require.NoError(t, err)
	assert.False(t, found)

	start := time.Date(2026, 4, 1, 9, 0, 0, 123, time.UTC)
	rec := domain.NewEngagement("dev1", "art-42", start, domain.EngagementMeta{Referrer: "search", SessionID: "s1"})
	rec.Finalize(start.Add(7 * time.Second))
	require.NoError(t, s.SaveEngagement(ctx, rec))

	got, found, err := s.GetEngagement(ctx, "dev1", "art-42")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.ViewStartTime, got.ViewStartTime)
	assert.Equal(t, int64(7), got.ViewDurationSeconds)
	require.NotNil(t, got.LastInteractionTime)
	assert.Equal(t, start.Add(7*time.Second), *got.LastInteractionTime)
	assert.Equal(t, "search", got.Referrer)
	assert.Equal(t, "s1", got.SessionID)

	// engagement keys never expire
	assert.Zero(t, mr.TTL(keyEngagement("dev1", "art-42")))
	members, err := mr.SMembers(keyEngagementIndex("dev1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"art-42"}, members)
}

func TestStore_ActivePointer(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	cur, err := s.GetActiveEngagement(ctx, "dev1")
	require.NoError(t, err)
	assert.Empty(t, cur)

	require.NoError(t, s.SetActiveEngagement(ctx, "dev1", "art-43"))

	// A stale clear for another item leaves the pointer alone.
	require.NoError(t, s.ClearActiveEngagement(ctx, "dev1", "art-42"))
	cur, err = s.GetActiveEngagement(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, "art-43", cur)

	require.NoError(t, s.ClearActiveEngagement(ctx, "dev1", "art-43"))
	cur, err = s.GetActiveEngagement(ctx, "dev1")
	require.NoError(t, err)
	assert.Empty(t, cur)
}

func TestStore_PushRecentView_DedupAndCap(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "a"} {
		require.NoError(t, s.PushRecentView(ctx, "dev1", id, 3, time.Minute))
	}
	got, err := s.RecentViews(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, got)

	require.NoError(t, s.PushRecentView(ctx, "dev1", "d", 3, time.Minute))
	got, err = s.RecentViews(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "a", "c"}, got)
	assert.Equal(t, time.Minute, mr.TTL(keyRecent("dev1")))

	require.NoError(t, s.PushRecentView(ctx, "dev2", "x", 3, 0))
	assert.Zero(t, mr.TTL(keyRecent("dev2")))
}

func TestStore_GuestListRoundTrip(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	entries, err := s.LoadList(ctx, domain.ListWishlist, "dev1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	now := time.Now().UTC().Truncate(time.Millisecond)
	entries, _ = domain.ToggleEntry(entries, "art-7", now)
	require.NoError(t, s.SaveList(ctx, domain.ListWishlist, "dev1", entries))

	got, err := s.LoadList(ctx, domain.ListWishlist, "dev1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "art-7", got[0].ItemID)
	assert.Equal(t, domain.StatusActive, got[0].Status)
	assert.True(t, now.Equal(got[0].UpdatedAt))
	assert.Zero(t, mr.TTL(keyGuestList(domain.ListWishlist, "dev1")))

	// lists are namespaced by kind
	cart, err := s.LoadList(ctx, domain.ListCart, "dev1")
	require.NoError(t, err)
	assert.Empty(t, cart)
}

func TestStore_LoadList_CorruptPayload(t *testing.T) {
	s, mr := setupTestStore(t)
	require.NoError(t, mr.Set(keyGuestList(domain.ListCart, "dev1"), "{not json"))

	_, err := s.LoadList(context.Background(), domain.ListCart, "dev1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrTransientStore)
}

func TestStore_GuestIdentities(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	for _, dev := range []string{"dev1", "dev2", "dev3"} {
		require.NoError(t, s.SaveList(ctx, domain.ListCart, dev, nil))
	}
	require.NoError(t, s.SaveList(ctx, domain.ListWishlist, "dev9", nil))

	ids, err := s.GuestIdentities(ctx, domain.ListCart)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dev1", "dev2", "dev3"}, ids)
}

func TestStore_ClaimNotification(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	ok, err := s.ClaimNotification(ctx, "dev1", "art-9", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimNotification(ctx, "dev1", "art-9", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim inside the window must lose")

	mr.FastForward(61 * time.Second)
	ok, err = s.ClaimNotification(ctx, "dev1", "art-9", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_NotifyStateKeptApartFromLists(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	last, err := s.LastNotified(ctx, "dev1")
	require.NoError(t, err)
	assert.Empty(t, last)

	require.NoError(t, s.SetLastNotified(ctx, "dev1", "art-9", at))
	require.NoError(t, s.TouchNotifyIntent(ctx, "dev1", "art-9", at.Add(time.Minute)))

	last, err = s.LastNotified(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Time{"art-9": at}, last)

	intent, found, err := s.NotifyIntent(ctx, "dev1", "art-9")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, at.Add(time.Minute), intent)

	_, found, err = s.NotifyIntent(ctx, "dev1", "other")
	require.NoError(t, err)
	assert.False(t, found)

	assert.False(t, mr.Exists(keyGuestList(domain.ListCart, "dev1")))

	n, err := s.PurgeDevice(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.False(t, mr.Exists(keyNotifyLast("dev1")))
}

func TestStore_AllowRequest_FixedWindow(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := s.AllowRequest(ctx, "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := s.AllowRequest(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "4th request should be blocked")

	mr.FastForward(time.Minute + time.Second)
	ok, err = s.AllowRequest(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStore_PurgeDevice(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveEngagement(ctx, domain.NewEngagement("dev1", "a", now, domain.EngagementMeta{})))
	require.NoError(t, s.SaveEngagement(ctx, domain.NewEngagement("dev1", "b", now, domain.EngagementMeta{})))
	require.NoError(t, s.SetActiveEngagement(ctx, "dev1", "b"))
	require.NoError(t, s.PushRecentView(ctx, "dev1", "b", 20, 0))
	entries, _ := domain.ToggleEntry(nil, "a", now)
	require.NoError(t, s.SaveList(ctx, domain.ListCart, "dev1", entries))
	require.NoError(t, s.SaveList(ctx, domain.ListCart, "dev2", entries))

	n, err := s.PurgeDevice(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	assert.False(t, mr.Exists(keyEngagement("dev1", "a")))
	assert.False(t, mr.Exists(keyActiveEngagement("dev1")))
	assert.False(t, mr.Exists(keyRecent("dev1")))
	assert.True(t, mr.Exists(keyGuestList(domain.ListCart, "dev2")))

	ids, err := s.GuestIdentities(ctx, domain.ListCart)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev2"}, ids)
}

func TestOptions_Bounded(t *testing.T) {
	o := Options("localhost:6379", "pw", 2)
	assert.Equal(t, "localhost:6379", o.Addr)
	assert.Equal(t, 2, o.DB)
	assert.Equal(t, dialTimeout, o.DialTimeout)
	assert.Equal(t, ioTimeout, o.ReadTimeout)
	assert.Equal(t, ioTimeout, o.WriteTimeout)
	assert.Equal(t, maxRetries, o.MaxRetries)
}

func TestStore_TransientErrors(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))
	mr.Close()

	start := time.Now()
	_, _, err := s.GetEngagement(ctx, "dev1", "a")
	assert.ErrorIs(t, err, domain.ErrTransientStore)
	assert.Less(t, time.Since(start), time.Second, "dead store fails fast")

	_, err = s.LoadList(ctx, domain.ListCart, "dev1")
	assert.ErrorIs(t, err, domain.ErrTransientStore)

	err = s.PushRecentView(ctx, "dev1", "a", 20, 0)
	assert.ErrorIs(t, err, domain.ErrTransientStore)

	ok, err := s.AllowRequest(ctx, "ip", 1, time.Second)
	assert.NoError(t, err)
	assert.True(t, ok, "rate limiter fails open")
}
