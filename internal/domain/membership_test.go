package domain_test

import (
	"testing"
	"time"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleEntry_SelfInverse(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	entries, active := domain.ToggleEntry(nil, "art-7", now)
	require.True(t, active)
	require.Len(t, entries, 1)

	entries, active = domain.ToggleEntry(entries, "art-7", now.Add(time.Second))
	assert.False(t, active)
	require.Len(t, entries, 1, "toggle must flip, not append")
	assert.Equal(t, domain.StatusRemoved, entries[0].Status)
	assert.Equal(t, now.Add(time.Second), entries[0].UpdatedAt)

	entries, active = domain.ToggleEntry(entries, "art-7", now.Add(2*time.Second))
	assert.True(t, active)
	assert.Len(t, entries, 1)
	assert.Empty(t, domain.ActiveItemIDs(nil))
	assert.Equal(t, []string{"art-7"}, domain.ActiveItemIDs(entries))
}

func TestToggleEntry_DoesNotAliasInput(t *testing.T) {
	now := time.Now()
	in := []domain.MembershipEntry{{ItemID: "a", Status: domain.StatusActive, UpdatedAt: now}}

	out, active := domain.ToggleEntry(in, "a", now)
	assert.False(t, active)
	assert.Equal(t, domain.StatusActive, in[0].Status)
	assert.Equal(t, domain.StatusRemoved, out[0].Status)
}

func TestClearEntries_SoftClear(t *testing.T) {
	now := time.Now()
	entries := []domain.MembershipEntry{
		{ItemID: "a", Status: domain.StatusActive, UpdatedAt: now},
		{ItemID: "b", Status: domain.StatusRemoved, UpdatedAt: now},
		{ItemID: "c", Status: domain.StatusActive, UpdatedAt: now},
	}

	cleared := domain.ClearEntries(entries, now.Add(time.Minute))
	require.Len(t, cleared, 3, "history is preserved")
	for _, e := range cleared {
		assert.Equal(t, domain.StatusRemoved, e.Status)
	}
	assert.Equal(t, now, cleared[1].UpdatedAt, "already removed entries are untouched")
	assert.Empty(t, domain.ActiveItemIDs(cleared))
}

func TestNormalizeEntries_CollapsesDuplicates(t *testing.T) {
	t0 := time.Now()
	entries := []domain.MembershipEntry{
		{ItemID: "a", Status: domain.StatusActive, UpdatedAt: t0},
		{ItemID: "b", Status: domain.StatusActive, UpdatedAt: t0},
		{ItemID: "a", Status: domain.StatusRemoved, UpdatedAt: t0.Add(time.Second)},
		{ItemID: "", Status: domain.StatusActive, UpdatedAt: t0},
	}

	got := domain.NormalizeEntries(entries)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ItemID)
	assert.Equal(t, domain.StatusRemoved, got[0].Status)
	assert.Equal(t, []string{"b"}, domain.ActiveItemIDs(entries))
}

func TestNotificationDue(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-30 * time.Second)
	old := now.Add(-61 * time.Second)
	edge := now.Add(-60 * time.Second)
	active := domain.MembershipEntry{ItemID: "a", Status: domain.StatusActive}

	tests := []struct {
		name     string
		entry    domain.MembershipEntry
		last     *time.Time
		expected bool
	}{
		{"never notified", active, nil, true},
		{"notified recently", active, &recent, false},
		{"notified long ago", active, &old, true},
		{"exactly at interval", active, &edge, true},
		{"removed", domain.MembershipEntry{ItemID: "a", Status: domain.StatusRemoved}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, domain.NotificationDue(tt.entry, tt.last, now, time.Minute))
		})
	}
}

func TestParseListKind(t *testing.T) {
	k, err := domain.ParseListKind(" Cart ")
	require.NoError(t, err)
	assert.Equal(t, domain.ListCart, k)

	k, err = domain.ParseListKind("wishlist")
	require.NoError(t, err)
	assert.Equal(t, domain.ListWishlist, k)

	_, err = domain.ParseListKind("basket")
	assert.ErrorIs(t, err, domain.ErrInvalidListKind)
}
