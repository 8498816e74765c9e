package domain

import (
	"sort"
	"time"
)

// ToggleEntry flips the status of itemID in entries, inserting an active
// entry when absent. It returns the new slice and whether the item is now
// active. At most one entry per item id survives.
func ToggleEntry(entries []MembershipEntry, itemID string, now time.Time) ([]MembershipEntry, bool) {
	entries = NormalizeEntries(entries)
	for i := range entries {
		if entries[i].ItemID != itemID {
			continue
		}
		if entries[i].Status.IsActive() {
			entries[i].Status = StatusRemoved
		} else {
			entries[i].Status = StatusActive
		}
		entries[i].UpdatedAt = now
		return entries, entries[i].Status.IsActive()
	}
	return append(entries, MembershipEntry{
		ItemID:    itemID,
		Status:    StatusActive,
		UpdatedAt: now,
	}), true
}

// ClearEntries soft-clears: every entry is kept with status removed.
func ClearEntries(entries []MembershipEntry, now time.Time) []MembershipEntry {
	entries = NormalizeEntries(entries)
	for i := range entries {
		if entries[i].Status != StatusRemoved {
			entries[i].Status = StatusRemoved
			entries[i].UpdatedAt = now
		}
	}
	return entries
}

// ActiveItemIDs returns the active item ids in insertion order.
func ActiveItemIDs(entries []MembershipEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range NormalizeEntries(entries) {
		if e.Status.IsActive() {
			out = append(out, e.ItemID)
		}
	}
	return out
}

// NormalizeEntries collapses duplicate item ids, keeping the most recently
// updated entry at the position of the first occurrence. Lists written by
// older clients may contain duplicates.
func NormalizeEntries(entries []MembershipEntry) []MembershipEntry {
	if len(entries) == 0 {
		return entries
	}
	idx := make(map[string]int, len(entries))
	out := make([]MembershipEntry, 0, len(entries))
	for _, e := range entries {
		if e.ItemID == "" {
			continue
		}
		if at, ok := idx[e.ItemID]; ok {
			if e.UpdatedAt.After(out[at].UpdatedAt) {
				out[at] = e
			}
			continue
		}
		idx[e.ItemID] = len(out)
		out = append(out, e)
	}
	return out
}

// NotificationDue reports whether an entry is eligible for an
// abandoned-cart notification at now. lastNotified is nil when the pair was
// never notified.
func NotificationDue(e MembershipEntry, lastNotified *time.Time, now time.Time, minInterval time.Duration) bool {
	if !e.Status.IsActive() {
		return false
	}
	if lastNotified == nil {
		return true
	}
	return now.Sub(*lastNotified) >= minInterval
}

// SortPending orders pairs deterministically (device, then item).
func SortPending(p []PendingNotification) {
	sort.Slice(p, func(i, j int) bool {
		if p[i].DeviceID != p[j].DeviceID {
			return p[i].DeviceID < p[j].DeviceID
		}
		return p[i].ItemID < p[j].ItemID
	})
}
