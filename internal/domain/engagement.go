package domain

import (
	"math"
	"time"
)

// ViewDurationSeconds is floor(end - start) in whole seconds, never negative.
func ViewDurationSeconds(start, end time.Time) int64 {
	if start.IsZero() || !end.After(start) {
		return 0
	}
	return int64(math.Floor(end.Sub(start).Seconds()))
}

// Finalize computes and stamps the duration of r at now. A finalized
// duration never decreases.
func (r *EngagementRecord) Finalize(now time.Time) {
	d := ViewDurationSeconds(r.ViewStartTime, now)
	if d > r.ViewDurationSeconds {
		r.ViewDurationSeconds = d
	}
	t := now
	r.LastInteractionTime = &t
	r.UpdatedAt = now
}

// Restart reopens an existing record for a new viewing interval.
func (r *EngagementRecord) Restart(now time.Time, meta EngagementMeta) {
	r.ViewStartTime = now
	r.ViewDurationSeconds = 0
	t := now
	r.LastInteractionTime = &t
	r.UpdatedAt = now
	r.applyMeta(meta)
}

// Apply merges a partial update. Durations are clamped at zero.
func (r *EngagementRecord) Apply(p EngagementPatch, now time.Time) {
	if p.DurationSeconds != nil {
		d := *p.DurationSeconds
		if d < 0 {
			d = 0
		}
		r.ViewDurationSeconds = d
	}
	if p.LastInteraction != nil {
		t := p.LastInteraction.UTC()
		r.LastInteractionTime = &t
	}
	r.UpdatedAt = now
}

func NewEngagement(deviceID, itemID string, now time.Time, meta EngagementMeta) EngagementRecord {
	r := EngagementRecord{
		DeviceID:      deviceID,
		ItemID:        itemID,
		ViewStartTime: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.applyMeta(meta)
	return r
}

func (r *EngagementRecord) applyMeta(meta EngagementMeta) {
	if meta.UserID != "" {
		r.UserID = meta.UserID
	}
	if meta.Referrer != "" {
		r.Referrer = meta.Referrer
	}
	if meta.SessionID != "" {
		r.SessionID = meta.SessionID
	}
}
