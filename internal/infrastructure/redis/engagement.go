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

const (
	fDeviceID        = "device_id"
	fItemID          = "item_id"
	fUserID          = "user_id"
	fViewStart       = "view_start_time"
	fDuration        = "view_duration_seconds"
	fLastInteraction = "last_interaction_time"
	fReferrer        = "referrer"
	fSessionID       = "session_id"
	fCreatedAt       = "created_at"
	fUpdatedAt       = "updated_at"
)

// clearIfMatches deletes the pointer only when it still names ARGV[1], so a
// late end for an old item cannot drop a newer engagement.
var clearIfMatches = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *Store) GetEngagement(ctx context.Context, deviceID, itemID string) (domain.EngagementRecord, bool, error) {
	m, err := s.Client.HGetAll(ctx, keyEngagement(deviceID, itemID)).Result()
	if err != nil {
		return domain.EngagementRecord{}, false, domain.Transient("get engagement", err)
	}
	if len(m) == 0 {
		return domain.EngagementRecord{}, false, nil
	}
	rec, err := decodeEngagement(m)
	if err != nil {
		return domain.EngagementRecord{}, false, err
	}
	return rec, true, nil
}

// SaveEngagement overwrites the single keyed record (last writer wins).
func (s *Store) SaveEngagement(ctx context.Context, rec domain.EngagementRecord) error {
	pipe := s.Client.TxPipeline()
	pipe.HSet(ctx, keyEngagement(rec.DeviceID, rec.ItemID), encodeEngagement(rec))
	pipe.SAdd(ctx, keyEngagementIndex(rec.DeviceID), rec.ItemID)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Transient("save engagement", err)
	}
	return nil
}

func (s *Store) GetActiveEngagement(ctx context.Context, deviceID string) (string, error) {
	v, err := s.Client.Get(ctx, keyActiveEngagement(deviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", domain.Transient("get active engagement", err)
	}
	return v, nil
}

func (s *Store) SetActiveEngagement(ctx context.Context, deviceID, itemID string) error {
	if err := s.Client.Set(ctx, keyActiveEngagement(deviceID), itemID, 0).Err(); err != nil {
		return domain.Transient("set active engagement", err)
	}
	return nil
}

func (s *Store) ClearActiveEngagement(ctx context.Context, deviceID, itemID string) error {
	err := clearIfMatches.Run(ctx, s.Client, []string{keyActiveEngagement(deviceID)}, itemID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Transient("clear active engagement", err)
	}
	return nil
}

func encodeEngagement(r domain.EngagementRecord) map[string]any {
	m := map[string]any{
		fDeviceID:  r.DeviceID,
		fItemID:    r.ItemID,
		fUserID:    r.UserID,
		fViewStart: formatTime(r.ViewStartTime),
		fDuration:  r.ViewDurationSeconds,
		fReferrer:  r.Referrer,
		fSessionID: r.SessionID,
		fCreatedAt: formatTime(r.CreatedAt),
		fUpdatedAt: formatTime(r.UpdatedAt),
	}
	if r.LastInteractionTime != nil {
		m[fLastInteraction] = formatTime(*r.LastInteractionTime)
	} else {
		m[fLastInteraction] = ""
	}
	return m
}

func decodeEngagement(m map[string]string) (domain.EngagementRecord, error) {
	rec := domain.EngagementRecord{
		DeviceID:  m[fDeviceID],
		ItemID:    m[fItemID],
		UserID:    m[fUserID],
		Referrer:  m[fReferrer],
		SessionID: m[fSessionID],
	}

	var err error
	if rec.ViewStartTime, err = parseTime(m[fViewStart]); err != nil {
		return rec, fmt.Errorf("decode %s: %w", fViewStart, err)
	}
	if rec.CreatedAt, err = parseTime(m[fCreatedAt]); err != nil {
		return rec, fmt.Errorf("decode %s: %w", fCreatedAt, err)
	}
	if rec.UpdatedAt, err = parseTime(m[fUpdatedAt]); err != nil {
		return rec, fmt.Errorf("decode %s: %w", fUpdatedAt, err)
	}
	if v := m[fLastInteraction]; v != "" {
		t, err := parseTime(v)
		if err != nil {
			return rec, fmt.Errorf("decode %s: %w", fLastInteraction, err)
		}
		rec.LastInteractionTime = &t
	}
	if v := m[fDuration]; v != "" {
		d, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return rec, fmt.Errorf("decode %s: %w", fDuration, err)
		}
		rec.ViewDurationSeconds = d
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
