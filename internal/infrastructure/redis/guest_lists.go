package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/redis/go-redis/v9"
)

const identityScanCount = 200

// LoadList returns the serialized list for (kind, device); a missing key is
// an empty list.
func (s *Store) LoadList(ctx context.Context, kind domain.ListKind, deviceID string) ([]domain.MembershipEntry, error) {
	raw, err := s.Client.Get(ctx, keyGuestList(kind, deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Transient("load guest list", err)
	}

	var entries []domain.MembershipEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode guest list %s/%s: %w", kind, deviceID, err)
	}
	return entries, nil
}

// SaveList writes the whole list back under one key and indexes the device
// so the notification scan can find it. No expiry is set.
func (s *Store) SaveList(ctx context.Context, kind domain.ListKind, deviceID string, entries []domain.MembershipEntry) error {
	if entries == nil {
		entries = []domain.MembershipEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	pipe := s.Client.TxPipeline()
	pipe.Set(ctx, keyGuestList(kind, deviceID), raw, 0)
	pipe.SAdd(ctx, keyGuestIdentities(kind), deviceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Transient("save guest list", err)
	}
	return nil
}

// GuestIdentities walks the identity index with SSCAN so large sets do not
// block the server.
func (s *Store) GuestIdentities(ctx context.Context, kind domain.ListKind) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	seen := make(map[string]struct{})
	for {
		keys, next, err := s.Client.SScan(ctx, keyGuestIdentities(kind), cursor, "", identityScanCount).Result()
		if err != nil {
			return nil, domain.Transient("scan guest identities", err)
		}
		for _, k := range keys {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}
