package service

import (
	"context"
	"strings"

	"github.com/baechuer/artfront/services/visitor-state/internal/audit"
	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/baechuer/artfront/services/visitor-state/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	pathGuest = "guest"
	pathUser  = "user"
)

// GuestOperations runs the list contract against the ephemeral store, keyed
// by device identity. Each mutation is a whole-list read-modify-write on one
// key; concurrent toggles of different items on the same list can lose an
// update.
type GuestOperations struct {
	store    domain.GuestListStore
	kind     domain.ListKind
	deviceID string
	clock    domain.Clock
	audit    *audit.Logger
}

func (g *GuestOperations) FetchList(ctx context.Context) ([]string, error) {
	entries, err := g.store.LoadList(ctx, g.kind, g.deviceID)
	if err != nil {
		return nil, err
	}
	return domain.ActiveItemIDs(entries), nil
}

func (g *GuestOperations) Toggle(ctx context.Context, itemID string) (bool, error) {
	itemID = strings.TrimSpace(itemID)
	if err := domain.ValidateItemID(itemID); err != nil {
		return false, err
	}
	entries, err := g.store.LoadList(ctx, g.kind, g.deviceID)
	if err != nil {
		metrics.RecordToggle(pathGuest, string(g.kind), false, err)
		return false, err
	}
	entries, active := domain.ToggleEntry(entries, itemID, g.clock.Now())
	if err := g.store.SaveList(ctx, g.kind, g.deviceID, entries); err != nil {
		metrics.RecordToggle(pathGuest, string(g.kind), false, err)
		return false, err
	}
	metrics.RecordToggle(pathGuest, string(g.kind), active, nil)
	g.audit.Toggled(ctx, domain.Identity{DeviceID: g.deviceID}, g.kind, itemID, active)
	return active, nil
}

func (g *GuestOperations) Clear(ctx context.Context) error {
	entries, err := g.store.LoadList(ctx, g.kind, g.deviceID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if err := g.store.SaveList(ctx, g.kind, g.deviceID, domain.ClearEntries(entries, g.clock.Now())); err != nil {
		return err
	}
	metrics.RecordClear(pathGuest, string(g.kind))
	g.audit.Cleared(ctx, domain.Identity{DeviceID: g.deviceID}, g.kind)
	return nil
}

// UserOperations runs the list contract against durable rows, one per
// (user, kind, item).
type UserOperations struct {
	repo   domain.UserListRepository
	kind   domain.ListKind
	userID uuid.UUID
	audit  *audit.Logger
}

func (u *UserOperations) FetchList(ctx context.Context) ([]string, error) {
	return u.repo.ListActive(ctx, u.userID, u.kind)
}

func (u *UserOperations) Toggle(ctx context.Context, itemID string) (bool, error) {
	itemID = strings.TrimSpace(itemID)
	if err := domain.ValidateItemID(itemID); err != nil {
		return false, err
	}
	status, err := u.repo.Toggle(ctx, u.userID, u.kind, itemID)
	metrics.RecordToggle(pathUser, string(u.kind), status.IsActive(), err)
	if err != nil {
		return false, err
	}
	u.audit.Toggled(ctx, domain.Identity{UserID: u.userID}, u.kind, itemID, status.IsActive())
	return status.IsActive(), nil
}

func (u *UserOperations) Clear(ctx context.Context) error {
	if err := u.repo.ClearAll(ctx, u.userID, u.kind); err != nil {
		return err
	}
	metrics.RecordClear(pathUser, string(u.kind))
	u.audit.Cleared(ctx, domain.Identity{UserID: u.userID}, u.kind)
	return nil
}

// Resolver picks the list operations for an identity once, at request
// start. Callers only ever see domain.ListOperations.
type Resolver struct {
	guests domain.GuestListStore
	users  domain.UserListRepository
	clock  domain.Clock
	audit  *audit.Logger
}

func NewResolver(guests domain.GuestListStore, users domain.UserListRepository, clock domain.Clock, auditLog *audit.Logger) *Resolver {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if auditLog == nil {
		auditLog = audit.New(zerolog.Nop())
	}
	return &Resolver{guests: guests, users: users, clock: clock, audit: auditLog}
}

// Resolve returns user operations for an authenticated identity and guest
// operations otherwise.
func (r *Resolver) Resolve(id domain.Identity, kind domain.ListKind) (domain.ListOperations, error) {
	if _, err := domain.ParseListKind(string(kind)); err != nil {
		return nil, err
	}
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if id.Authenticated() {
		return &UserOperations{repo: r.users, kind: kind, userID: id.UserID, audit: r.audit}, nil
	}
	return &GuestOperations{
		store:    r.guests,
		kind:     kind,
		deviceID: strings.TrimSpace(id.DeviceID),
		clock:    r.clock,
		audit:    r.audit,
	}, nil
}

// Merge folds the guest list of id.DeviceID into the account of id.UserID
// with union semantics: every guest-active item ends up active on the
// account, account-only items are kept, and the guest list is soft-cleared.
// It returns how many account rows changed. Nothing runs implicitly on
// login; the caller must ask for it.
func (r *Resolver) Merge(ctx context.Context, id domain.Identity, kind domain.ListKind) (int, error) {
	if _, err := domain.ParseListKind(string(kind)); err != nil {
		return 0, err
	}
	deviceID := strings.TrimSpace(id.DeviceID)
	if !id.Authenticated() || deviceID == "" {
		return 0, domain.ErrMergeNeedsBoth
	}
	if err := domain.ValidateDeviceID(deviceID); err != nil {
		return 0, err
	}

	entries, err := r.guests.LoadList(ctx, kind, deviceID)
	if err != nil {
		return 0, err
	}
	ids := domain.ActiveItemIDs(entries)
	if len(ids) == 0 {
		return 0, nil
	}

	changed, err := r.users.Activate(ctx, id.UserID, kind, ids)
	if err != nil {
		return 0, err
	}
	// The account holds the items now; a failed clear only leaves the guest
	// copy behind and a repeat merge is idempotent.
	if err := r.guests.SaveList(ctx, kind, deviceID, domain.ClearEntries(entries, r.clock.Now())); err != nil {
		return changed, err
	}

	metrics.RecordMerge(string(kind), changed)
	r.audit.Merged(ctx, id, kind, changed)
	return changed, nil
}
