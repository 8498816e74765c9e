// Package client holds the client side of the membership lists: an HTTP
// client for the list endpoints and a Reconciler that keeps an optimistic
// local cache in step with the server.
package client

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/rs/zerolog"
)

var (
	ErrToggleInFlight         = domain.ErrToggleInFlight
	ErrRefetchInProgress      = domain.ErrRefetchInProgress
	ErrReconciliationMismatch = domain.ErrReconciliationMismatch
)

// Dispatcher is the three-call list contract, served by APIClient over HTTP
// or by the service operations in-process.
type Dispatcher interface {
	FetchList(ctx context.Context) ([]string, error)
	Toggle(ctx context.Context, itemID string) (bool, error)
	Clear(ctx context.Context) error
}

type ItemState int

const (
	Idle ItemState = iota
	Pending
	Reconciling
)

func (s ItemState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Reconciling:
		return "reconciling"
	default:
		return "idle"
	}
}

type event int

const (
	evToggle event = iota
	evConfirmed
	evDiverged
	evSettled
)

type itemEntry struct {
	state      ItemState
	optimistic bool
}

const (
	CauseMismatch = "mismatch"
	CauseFailure  = "failure"
	CauseManual   = "manual"
)

type Option func(*Reconciler)

// WithRefetchHook is called once per forced refetch with its cause.
func WithRefetchHook(fn func(cause string)) Option {
	return func(r *Reconciler) { r.onRefetch = fn }
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

// Reconciler owns the local membership cache for one list. Each item moves
// Idle -> Pending -> Idle on a confirmed toggle, or Pending -> Reconciling
// -> Idle when the server disagrees or the call fails. A second toggle of a
// non-idle item is refused, and every toggle is refused while a refetch is
// running.
type Reconciler struct {
	ops Dispatcher

	mu         sync.Mutex
	cache      map[string]bool
	items      map[string]*itemEntry
	refetching bool

	// seq orders server answers against refetch snapshots. confirmed holds
	// the seq at which an item's cached value last came from the server.
	seq       uint64
	confirmed map[string]uint64

	onRefetch func(cause string)
	log       zerolog.Logger
}

func NewReconciler(ops Dispatcher, opts ...Option) *Reconciler {
	r := &Reconciler{
		ops:   ops,
		cache:     make(map[string]bool),
		items:     make(map[string]*itemEntry),
		confirmed: make(map[string]uint64),
		log:       zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Load replaces the cache with server truth.
func (r *Reconciler) Load(ctx context.Context) error {
	return r.refetch(ctx, CauseManual)
}

// Toggle flips itemID optimistically, asks the server, and resyncs through
// a refetch when the answer differs or the call fails. The returned value is
// the server's view of the item.
func (r *Reconciler) Toggle(ctx context.Context, itemID string) (bool, error) {
	r.mu.Lock()
	if r.refetching {
		r.mu.Unlock()
		return false, ErrRefetchInProgress
	}
	target := !r.cache[itemID]
	if err := r.transition(itemID, evToggle, target); err != nil {
		r.mu.Unlock()
		return false, err
	}
	r.mu.Unlock()

	active, err := r.ops.Toggle(ctx, itemID)

	r.mu.Lock()
	if err == nil && active == target {
		_ = r.transition(itemID, evConfirmed, active)
		r.mu.Unlock()
		return active, nil
	}
	cause := CauseFailure
	if err == nil {
		// the server answer is authoritative for this item
		cause = CauseMismatch
		r.cache[itemID] = active
		r.stamp(itemID)
	}
	_ = r.transition(itemID, evDiverged, active)
	r.mu.Unlock()

	ferr := r.refetch(ctx, cause)

	r.mu.Lock()
	if ferr != nil && err != nil {
		// roll back to the last value the server confirmed
		r.cache[itemID] = !target
	}
	_ = r.transition(itemID, evSettled, false)
	r.mu.Unlock()

	switch {
	case err != nil && ferr != nil:
		return !target, errors.Join(err, ferr)
	case err != nil:
		return r.IsActive(itemID), err
	case ferr != nil && !errors.Is(ferr, ErrRefetchInProgress):
		return active, errors.Join(ErrReconciliationMismatch, ferr)
	default:
		return active, nil
	}
}

// Clear soft-clears on the server and then resyncs.
func (r *Reconciler) Clear(ctx context.Context) error {
	r.mu.Lock()
	if r.refetching {
		r.mu.Unlock()
		return ErrRefetchInProgress
	}
	r.mu.Unlock()

	if err := r.ops.Clear(ctx); err != nil {
		_ = r.refetch(ctx, CauseFailure)
		return err
	}
	return r.refetch(ctx, CauseManual)
}

// transition is the only place item state changes. Callers hold mu.
func (r *Reconciler) transition(itemID string, ev event, value bool) error {
	e, ok := r.items[itemID]
	if !ok {
		e = &itemEntry{}
		r.items[itemID] = e
	}

	switch ev {
	case evToggle:
		if e.state != Idle {
			return ErrToggleInFlight
		}
		e.state = Pending
		e.optimistic = value
		r.cache[itemID] = value
	case evConfirmed:
		if e.state == Pending {
			e.state = Idle
			r.cache[itemID] = value
			r.stamp(itemID)
		}
	case evDiverged:
		if e.state == Pending {
			e.state = Reconciling
		}
	case evSettled:
		e.state = Idle
	}

	if e.state == Idle {
		delete(r.items, itemID)
	}
	return nil
}

// stamp records that itemID's cached value is a server answer newer than any
// snapshot already in flight. Callers hold mu.
func (r *Reconciler) stamp(itemID string) {
	r.seq++
	r.confirmed[itemID] = r.seq
}

func (r *Reconciler) refetch(ctx context.Context, cause string) error {
	r.mu.Lock()
	if r.refetching {
		r.mu.Unlock()
		return ErrRefetchInProgress
	}
	r.refetching = true
	since := r.seq
	r.mu.Unlock()

	if r.onRefetch != nil && cause != CauseManual {
		r.onRefetch(cause)
	}

	ids, err := r.ops.FetchList(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.refetching = false
	answered := r.confirmed
	r.confirmed = make(map[string]uint64)
	if err != nil {
		r.log.Warn().Err(err).Str("cause", cause).Msg("list refetch failed, keeping last known state")
		return err
	}

	fresh := make(map[string]bool, len(ids))
	for _, id := range ids {
		fresh[id] = true
	}
	// answers that arrived after the snapshot was requested are newer than it
	for id, at := range answered {
		if at > since {
			fresh[id] = r.cache[id]
		}
	}
	// toggles still waiting on the server keep their optimistic value
	for id, e := range r.items {
		if e.state == Pending {
			fresh[id] = e.optimistic
		}
	}
	r.cache = fresh
	return nil
}

// IsActive reports the cached membership of itemID.
func (r *Reconciler) IsActive(itemID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache[itemID]
}

// Items returns the cached active ids, sorted.
func (r *Reconciler) Items() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.cache))
	for id, on := range r.cache {
		if on {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Reconciler) State(itemID string) ItemState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.items[itemID]; ok {
		return e.state
	}
	return Idle
}

// Refetching reports whether a store-wide refetch is running.
func (r *Reconciler) Refetching() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refetching
}
