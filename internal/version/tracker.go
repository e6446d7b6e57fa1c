package version

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

// Status is the outcome of comparing a device's marker with the server's.
type Status string

const (
	StatusInSync   Status = "in_sync"
	StatusPending  Status = "pending"
	StatusMismatch Status = "mismatch"
)

// DefaultGraceWindow is how long a newer server marker is reported as pending.
const DefaultGraceWindow = 15 * time.Minute

// Store is the persistence the tracker needs.
type Store interface {
	LoopMarkerParts(ctx context.Context, scope model.Scope) (planVersion int64, modulesUpdated int64, err error)
	BumpPlanVersion(ctx context.Context, tx sqlx.ExtContext, scope model.Scope, floor int64) (int64, error)
}

// Cache is an optional read-through cache for current markers.
type Cache interface {
	GetMarker(ctx context.Context, scope model.Scope) (int64, bool, error)
	SetMarker(ctx context.Context, scope model.Scope, marker int64) error
	InvalidateMarker(ctx context.Context, scope model.Scope) error
}

type Tracker struct {
	store Store
	cache Cache
	grace time.Duration
	now   func() time.Time
}

type Option func(*Tracker)

func WithCache(c Cache) Option {
	return func(t *Tracker) { t.cache = c }
}

func WithGraceWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.grace = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{store: store, grace: DefaultGraceWindow, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) GraceWindow() time.Duration {
	return t.grace
}

// Touch bumps the scope's marker inside tx. Call Invalidate once tx has committed.
func (t *Tracker) Touch(ctx context.Context, tx sqlx.ExtContext, scope model.Scope) (Marker, error) {
	v, err := t.store.BumpPlanVersion(ctx, tx, scope, t.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return Marker(v), nil
}

// Invalidate drops any cached marker for the scope.
func (t *Tracker) Invalidate(ctx context.Context, scope model.Scope) {
	if t.cache == nil {
		return
	}
	if err := t.cache.InvalidateMarker(ctx, scope); err != nil {
		log.Warn().Err(err).Str("scope", scope.String()).Msg("marker cache invalidate failed")
	}
}

// Current returns the later of the plan version and the newest module update.
func (t *Tracker) Current(ctx context.Context, scope model.Scope) (Marker, error) {
	if t.cache != nil {
		v, ok, err := t.cache.GetMarker(ctx, scope)
		if err != nil {
			log.Warn().Err(err).Str("scope", scope.String()).Msg("marker cache read failed")
		} else if ok {
			return Marker(v), nil
		}
	}

	plan, modules, err := t.store.LoopMarkerParts(ctx, scope)
	if err != nil {
		return 0, err
	}
	current := Later(Marker(plan), Marker(modules))

	if t.cache != nil {
		if err := t.cache.SetMarker(ctx, scope, int64(current)); err != nil {
			log.Warn().Err(err).Str("scope", scope.String()).Msg("marker cache write failed")
		}
	}
	return current, nil
}

// ChangedSince is true when the client marker is absent or older than the current one.
func (t *Tracker) ChangedSince(ctx context.Context, scope model.Scope, client Marker) (bool, error) {
	if client.IsZero() {
		return true, nil
	}
	current, err := t.Current(ctx, scope)
	if err != nil {
		return false, err
	}
	return current.After(client), nil
}

// Compare classifies a client marker against the server marker using the tracker's
// grace window.
func (t *Tracker) Compare(server, client Marker) Status {
	return Compare(server, client, t.grace)
}

// Compare reports in_sync when the client is current, pending when the server is newer
// by less than grace, and mismatch otherwise. An absent client marker is a mismatch.
func Compare(server, client Marker, grace time.Duration) Status {
	if client.IsZero() {
		return StatusMismatch
	}
	if !server.After(client) {
		return StatusInSync
	}
	if server.Time().Sub(client.Time()) < grace {
		return StatusPending
	}
	return StatusMismatch
}
