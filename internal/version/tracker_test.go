package version

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

type memStore struct {
	mu      sync.Mutex
	plans   map[model.Scope]int64
	modules map[model.Scope]int64
	reads   int
	failing bool
}

func newMemStore() *memStore {
	return &memStore{plans: map[model.Scope]int64{}, modules: map[model.Scope]int64{}}
}

func (m *memStore) LoopMarkerParts(_ context.Context, scope model.Scope) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.failing {
		return 0, 0, errors.New("db down")
	}
	return m.plans[scope], m.modules[scope], nil
}

func (m *memStore) BumpPlanVersion(_ context.Context, _ sqlx.ExtContext, scope model.Scope, floor int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := max(m.plans[scope]+1, floor, m.modules[scope])
	m.plans[scope] = next
	return next, nil
}

type memCache struct {
	values map[model.Scope]int64
}

func (c *memCache) GetMarker(_ context.Context, scope model.Scope) (int64, bool, error) {
	v, ok := c.values[scope]
	return v, ok, nil
}

func (c *memCache) SetMarker(_ context.Context, scope model.Scope, marker int64) error {
	c.values[scope] = marker
	return nil
}

func (c *memCache) InvalidateMarker(_ context.Context, scope model.Scope) error {
	delete(c.values, scope)
	return nil
}

var scope = model.Scope{Kind: model.ScopeGroup, ID: 3, TenantID: 1}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTouchThenChangedSince(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tracker := NewTracker(store, WithClock(fixedClock(time.UnixMilli(1_700_000_000_000))))

	first, err := tracker.Touch(ctx, nil, scope)
	require.NoError(t, err)

	changed, err := tracker.ChangedSince(ctx, scope, first)
	require.NoError(t, err)
	assert.False(t, changed)

	second, err := tracker.Touch(ctx, nil, scope)
	require.NoError(t, err)
	assert.True(t, second.After(first), "markers never repeat even with a frozen clock")

	changed, err = tracker.ChangedSince(ctx, scope, first)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestChangedSinceAbsentMarkerIsAlwaysStale(t *testing.T) {
	tracker := NewTracker(newMemStore())
	changed, err := tracker.ChangedSince(context.Background(), scope, 0)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestCurrentUsesLaterOfPlanAndModules(t *testing.T) {
	store := newMemStore()
	store.plans[scope] = 1000
	store.modules[scope] = 5000
	tracker := NewTracker(store)

	current, err := tracker.Current(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, Marker(5000), current)
}

func TestCurrentReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.plans[scope] = 42
	cache := &memCache{values: map[model.Scope]int64{}}
	tracker := NewTracker(store, WithCache(cache))

	_, err := tracker.Current(ctx, scope)
	require.NoError(t, err)
	_, err = tracker.Current(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 1, store.reads)

	_, err = tracker.Touch(ctx, nil, scope)
	require.NoError(t, err)
	tracker.Invalidate(ctx, scope)

	current, err := tracker.Current(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 2, store.reads)
	assert.Equal(t, Marker(store.plans[scope]), current)
}

func TestCurrentSurfacesStoreErrors(t *testing.T) {
	store := newMemStore()
	store.failing = true
	_, err := NewTracker(store).Current(context.Background(), scope)
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	base := FromTime(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	cases := []struct {
		name   string
		server Marker
		client Marker
		want   Status
	}{
		{"equal", base, base, StatusInSync},
		{"client ahead", base, base + 10, StatusInSync},
		{"absent client", base, 0, StatusMismatch},
		{"within grace", base + Marker(14*time.Minute/time.Millisecond), base, StatusPending},
		{"at grace", base + Marker(15*time.Minute/time.Millisecond), base, StatusMismatch},
		{"far behind", base + Marker(time.Hour/time.Millisecond), base, StatusMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Compare(tc.server, tc.client, DefaultGraceWindow))
		})
	}

	tracker := NewTracker(newMemStore(), WithGraceWindow(time.Hour))
	assert.Equal(t, StatusPending, tracker.Compare(base+Marker(30*time.Minute/time.Millisecond), base))
}

func TestParseMarker(t *testing.T) {
	cases := []struct {
		in   string
		want Marker
	}{
		{"", 0},
		{"1700000000123", 1700000000123},
		{"1700000000", 1700000000000},
		{"2024-01-01T12:00:00Z", FromTime(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))},
		{"2024-01-01 12:00:00", FromTime(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))},
	}
	for _, tc := range cases {
		got, err := ParseMarker(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"yesterday", "-5", "2024-13-01"} {
		_, err := ParseMarker(bad)
		assert.Error(t, err, bad)
	}
}
