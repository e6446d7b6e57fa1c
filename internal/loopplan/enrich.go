package loopplan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

// SettingsEnricher fills request-time values into a module's settings before a plan is
// handed to a device.
type SettingsEnricher interface {
	Enrich(ctx context.Context, moduleKey string, settings model.ModuleSettings, scope model.Scope) (model.ModuleSettings, error)
}

type EnricherFunc func(ctx context.Context, moduleKey string, settings model.ModuleSettings, scope model.Scope) (model.ModuleSettings, error)

func (f EnricherFunc) Enrich(ctx context.Context, moduleKey string, settings model.ModuleSettings, scope model.Scope) (model.ModuleSettings, error) {
	return f(ctx, moduleKey, settings, scope)
}

// Registry dispatches by module key. Keys without an enricher pass through unchanged.
type Registry struct {
	mu        sync.RWMutex
	enrichers map[string]SettingsEnricher
}

func NewRegistry() *Registry {
	return &Registry{enrichers: map[string]SettingsEnricher{}}
}

type planTimeKey struct{}

func withPlanTime(ctx context.Context, at time.Time) context.Context {
	return context.WithValue(ctx, planTimeKey{}, at)
}

// PlanTime is the instant the plan being enriched is resolved for, or time.Now outside
// of a resolve.
func PlanTime(ctx context.Context) time.Time {
	if at, ok := ctx.Value(planTimeKey{}).(time.Time); ok {
		return at
	}
	return time.Now()
}

// DefaultRegistry carries the built-in enrichers evaluated in loc. Text modules are
// only enriched when collections is set.
func DefaultRegistry(loc *time.Location, collections CollectionReader) *Registry {
	r := NewRegistry()
	r.Register("clock", ClockEnricher(loc))
	if collections != nil {
		r.Register("text", CollectionEnricher(collections))
	}
	return r
}

func (r *Registry) Register(moduleKey string, e SettingsEnricher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enrichers[moduleKey] = e
}

func (r *Registry) Enrich(ctx context.Context, moduleKey string, settings model.ModuleSettings, scope model.Scope) (model.ModuleSettings, error) {
	r.mu.RLock()
	e, ok := r.enrichers[moduleKey]
	r.mu.RUnlock()
	if !ok {
		return settings, nil
	}
	return e.Enrich(ctx, moduleKey, settings, scope)
}

// ClockEnricher sets "date" to the plan's date in loc.
func ClockEnricher(loc *time.Location) EnricherFunc {
	if loc == nil {
		loc = time.UTC
	}
	return func(ctx context.Context, _ string, settings model.ModuleSettings, _ model.Scope) (model.ModuleSettings, error) {
		return settings.With("date", PlanTime(ctx).In(loc).Format(model.DateLayout))
	}
}

var errEnrichTimeout = errors.New("enrichment timed out")

// enrichWithTimeout bounds one enricher call. A slow enricher keeps running in its own
// goroutine but its result is discarded.
func enrichWithTimeout(ctx context.Context, e SettingsEnricher, timeout time.Duration, moduleKey string, settings model.ModuleSettings, scope model.Scope) (model.ModuleSettings, error) {
	if timeout <= 0 {
		return e.Enrich(ctx, moduleKey, settings, scope)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		settings model.ModuleSettings
		err      error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("enricher panic: %v", p)}
			}
		}()
		s, err := e.Enrich(ctx, moduleKey, settings, scope)
		done <- result{settings: s, err: err}
	}()

	select {
	case r := <-done:
		return r.settings, r.err
	case <-ctx.Done():
		return settings, errEnrichTimeout
	}
}
