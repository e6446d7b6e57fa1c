package loopplan

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/metrics"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/schedule"
)

const DefaultEnrichTimeout = 2 * time.Second

// ConfigLoader reads a scope's stored configuration. The returned Version must describe
// exactly the rows returned with it.
type ConfigLoader interface {
	LoadLoopConfig(ctx context.Context, scope model.Scope) (model.LoopConfig, error)
}

type Resolver struct {
	store         ConfigLoader
	catalog       *Catalog
	enricher      SettingsEnricher
	enrichTimeout time.Duration
	metrics       *metrics.Metrics
}

type ResolverOption func(*Resolver)

func WithEnricher(e SettingsEnricher) ResolverOption {
	return func(r *Resolver) { r.enricher = e }
}

func WithEnrichTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.enrichTimeout = d }
}

func WithMetrics(m *metrics.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

func NewResolver(store ConfigLoader, catalog *Catalog, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:         store,
		catalog:       catalog,
		enricher:      NewRegistry(),
		enrichTimeout: DefaultEnrichTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ScopeFor picks the configuration that applies to a kiosk: its own when it has any
// enabled module, else its group's. The returned config is empty for ScopeNone.
func (r *Resolver) ScopeFor(ctx context.Context, kiosk *model.Kiosk) (model.Scope, model.LoopConfig, error) {
	device := model.Scope{Kind: model.ScopeDevice, ID: kiosk.ID, TenantID: kiosk.TenantID}
	cfg, err := r.store.LoadLoopConfig(ctx, device)
	if err != nil {
		return device, cfg, err
	}
	if cfg.HasEnabledModules() {
		return device, cfg, nil
	}
	if kiosk.GroupID == nil {
		return model.Scope{Kind: model.ScopeNone, TenantID: kiosk.TenantID}, model.LoopConfig{}, nil
	}

	group := model.Scope{Kind: model.ScopeGroup, ID: *kiosk.GroupID, TenantID: kiosk.TenantID}
	cfg, err = r.store.LoadLoopConfig(ctx, group)
	return group, cfg, err
}

// Resolve computes the plan a kiosk should be playing at the given instant. The plan's
// version marker comes from the same read as its modules.
func (r *Resolver) Resolve(ctx context.Context, kiosk *model.Kiosk, at time.Time) (model.LoopPlan, error) {
	scope, cfg, err := r.ScopeFor(ctx, kiosk)
	if err != nil {
		return model.LoopPlan{}, err
	}

	plan := model.LoopPlan{
		ActiveScope: model.ActiveBase,
		ScopeKind:   scope.Kind,
		ScopeID:     scope.ID,
		ComputedAt:  at,
	}
	if scope.Kind != model.ScopeNone {
		plan.Version = cfg.Version
	}

	windows := blockWindows(cfg.Blocks)
	plan.NextChangeAt = schedule.NextChange(windows, at)

	var modules []model.ModuleReference
	if winner := activeBlock(cfg.Blocks, windows, at); winner != nil {
		plan.ActiveScope = model.ActiveBlock
		plan.ActiveBlockID = winner.ID
		plan.ActiveBlockName = winner.Window.Name
		modules = enabledModules(winner.Modules)
	} else {
		modules = enabledModules(cfg.Base)
	}

	if len(modules) == 0 {
		plan.ActiveScope = model.ActivePlaceholder
		modules = []model.ModuleReference{r.placeholder(scope.Kind)}
	}

	plan.Modules = r.enrich(withPlanTime(ctx, at), scope, modules)
	plan.PreloadModules = preloadKeys(cfg, plan.Modules)
	return plan, nil
}

func blockWindows(blocks []model.ContentBlock) []model.TimeWindow {
	windows := make([]model.TimeWindow, 0, len(blocks))
	for _, b := range blocks {
		if b.Window != nil {
			windows = append(windows, *b.Window)
		}
	}
	return windows
}

func activeBlock(blocks []model.ContentBlock, windows []model.TimeWindow, at time.Time) *model.ContentBlock {
	winner := schedule.Resolve(windows, at)
	if winner == nil {
		return nil
	}
	for i := range blocks {
		if blocks[i].Window != nil && blocks[i].Window.ID == winner.ID {
			return &blocks[i]
		}
	}
	return nil
}

func enabledModules(in []model.ModuleReference) []model.ModuleReference {
	out := make([]model.ModuleReference, 0, len(in))
	for _, m := range in {
		if m.Enabled {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Resolver) placeholder(source model.ScopeKind) model.ModuleReference {
	meta := model.ModuleMeta{Key: model.UnconfiguredModuleKey, Name: "Not configured", DefaultDuration: 60}
	if r.catalog != nil {
		meta = r.catalog.Placeholder()
	}
	return model.ModuleReference{
		ModuleID:        meta.ID,
		ModuleKey:       meta.Key,
		ModuleName:      meta.Name,
		DurationSeconds: meta.DefaultDuration,
		Settings:        model.ModuleSettings{Kind: model.SettingsRaw, Raw: map[string]any{}},
		Enabled:         true,
		Source:          source,
	}
}

// enrich never fails the plan; a module whose enricher errors keeps its stored settings.
func (r *Resolver) enrich(ctx context.Context, scope model.Scope, modules []model.ModuleReference) []model.ModuleReference {
	if r.enricher == nil {
		return modules
	}
	out := make([]model.ModuleReference, len(modules))
	for i, m := range modules {
		settings, err := enrichWithTimeout(ctx, r.enricher, r.enrichTimeout, m.ModuleKey, m.Settings, scope)
		if err != nil {
			log.Warn().Err(err).
				Str("module_key", m.ModuleKey).
				Str("scope", scope.String()).
				Msg("settings enrichment failed, using stored settings")
			r.metrics.EnrichFailed(m.ModuleKey)
			settings = m.Settings
		}
		m.Settings = settings
		out[i] = m
	}
	return out
}

// preloadKeys lists each distinct enabled module key of the scope once, in first-seen
// order, so devices can fetch assets for upcoming blocks.
func preloadKeys(cfg model.LoopConfig, active []model.ModuleReference) []string {
	seen := map[string]bool{}
	var keys []string
	add := func(mods []model.ModuleReference) {
		for _, m := range mods {
			if !m.Enabled || seen[m.ModuleKey] {
				continue
			}
			seen[m.ModuleKey] = true
			keys = append(keys, m.ModuleKey)
		}
	}
	add(active)
	add(cfg.Base)
	for _, b := range cfg.Blocks {
		add(b.Modules)
	}
	return keys
}
