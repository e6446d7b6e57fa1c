package loopplan

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/apperror"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/db"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/metrics"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/schedule"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/version"
)

// Store is the persistence the save path needs.
type Store interface {
	ConfigLoader
	CollectionReader
	GetKioskByID(ctx context.Context, id int64) (*model.Kiosk, error)
	GetGroupByID(ctx context.Context, id int64) (*model.KioskGroup, error)
	AllowedModuleKeys(ctx context.Context, tenantID int64) (map[string]bool, error)
	LoadLoopConfigTx(ctx context.Context, tx sqlx.ExtContext, scope model.Scope) (model.LoopConfig, error)
	LockLoopScope(ctx context.Context, tx sqlx.ExtContext, scope model.Scope) error
	ReplaceLoopConfig(ctx context.Context, tx sqlx.ExtContext, cfg model.LoopConfig) error
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

type ModuleInput struct {
	// ID addresses an existing module in settings-only edits.
	ID              int64                `json:"id,omitempty"`
	ModuleKey       string               `json:"module_key"       validate:"required,max=100"`
	DurationSeconds int                  `json:"duration_seconds" validate:"gte=0,lte=86400"`
	Settings        model.ModuleSettings `json:"settings"`
	DisplayOrder    *int                 `json:"display_order,omitempty"`
	Enabled         *bool                `json:"enabled,omitempty"`
}

type BlockInput struct {
	Name         string           `json:"name"                    validate:"max=200"`
	Kind         model.WindowKind `json:"kind"                    validate:"required,oneof=weekly date"`
	Days         model.DayMask    `json:"days"`
	SpecificDate *string          `json:"specific_date,omitempty"`
	Start        model.ClockTime  `json:"start_time"`
	End          model.ClockTime  `json:"end_time"`
	Priority     *int             `json:"priority,omitempty"`
	DisplayOrder *int             `json:"display_order,omitempty"`
	Enabled      *bool            `json:"enabled,omitempty"`
	Modules      []ModuleInput    `json:"modules"                 validate:"dive"`
}

type SaveRequest struct {
	Base         []ModuleInput `json:"base"          validate:"dive"`
	Blocks       []BlockInput  `json:"blocks"        validate:"dive"`
	SettingsOnly bool          `json:"settings_only"`
}

const (
	saveOK       = "ok"
	saveRejected = "rejected"
	saveError    = "error"
)

var requestValidator = validator.New()

type Service struct {
	store   Store
	catalog *Catalog
	tracker *version.Tracker
	metrics *metrics.Metrics
}

func NewService(store Store, catalog *Catalog, tracker *version.Tracker, m *metrics.Metrics) *Service {
	return &Service{store: store, catalog: catalog, tracker: tracker, metrics: m}
}

// Load returns the stored configuration of a scope in the caller's tenant.
func (s *Service) Load(ctx context.Context, id *model.Identity, scope model.Scope) (model.LoopConfig, error) {
	if id == nil || id.Role == model.RoleDevice {
		return model.LoopConfig{}, apperror.ErrForbidden
	}
	scope, err := s.authorize(ctx, id, scope)
	if err != nil {
		return model.LoopConfig{}, err
	}
	cfg, err := s.store.LoadLoopConfig(ctx, scope)
	if err != nil {
		return model.LoopConfig{}, apperror.Storage(err)
	}
	cfg.Scope = scope
	return cfg, nil
}

// Save replaces a scope's configuration and bumps its marker in one transaction.
func (s *Service) Save(ctx context.Context, id *model.Identity, scope model.Scope, req SaveRequest) (version.Marker, error) {
	marker, err := s.save(ctx, id, scope, req)
	switch {
	case err == nil:
		s.metrics.LoopSaved(saveOK)
	case errors.Is(err, apperror.ErrStorage):
		s.metrics.LoopSaved(saveError)
	default:
		s.metrics.LoopSaved(saveRejected)
	}
	return marker, err
}

func (s *Service) save(ctx context.Context, id *model.Identity, scope model.Scope, req SaveRequest) (version.Marker, error) {
	if req.SettingsOnly {
		if !id.CanEditContent() {
			return 0, apperror.ErrForbidden
		}
	} else if !id.IsAdmin() {
		return 0, apperror.ErrForbidden
	}

	scope, err := s.authorize(ctx, id, scope)
	if err != nil {
		return 0, err
	}
	if err := requestValidator.Struct(req); err != nil {
		return 0, apperror.Validation("%v", err)
	}

	var cfg model.LoopConfig
	if !req.SettingsOnly {
		if cfg, err = s.build(ctx, scope, req); err != nil {
			return 0, err
		}
	}

	// Writers of one scope are serialized, and a settings edit reads the stored
	// configuration only once it holds the lock.
	var marker version.Marker
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.store.LockLoopScope(ctx, tx, scope); err != nil {
			return err
		}
		if req.SettingsOnly {
			stored, err := s.store.LoadLoopConfigTx(ctx, tx, scope)
			if err != nil {
				return err
			}
			stored.Scope = scope
			if cfg, err = s.applySettings(ctx, stored, req); err != nil {
				return err
			}
		}
		if err := s.store.ReplaceLoopConfig(ctx, tx, cfg); err != nil {
			return err
		}
		m, err := s.tracker.Touch(ctx, tx, scope)
		if err != nil {
			return err
		}
		marker = m
		return nil
	})
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return 0, appErr
		}
		log.Error().Err(err).Str("scope", scope.String()).Msg("save loop config failed")
		return 0, apperror.Storage(err)
	}

	s.tracker.Invalidate(ctx, scope)
	log.Info().
		Str("scope", scope.String()).
		Str("subject", id.Subject).
		Int64("version", int64(marker)).
		Bool("settings_only", req.SettingsOnly).
		Msg("loop config saved")
	return marker, nil
}

// authorize resolves the scope's tenant and checks it against the caller.
func (s *Service) authorize(ctx context.Context, id *model.Identity, scope model.Scope) (model.Scope, error) {
	var tenantID int64
	switch scope.Kind {
	case model.ScopeDevice:
		k, err := s.store.GetKioskByID(ctx, scope.ID)
		if errors.Is(err, db.ErrNotFound) {
			return scope, apperror.Clone(apperror.ErrNotFound, "kiosk not found")
		}
		if err != nil {
			return scope, apperror.Storage(err)
		}
		tenantID = k.TenantID
	case model.ScopeGroup:
		g, err := s.store.GetGroupByID(ctx, scope.ID)
		if errors.Is(err, db.ErrNotFound) {
			return scope, apperror.Clone(apperror.ErrNotFound, "group not found")
		}
		if err != nil {
			return scope, apperror.Storage(err)
		}
		tenantID = g.TenantID
	default:
		return scope, apperror.Validation("unknown scope kind %q", scope.Kind)
	}

	if !id.OwnsTenant(tenantID) {
		log.Warn().Str("subject", id.Subject).Str("scope", scope.String()).Msg("cross-tenant loop access denied")
		return scope, apperror.ErrForbidden
	}
	scope.TenantID = tenantID
	return scope, nil
}

func (s *Service) build(ctx context.Context, scope model.Scope, req SaveRequest) (model.LoopConfig, error) {
	allowed, err := s.store.AllowedModuleKeys(ctx, scope.TenantID)
	if err != nil {
		return model.LoopConfig{}, apperror.Storage(err)
	}

	cfg := model.LoopConfig{Scope: scope}
	if cfg.Base, err = s.modules(ctx, scope, req.Base, allowed); err != nil {
		return cfg, err
	}

	windows := make([]model.TimeWindow, 0, len(req.Blocks))
	for i, in := range req.Blocks {
		w := model.TimeWindow{
			ID:           int64(i + 1),
			Name:         in.Name,
			Kind:         in.Kind,
			Days:         in.Days.Normalize(),
			SpecificDate: in.SpecificDate,
			Start:        in.Start,
			End:          in.End,
			Priority:     in.Kind.DefaultPriority(),
			DisplayOrder: i,
			Enabled:      true,
		}
		if in.Priority != nil {
			w.Priority = *in.Priority
		}
		if in.DisplayOrder != nil {
			w.DisplayOrder = *in.DisplayOrder
		}
		if in.Enabled != nil {
			w.Enabled = *in.Enabled
		}
		if w.Kind == model.WindowWeekly {
			w.SpecificDate = nil
		}
		if err := schedule.CheckWindow(w); err != nil {
			return cfg, apperror.Validation("%v", err)
		}

		mods, err := s.modules(ctx, scope, in.Modules, allowed)
		if err != nil {
			return cfg, err
		}
		window := w
		cfg.Blocks = append(cfg.Blocks, model.ContentBlock{Window: &window, Modules: mods})
		windows = append(windows, w)
	}

	if err := schedule.Validate(windows); err != nil {
		var conflict *schedule.ConflictError
		if errors.As(err, &conflict) {
			return cfg, apperror.Wrap(err, apperror.ErrConflict, conflict.Error()).WithDetails(conflict.Labels())
		}
		return cfg, apperror.Validation("%v", err)
	}
	return cfg, nil
}

func (s *Service) modules(ctx context.Context, scope model.Scope, in []ModuleInput, allowed map[string]bool) ([]model.ModuleReference, error) {
	out := make([]model.ModuleReference, 0, len(in))
	for i, m := range in {
		meta, err := s.catalog.Get(ctx, m.ModuleKey)
		if err != nil {
			return nil, err
		}
		settings, duration, err := normalizeSettings(meta, m)
		if err != nil {
			return nil, err
		}
		if err := checkCollection(ctx, s.store, scope, settings); err != nil {
			return nil, err
		}
		if !allowed[m.ModuleKey] {
			return nil, apperror.Validation("module %q is not enabled for this tenant", m.ModuleKey)
		}

		ref := model.ModuleReference{
			ModuleID:        meta.ID,
			ModuleKey:       meta.Key,
			ModuleName:      meta.Name,
			DurationSeconds: duration,
			Settings:        settings,
			DisplayOrder:    i,
			Enabled:         true,
			Source:          scope.Kind,
		}
		if m.DisplayOrder != nil {
			ref.DisplayOrder = *m.DisplayOrder
		}
		if m.Enabled != nil {
			ref.Enabled = *m.Enabled
		}
		out = append(out, ref)
	}
	return out, nil
}

// normalizeSettings validates the payload for the module's kind and settles the play
// duration. Video modules play for their clamped video duration.
func normalizeSettings(meta model.ModuleMeta, in ModuleInput) (model.ModuleSettings, int, error) {
	duration := in.DurationSeconds
	if duration == 0 {
		duration = meta.DefaultDuration
	}

	raw := in.Settings
	if meta.Kind == model.SettingsVideo {
		if _, ok := raw.Raw["videoDurationSec"]; !ok {
			var err error
			if raw, err = raw.With("videoDurationSec", duration); err != nil {
				return model.ModuleSettings{}, 0, apperror.Validation("module %q: %v", meta.Key, err)
			}
		}
	}

	settings, err := raw.Normalize(meta.Kind)
	if err != nil {
		return model.ModuleSettings{}, 0, apperror.Validation("module %q: %v", meta.Key, err)
	}
	if settings.Video != nil {
		duration = settings.Video.DurationSec
	}
	return settings, duration, nil
}

// applySettings overlays settings and durations onto the stored configuration. Blocks,
// windows and module order are left untouched so no conflict check is needed.
func (s *Service) applySettings(ctx context.Context, cfg model.LoopConfig, req SaveRequest) (model.LoopConfig, error) {
	refs := map[int64]*model.ModuleReference{}
	for i := range cfg.Base {
		refs[cfg.Base[i].ID] = &cfg.Base[i]
	}
	for b := range cfg.Blocks {
		for i := range cfg.Blocks[b].Modules {
			m := &cfg.Blocks[b].Modules[i]
			refs[m.ID] = m
		}
	}

	inputs := append([]ModuleInput{}, req.Base...)
	for _, b := range req.Blocks {
		inputs = append(inputs, b.Modules...)
	}
	for _, in := range inputs {
		ref, ok := refs[in.ID]
		if !ok {
			return cfg, apperror.Validation("module %d is not part of this loop", in.ID)
		}
		if in.ModuleKey != ref.ModuleKey {
			return cfg, apperror.Validation("module %d cannot change from %q to %q in a settings edit", in.ID, ref.ModuleKey, in.ModuleKey)
		}
		meta, err := s.catalog.Get(ctx, ref.ModuleKey)
		if err != nil {
			return cfg, err
		}
		if in.DurationSeconds == 0 {
			in.DurationSeconds = ref.DurationSeconds
		}
		settings, duration, err := normalizeSettings(meta, in)
		if err != nil {
			return cfg, err
		}
		if err := checkCollection(ctx, s.store, cfg.Scope, settings); err != nil {
			return cfg, err
		}
		ref.Settings = settings
		ref.DurationSeconds = duration
	}
	return cfg, nil
}
