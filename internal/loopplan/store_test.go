package loopplan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/db"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

// memStore is an in-memory Store. WithTx restores configs and plan versions when fn fails.
type memStore struct {
	mu         sync.Mutex
	configs    map[string]model.LoopConfig
	plans      map[string]int64
	kiosks     map[int64]*model.Kiosk
	groups     map[int64]*model.KioskGroup
	allowed    map[string]bool
	modules    map[string]*model.ModuleMeta
	lookups    int
	replaceErr error
	nextID     int64

	collections map[int64]*model.TextCollection
	locked      []string

	// beforeTx runs as WithTx starts, outside any snapshot, like a writer that commits
	// just ahead of this transaction.
	beforeTx func()
}

func newMemStore() *memStore {
	return &memStore{
		configs: map[string]model.LoopConfig{},
		plans:   map[string]int64{},
		kiosks:  map[int64]*model.Kiosk{},
		groups:  map[int64]*model.KioskGroup{},
		allowed: map[string]bool{"clock": true, "text": true, "video": true, model.UnconfiguredModuleKey: true},
		modules: map[string]*model.ModuleMeta{},
		nextID:  100,

		collections: map[int64]*model.TextCollection{},
	}
}

func (m *memStore) put(scope model.Scope, cfg model.LoopConfig) {
	cfg.Scope = scope
	m.configs[scope.String()] = cfg
}

func (m *memStore) LoadLoopConfig(_ context.Context, scope model.Scope) (model.LoopConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[scope.String()]
	if !ok {
		return model.LoopConfig{Scope: scope}, nil
	}
	cfg.Scope = scope
	cfg.Version = m.plans[scope.String()]
	return cfg, nil
}

func (m *memStore) LoadLoopConfigTx(ctx context.Context, _ sqlx.ExtContext, scope model.Scope) (model.LoopConfig, error) {
	return m.LoadLoopConfig(ctx, scope)
}

func (m *memStore) LockLoopScope(_ context.Context, _ sqlx.ExtContext, scope model.Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = append(m.locked, scope.String())
	return nil
}

func (m *memStore) GetTextCollection(_ context.Context, id int64) (*model.TextCollection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.collections[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (m *memStore) CreateTextCollection(_ context.Context, c *model.TextCollection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	cp := *c
	m.collections[c.ID] = &cp
	return nil
}

func (m *memStore) UpdateTextCollection(_ context.Context, _ sqlx.ExtContext, c *model.TextCollection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[c.ID]; !ok {
		return db.ErrNotFound
	}
	cp := *c
	m.collections[c.ID] = &cp
	return nil
}

func (m *memStore) ScopesUsingCollection(_ context.Context, _ sqlx.ExtContext, id int64) ([]model.Scope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Scope
	for _, cfg := range m.configs {
		mods := append([]model.ModuleReference{}, cfg.Base...)
		for _, b := range cfg.Blocks {
			mods = append(mods, b.Modules...)
		}
		for _, mod := range mods {
			if mod.ModuleKey == "text" && mod.Settings.CollectionID() == id {
				out = append(out, cfg.Scope)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) GetKioskByID(_ context.Context, id int64) (*model.Kiosk, error) {
	if k, ok := m.kiosks[id]; ok {
		return k, nil
	}
	return nil, db.ErrNotFound
}

func (m *memStore) GetGroupByID(_ context.Context, id int64) (*model.KioskGroup, error) {
	if g, ok := m.groups[id]; ok {
		return g, nil
	}
	return nil, db.ErrNotFound
}

func (m *memStore) AllowedModuleKeys(context.Context, int64) (map[string]bool, error) {
	return m.allowed, nil
}

func (m *memStore) GetModuleByKey(_ context.Context, key string) (*model.ModuleMeta, error) {
	m.lookups++
	if meta, ok := m.modules[key]; ok {
		cp := *meta
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (m *memStore) ReplaceLoopConfig(_ context.Context, _ sqlx.ExtContext, cfg model.LoopConfig) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	assign := func(mods []model.ModuleReference, blockID *int64) {
		for i := range mods {
			m.nextID++
			mods[i].ID = m.nextID
			mods[i].BlockID = blockID
		}
	}
	assign(cfg.Base, nil)
	for i := range cfg.Blocks {
		m.nextID++
		id := m.nextID
		cfg.Blocks[i].ID = &id
		cfg.Blocks[i].Window.ID = id
		assign(cfg.Blocks[i].Modules, &id)
	}
	m.configs[cfg.Scope.String()] = cfg
	return nil
}

func (m *memStore) LoopMarkerParts(_ context.Context, scope model.Scope) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plans[scope.String()], 0, nil
}

func (m *memStore) BumpPlanVersion(_ context.Context, _ sqlx.ExtContext, scope model.Scope, floor int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := max(m.plans[scope.String()]+1, floor)
	m.plans[scope.String()] = v
	return v, nil
}

func (m *memStore) WithTx(_ context.Context, fn func(tx *sqlx.Tx) error) error {
	if hook := m.beforeTx; hook != nil {
		m.beforeTx = nil
		hook()
	}
	m.mu.Lock()
	configs := make(map[string]model.LoopConfig, len(m.configs))
	for k, v := range m.configs {
		configs[k] = v
	}
	plans := make(map[string]int64, len(m.plans))
	for k, v := range m.plans {
		plans[k] = v
	}
	m.mu.Unlock()

	if err := fn(nil); err != nil {
		m.mu.Lock()
		m.configs, m.plans = configs, plans
		m.mu.Unlock()
		return err
	}
	return nil
}

var errBoom = errors.New("boom")

// monday is 2024-01-01, a Monday, at the given wall clock time in UTC.
func monday(hour, minute int) time.Time {
	return time.Date(2024, 1, 1, hour, minute, 0, 0, time.UTC)
}

func ref(id int64, key string, order int) model.ModuleReference {
	return model.ModuleReference{
		ID:              id,
		ModuleKey:       key,
		DurationSeconds: 10,
		Settings:        model.ModuleSettings{Kind: model.SettingsRaw, Raw: map[string]any{}},
		DisplayOrder:    order,
		Enabled:         true,
	}
}

func block(id int64, name string, days model.DayMask, start, end model.ClockTime, mods ...model.ModuleReference) model.ContentBlock {
	blockID := id
	return model.ContentBlock{
		ID: &blockID,
		Window: &model.TimeWindow{
			ID:       id,
			Name:     name,
			Kind:     model.WindowWeekly,
			Days:     days,
			Start:    start,
			End:      end,
			Priority: 100,
			Enabled:  true,
		},
		Modules: mods,
	}
}

func keys(mods []model.ModuleReference) []string {
	out := make([]string, len(mods))
	for i, m := range mods {
		out[i] = m.ModuleKey
	}
	return out
}
