// Package dbtest provides an in-memory db.Store for handler and service tests.
package dbtest

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/db"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

// MemoryStore keeps everything in maps. WithTx snapshots loop, power and collection
// state and restores it when fn fails. Locked lists the scopes LockLoopScope was called
// for, in order. It is safe for concurrent use.
type MemoryStore struct {
	mu sync.Mutex

	Kiosks   map[int64]*model.Kiosk
	Groups   map[int64]*model.KioskGroup
	Modules  map[string]*model.ModuleMeta
	Allowed  map[int64]map[string]bool
	Configs  map[string]model.LoopConfig
	Plans    map[string]int64
	Power    map[int64]*model.PowerSchedule
	Status   []model.PowerStatusLog
	SyncLogs []model.SyncLog

	Collections map[int64]*model.TextCollection
	Locked      []string

	nextID int64
}

var _ db.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Kiosks:  map[int64]*model.Kiosk{},
		Groups:  map[int64]*model.KioskGroup{},
		Modules: map[string]*model.ModuleMeta{},
		Allowed: map[int64]map[string]bool{},
		Configs: map[string]model.LoopConfig{},
		Plans:   map[string]int64{},
		Power:   map[int64]*model.PowerSchedule{},
		nextID:  1000,

		Collections: map[int64]*model.TextCollection{},
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// AddKiosk registers a kiosk and returns it.
func (m *MemoryStore) AddKiosk(id int64, deviceID string, tenantID int64, groupID *int64) *model.Kiosk {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := &model.Kiosk{ID: id, DeviceID: deviceID, TenantID: tenantID, GroupID: groupID, CreatedAt: time.Now()}
	m.Kiosks[id] = k
	return k
}

func (m *MemoryStore) AddGroup(id, tenantID int64, name string) *model.KioskGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := &model.KioskGroup{ID: id, TenantID: tenantID, Name: name}
	m.Groups[id] = g
	return g
}

// Allow licenses module keys for a tenant.
func (m *MemoryStore) Allow(tenantID int64, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Allowed[tenantID] == nil {
		m.Allowed[tenantID] = map[string]bool{}
	}
	for _, k := range keys {
		m.Allowed[tenantID][k] = true
	}
}

func (m *MemoryStore) GetKioskByID(_ context.Context, id int64) (*model.Kiosk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.Kiosks[id]; ok {
		cp := *k
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (m *MemoryStore) GetKioskByDeviceID(_ context.Context, deviceID string) (*model.Kiosk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.Kiosks {
		if k.DeviceID == deviceID {
			cp := *k
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *MemoryStore) GetGroupByID(_ context.Context, id int64) (*model.KioskGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.Groups[id]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (m *MemoryStore) RecordKioskSeen(_ context.Context, kioskID int64, reported int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.Kiosks[kioskID]
	if !ok {
		return db.ErrNotFound
	}
	k.LastSeenAt = &at
	k.ReportedVersion = reported
	return nil
}

func (m *MemoryStore) InsertSyncLog(_ context.Context, entry *model.SyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = m.id()
	m.SyncLogs = append(m.SyncLogs, *entry)
	return nil
}

func (m *MemoryStore) LoadLoopConfig(_ context.Context, scope model.Scope) (model.LoopConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := m.Configs[scope.String()]
	cfg.Scope = scope
	cfg.Version = m.Plans[scope.String()]
	return cfg, nil
}

func (m *MemoryStore) LoadLoopConfigTx(ctx context.Context, _ sqlx.ExtContext, scope model.Scope) (model.LoopConfig, error) {
	return m.LoadLoopConfig(ctx, scope)
}

func (m *MemoryStore) LockLoopScope(_ context.Context, _ sqlx.ExtContext, scope model.Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Locked = append(m.Locked, scope.String())
	return nil
}

func (m *MemoryStore) ReplaceLoopConfig(_ context.Context, _ sqlx.ExtContext, cfg model.LoopConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := model.LoopConfig{Scope: cfg.Scope}
	out.Base = m.copyModules(cfg.Base, nil)
	for _, b := range cfg.Blocks {
		if b.Window == nil {
			continue
		}
		id := m.id()
		w := *b.Window
		w.ID = id
		out.Blocks = append(out.Blocks, model.ContentBlock{ID: &id, Window: &w, Modules: m.copyModules(b.Modules, &id)})
	}
	m.Configs[cfg.Scope.String()] = out
	return nil
}

func (m *MemoryStore) copyModules(in []model.ModuleReference, blockID *int64) []model.ModuleReference {
	out := make([]model.ModuleReference, len(in))
	for i, ref := range in {
		ref.ID = m.id()
		ref.BlockID = blockID
		ref.UpdatedAt = time.Now()
		out[i] = ref
	}
	return out
}

func (m *MemoryStore) LoopMarkerParts(_ context.Context, scope model.Scope) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Plans[scope.String()], 0, nil
}

func (m *MemoryStore) BumpPlanVersion(_ context.Context, _ sqlx.ExtContext, scope model.Scope, floor int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := max(m.Plans[scope.String()]+1, floor)
	m.Plans[scope.String()] = v
	return v, nil
}

func (m *MemoryStore) GetTextCollection(_ context.Context, id int64) (*model.TextCollection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.Collections[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (m *MemoryStore) CreateTextCollection(_ context.Context, c *model.TextCollection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.id()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.Collections[c.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateTextCollection(_ context.Context, _ sqlx.ExtContext, c *model.TextCollection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Collections[c.ID]; !ok {
		return db.ErrNotFound
	}
	c.UpdatedAt = time.Now()
	cp := *c
	m.Collections[c.ID] = &cp
	return nil
}

func (m *MemoryStore) ScopesUsingCollection(_ context.Context, _ sqlx.ExtContext, id int64) ([]model.Scope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Scope
	for _, cfg := range m.Configs {
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

func (m *MemoryStore) GetModuleByKey(_ context.Context, key string) (*model.ModuleMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if meta, ok := m.Modules[key]; ok {
		cp := *meta
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (m *MemoryStore) AllowedModuleKeys(_ context.Context, tenantID int64) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]bool{model.UnconfiguredModuleKey: true}
	for k := range m.Allowed[tenantID] {
		out[k] = true
	}
	return out, nil
}

func (m *MemoryStore) GetPowerSchedule(_ context.Context, kioskID int64) (*model.PowerSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Power[kioskID]; ok {
		cp := *s
		cp.Windows = append([]model.PowerWindow(nil), s.Windows...)
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (m *MemoryStore) ReplacePowerSchedule(_ context.Context, _ sqlx.ExtContext, sched model.PowerSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.Power[sched.KioskID]; ok {
		sched.ID = existing.ID
	} else {
		sched.ID = m.id()
	}
	sched.Windows = append([]model.PowerWindow(nil), sched.Windows...)
	for i := range sched.Windows {
		sched.Windows[i].ID = m.id()
	}
	m.Power[sched.KioskID] = &sched
	return nil
}

func (m *MemoryStore) LastPowerStatus(_ context.Context, kioskID int64) (*model.PowerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Status) - 1; i >= 0; i-- {
		if m.Status[i].KioskID == kioskID {
			s := m.Status[i].Status
			return &s, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) InsertPowerStatusLog(_ context.Context, kioskID int64, status model.PowerState, message *string, previous *model.PowerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = append(m.Status, model.PowerStatusLog{
		ID:             m.id(),
		KioskID:        kioskID,
		Status:         status,
		Message:        message,
		PreviousStatus: previous,
		CreatedAt:      time.Now(),
	})
	return nil
}

func (m *MemoryStore) ListPowerStatusLog(_ context.Context, kioskID int64, limit int) ([]model.PowerStatusLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.PowerStatusLog{}
	for i := len(m.Status) - 1; i >= 0 && len(out) < limit; i-- {
		if m.Status[i].KioskID == kioskID {
			out = append(out, m.Status[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) PruneLogs(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64

	syncLogs := m.SyncLogs[:0]
	for _, l := range m.SyncLogs {
		if l.CreatedAt.Before(before) {
			removed++
			continue
		}
		syncLogs = append(syncLogs, l)
	}
	m.SyncLogs = syncLogs

	status := m.Status[:0]
	for _, l := range m.Status {
		if l.CreatedAt.Before(before) {
			removed++
			continue
		}
		status = append(status, l)
	}
	m.Status = status
	return removed, nil
}

func (m *MemoryStore) WithTx(_ context.Context, fn func(tx *sqlx.Tx) error) error {
	m.mu.Lock()
	configs := make(map[string]model.LoopConfig, len(m.Configs))
	for k, v := range m.Configs {
		configs[k] = v
	}
	plans := make(map[string]int64, len(m.Plans))
	for k, v := range m.Plans {
		plans[k] = v
	}
	power := make(map[int64]*model.PowerSchedule, len(m.Power))
	for k, v := range m.Power {
		power[k] = v
	}
	collections := make(map[int64]*model.TextCollection, len(m.Collections))
	for k, v := range m.Collections {
		collections[k] = v
	}
	m.mu.Unlock()

	if err := fn(nil); err != nil {
		m.mu.Lock()
		m.Configs, m.Plans, m.Power, m.Collections = configs, plans, power, collections
		m.mu.Unlock()
		return err
	}
	return nil
}
