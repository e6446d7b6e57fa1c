package loopplan

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/apperror"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/db"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// ModuleLookup is the store call the catalog falls back to.
type ModuleLookup interface {
	GetModuleByKey(ctx context.Context, key string) (*model.ModuleMeta, error)
}

type catalogEntry struct {
	meta    model.ModuleMeta
	expires time.Time
}

// Catalog caches module metadata by key. Built-in entries never expire, everything
// else is read from the store and kept for ttl.
type Catalog struct {
	store ModuleLookup
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	builtin map[string]model.ModuleMeta
	entries map[string]catalogEntry
}

func NewCatalog(store ModuleLookup, ttl time.Duration) (*Catalog, error) {
	builtin, err := parseCatalog(builtinCatalog)
	if err != nil {
		return nil, err
	}
	return &Catalog{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		builtin: builtin,
		entries: map[string]catalogEntry{},
	}, nil
}

func parseCatalog(raw []byte) (map[string]model.ModuleMeta, error) {
	var doc struct {
		Modules []model.ModuleMeta `yaml:"modules"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse module catalog: %w", err)
	}
	out := make(map[string]model.ModuleMeta, len(doc.Modules))
	for _, m := range doc.Modules {
		if m.Key == "" {
			return nil, fmt.Errorf("parse module catalog: entry without key")
		}
		if m.Kind == "" {
			m.Kind = model.SettingsRaw
		}
		out[m.Key] = m
	}
	return out, nil
}

// Get returns the metadata for key. Unknown keys are a validation error.
func (c *Catalog) Get(ctx context.Context, key string) (model.ModuleMeta, error) {
	now := c.now()

	c.mu.RLock()
	builtin, isBuiltin := c.builtin[key]
	e, cached := c.entries[key]
	c.mu.RUnlock()

	if isBuiltin {
		return builtin, nil
	}
	if cached && now.Before(e.expires) {
		return e.meta, nil
	}
	if c.store == nil {
		return model.ModuleMeta{}, apperror.Validation("unknown module %q", key)
	}

	meta, err := c.store.GetModuleByKey(ctx, key)
	if errors.Is(err, db.ErrNotFound) {
		return model.ModuleMeta{}, apperror.Validation("unknown module %q", key)
	}
	if err != nil {
		return model.ModuleMeta{}, apperror.Storage(err)
	}
	if meta.Kind == "" {
		meta.Kind = model.SettingsRaw
	}

	c.mu.Lock()
	c.entries[key] = catalogEntry{meta: *meta, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return *meta, nil
}

// Placeholder is the module shown when a scope resolves to nothing.
func (c *Catalog) Placeholder() model.ModuleMeta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.builtin[model.UnconfiguredModuleKey]; ok {
		return m
	}
	return model.ModuleMeta{Key: model.UnconfiguredModuleKey, Name: "Not configured", DefaultDuration: 60, Kind: model.SettingsRaw}
}
