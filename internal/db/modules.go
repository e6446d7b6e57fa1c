package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

func (s *pgStore) GetModuleByKey(ctx context.Context, key string) (*model.ModuleMeta, error) {
	var m model.ModuleMeta
	err := s.db.GetContext(ctx, &m, `
		SELECT id, module_key, name, default_duration, settings_kind
		  FROM modules
		 WHERE module_key = $1 AND is_active = TRUE`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get module %q: %w", key, err)
	}
	return &m, nil
}

// AllowedModuleKeys lists the module keys a tenant is licensed to place in a loop.
func (s *pgStore) AllowedModuleKeys(ctx context.Context, tenantID int64) (map[string]bool, error) {
	var keys []string
	err := s.db.SelectContext(ctx, &keys, `
		SELECT m.module_key
		  FROM tenant_modules tm
		  JOIN modules m ON m.id = tm.module_id
		 WHERE tm.tenant_id = $1 AND tm.is_enabled = TRUE AND m.is_active = TRUE`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list allowed modules: %w", err)
	}
	out := make(map[string]bool, len(keys)+1)
	for _, k := range keys {
		out[k] = true
	}
	out[model.UnconfiguredModuleKey] = true
	return out, nil
}
