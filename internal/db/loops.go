package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

const selectBlocks = `
	SELECT id, name, kind, days,
	       to_char(specific_date, 'YYYY-MM-DD') AS specific_date,
	       start_time, end_time, priority, display_order, enabled
	  FROM loop_blocks
	 WHERE scope_kind = $1 AND scope_id = $2
	 ORDER BY display_order, id`

const selectModules = `
	SELECT lm.id, lm.block_id, lm.module_id, m.module_key, m.name AS module_name,
	       lm.duration_seconds, lm.settings, lm.display_order, lm.enabled, lm.updated_at
	  FROM loop_modules lm
	  JOIN modules m ON m.id = lm.module_id
	 WHERE lm.scope_kind = $1 AND lm.scope_id = $2
	 ORDER BY lm.display_order, lm.id`

// LoadLoopConfig reads a scope's base list, time blocks and version marker from one
// repeatable-read snapshot, so the marker always describes the rows returned with it.
// Disabled rows are included.
func (s *pgStore) LoadLoopConfig(ctx context.Context, scope model.Scope) (model.LoopConfig, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return model.LoopConfig{Scope: scope}, fmt.Errorf("begin loop snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cfg, err := loadLoopConfig(ctx, tx, scope)
	if err != nil {
		return cfg, err
	}
	if err := tx.Commit(); err != nil {
		return cfg, fmt.Errorf("commit loop snapshot: %w", err)
	}
	return cfg, nil
}

// LoadLoopConfigTx reads a scope's configuration through the caller's transaction.
func (s *pgStore) LoadLoopConfigTx(ctx context.Context, tx sqlx.ExtContext, scope model.Scope) (model.LoopConfig, error) {
	return loadLoopConfig(ctx, tx, scope)
}

func loadLoopConfig(ctx context.Context, q sqlx.QueryerContext, scope model.Scope) (model.LoopConfig, error) {
	cfg := model.LoopConfig{Scope: scope}

	var windows []model.TimeWindow
	if err := sqlx.SelectContext(ctx, q, &windows, selectBlocks, scope.Kind, scope.ID); err != nil {
		log.Error().Err(err).Str("scope", scope.String()).Msg("load loop blocks failed")
		return cfg, fmt.Errorf("load loop blocks: %w", err)
	}

	var modules []model.ModuleReference
	if err := sqlx.SelectContext(ctx, q, &modules, selectModules, scope.Kind, scope.ID); err != nil {
		log.Error().Err(err).Str("scope", scope.String()).Msg("load loop modules failed")
		return cfg, fmt.Errorf("load loop modules: %w", err)
	}

	byBlock := make(map[int64][]model.ModuleReference, len(windows))
	for _, m := range modules {
		m.Source = scope.Kind
		if m.BlockID == nil {
			cfg.Base = append(cfg.Base, m)
			continue
		}
		byBlock[*m.BlockID] = append(byBlock[*m.BlockID], m)
	}
	for i := range windows {
		w := windows[i]
		id := w.ID
		cfg.Blocks = append(cfg.Blocks, model.ContentBlock{
			ID:      &id,
			Window:  &w,
			Modules: byBlock[id],
		})
	}

	plan, mods, err := loopMarkerParts(ctx, q, scope)
	if err != nil {
		return cfg, err
	}
	cfg.Version = max(plan, mods)
	return cfg, nil
}

// LockLoopScope serializes writers of one scope until tx ends.
func (s *pgStore) LockLoopScope(ctx context.Context, tx sqlx.ExtContext, scope model.Scope) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, scope.String()); err != nil {
		return fmt.Errorf("lock loop scope %s: %w", scope, err)
	}
	return nil
}

// ReplaceLoopConfig deletes every block and module of the scope and inserts cfg.
// It must run inside the caller's transaction.
func (s *pgStore) ReplaceLoopConfig(ctx context.Context, tx sqlx.ExtContext, cfg model.LoopConfig) error {
	scope := cfg.Scope
	if _, err := tx.ExecContext(ctx, `DELETE FROM loop_modules WHERE scope_kind = $1 AND scope_id = $2`, scope.Kind, scope.ID); err != nil {
		return fmt.Errorf("delete loop modules: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM loop_blocks WHERE scope_kind = $1 AND scope_id = $2`, scope.Kind, scope.ID); err != nil {
		return fmt.Errorf("delete loop blocks: %w", err)
	}

	blockIDs := make([]int64, len(cfg.Blocks))
	for i, b := range cfg.Blocks {
		if b.Window == nil {
			return fmt.Errorf("block %d has no time window", i)
		}
		w := b.Window
		var date any
		if d := w.Date(); d != "" && w.Kind == model.WindowDate {
			date = d
		}
		err := sqlx.GetContext(ctx, tx, &blockIDs[i], `
			INSERT INTO loop_blocks
			  (scope_kind, scope_id, name, kind, days, specific_date, start_time, end_time,
			   priority, display_order, enabled, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
			RETURNING id`,
			scope.Kind, scope.ID, w.Name, w.Kind, w.Days, date, w.Start, w.End,
			w.Priority, w.DisplayOrder, w.Enabled)
		if err != nil {
			return fmt.Errorf("insert loop block %q: %w", w.Label(), err)
		}
	}

	if err := insertModules(ctx, tx, scope, nil, cfg.Base); err != nil {
		return err
	}
	for i, b := range cfg.Blocks {
		if err := insertModules(ctx, tx, scope, &blockIDs[i], b.Modules); err != nil {
			return err
		}
	}
	return nil
}

func insertModules(ctx context.Context, tx sqlx.ExtContext, scope model.Scope, blockID *int64, modules []model.ModuleReference) error {
	for _, m := range modules {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO loop_modules
			  (scope_kind, scope_id, block_id, module_id, duration_seconds, settings,
			   display_order, enabled, created_at, updated_at)
			SELECT $1, $2, $3, m.id, $5, $6, $7, $8, now(), now()
			  FROM modules m
			 WHERE m.module_key = $4`,
			scope.Kind, scope.ID, blockID, m.ModuleKey, m.DurationSeconds, m.Settings,
			m.DisplayOrder, m.Enabled)
		if err != nil {
			return fmt.Errorf("insert loop module %q: %w", m.ModuleKey, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("insert loop module %q: %w", m.ModuleKey, ErrNotFound)
		}
	}
	return nil
}

// LoopMarkerParts returns the plan-level version and the newest module update, both in
// unix milliseconds, 0 when absent.
func (s *pgStore) LoopMarkerParts(ctx context.Context, scope model.Scope) (int64, int64, error) {
	return loopMarkerParts(ctx, s.db, scope)
}

func loopMarkerParts(ctx context.Context, q sqlx.QueryerContext, scope model.Scope) (int64, int64, error) {
	var row struct {
		Plan    int64 `db:"plan_version"`
		Modules int64 `db:"modules_updated"`
	}
	err := sqlx.GetContext(ctx, q, &row, `
		SELECT COALESCE((SELECT plan_version FROM loop_plans
		                  WHERE scope_kind = $1 AND scope_id = $2), 0) AS plan_version,
		       COALESCE((SELECT (EXTRACT(EPOCH FROM MAX(updated_at)) * 1000)::BIGINT
		                   FROM loop_modules
		                  WHERE scope_kind = $1 AND scope_id = $2), 0) AS modules_updated`,
		scope.Kind, scope.ID)
	if err != nil {
		log.Error().Err(err).Str("scope", scope.String()).Msg("LoopMarkerParts failed")
		return 0, 0, fmt.Errorf("load loop marker: %w", err)
	}
	return row.Plan, row.Modules, nil
}

// BumpPlanVersion raises the scope's plan version to at least floor, at least one past
// its previous value and at least the newest module update in the scope.
func (s *pgStore) BumpPlanVersion(ctx context.Context, tx sqlx.ExtContext, scope model.Scope, floor int64) (int64, error) {
	var version int64
	err := sqlx.GetContext(ctx, tx, &version, `
		INSERT INTO loop_plans (scope_kind, scope_id, plan_version, updated_at)
		VALUES ($1, $2, GREATEST($3::BIGINT, COALESCE((
		          SELECT (EXTRACT(EPOCH FROM MAX(updated_at)) * 1000)::BIGINT
		            FROM loop_modules
		           WHERE scope_kind = $1 AND scope_id = $2), 0)), now())
		ON CONFLICT (scope_kind, scope_id) DO UPDATE
		   SET plan_version = GREATEST(loop_plans.plan_version + 1, EXCLUDED.plan_version),
		       updated_at = now()
		RETURNING plan_version`, scope.Kind, scope.ID, floor)
	if err != nil {
		return 0, fmt.Errorf("bump plan version: %w", err)
	}
	return version, nil
}
