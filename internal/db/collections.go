package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

const collectionColumns = `id, tenant_id, name, body, created_at, updated_at`

func (s *pgStore) GetTextCollection(ctx context.Context, id int64) (*model.TextCollection, error) {
	var c model.TextCollection
	err := s.db.GetContext(ctx, &c, `SELECT `+collectionColumns+` FROM text_collections WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Int64("collection_id", id).Msg("GetTextCollection failed")
		return nil, fmt.Errorf("get text collection: %w", err)
	}
	return &c, nil
}

// CreateTextCollection inserts c and fills in its id and timestamps.
func (s *pgStore) CreateTextCollection(ctx context.Context, c *model.TextCollection) error {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO text_collections (tenant_id, name, body, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, created_at, updated_at`, c.TenantID, c.Name, c.Body).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		log.Error().Err(err).Int64("tenant_id", c.TenantID).Msg("CreateTextCollection failed")
		return fmt.Errorf("create text collection: %w", err)
	}
	return nil
}

func (s *pgStore) UpdateTextCollection(ctx context.Context, tx sqlx.ExtContext, c *model.TextCollection) error {
	err := sqlx.GetContext(ctx, tx, &c.UpdatedAt, `
		UPDATE text_collections
		   SET name = $2, body = $3, updated_at = now()
		 WHERE id = $1
		RETURNING updated_at`, c.ID, c.Name, c.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update text collection: %w", err)
	}
	return nil
}

// ScopesUsingCollection lists every scope with a text module that references the
// collection, enabled or not.
func (s *pgStore) ScopesUsingCollection(ctx context.Context, tx sqlx.ExtContext, id int64) ([]model.Scope, error) {
	var scopes []model.Scope
	err := sqlx.SelectContext(ctx, tx, &scopes, `
		SELECT DISTINCT lm.scope_kind AS kind, lm.scope_id AS id
		  FROM loop_modules lm
		  JOIN modules m ON m.id = lm.module_id
		 WHERE m.module_key = 'text'
		   AND lm.settings->>'collectionId' = $1::TEXT
		 ORDER BY kind, id`, id)
	if err != nil {
		return nil, fmt.Errorf("list scopes using collection: %w", err)
	}
	return scopes, nil
}
