package loopplan

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/apperror"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/db"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/version"
)

// CollectionReader looks up shared text bodies.
type CollectionReader interface {
	GetTextCollection(ctx context.Context, id int64) (*model.TextCollection, error)
}

// CollectionEnricher sets a text module's "text" to the current body of the collection
// it references. Modules with an inline body pass through.
func CollectionEnricher(collections CollectionReader) EnricherFunc {
	return func(ctx context.Context, _ string, settings model.ModuleSettings, scope model.Scope) (model.ModuleSettings, error) {
		id := settings.CollectionID()
		if id == 0 {
			return settings, nil
		}
		c, err := collections.GetTextCollection(ctx, id)
		if err != nil {
			return settings, fmt.Errorf("text collection %d: %w", id, err)
		}
		if c.TenantID != scope.TenantID {
			return settings, fmt.Errorf("text collection %d belongs to tenant %d", id, c.TenantID)
		}
		return settings.With("text", c.Body)
	}
}

// CollectionStore is the persistence shared text editing needs.
type CollectionStore interface {
	CollectionReader
	CreateTextCollection(ctx context.Context, c *model.TextCollection) error
	UpdateTextCollection(ctx context.Context, tx sqlx.ExtContext, c *model.TextCollection) error
	ScopesUsingCollection(ctx context.Context, tx sqlx.ExtContext, id int64) ([]model.Scope, error)
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

type CollectionInput struct {
	Name string `json:"name" validate:"required,max=200"`
	Body string `json:"body" validate:"max=4000"`
}

// CollectionService edits shared text. An edit moves the marker of every loop that
// shows the collection so polling devices pick up the new text.
type CollectionService struct {
	store   CollectionStore
	tracker *version.Tracker
}

func NewCollectionService(store CollectionStore, tracker *version.Tracker) *CollectionService {
	return &CollectionService{store: store, tracker: tracker}
}

func (s *CollectionService) Create(ctx context.Context, id *model.Identity, in CollectionInput) (*model.TextCollection, error) {
	if !id.CanEditContent() {
		return nil, apperror.ErrForbidden
	}
	if err := requestValidator.Struct(in); err != nil {
		return nil, apperror.Validation("%v", err)
	}
	c := &model.TextCollection{TenantID: id.TenantID, Name: in.Name, Body: in.Body}
	if err := s.store.CreateTextCollection(ctx, c); err != nil {
		return nil, apperror.Storage(err)
	}
	log.Info().Int64("collection_id", c.ID).Str("subject", id.Subject).Msg("text collection created")
	return c, nil
}

func (s *CollectionService) Get(ctx context.Context, id *model.Identity, collectionID int64) (*model.TextCollection, error) {
	if id == nil || id.Role == model.RoleDevice {
		return nil, apperror.ErrForbidden
	}
	return s.owned(ctx, id, collectionID)
}

// Update rewrites the collection and bumps every referencing scope in the same
// transaction.
func (s *CollectionService) Update(ctx context.Context, id *model.Identity, collectionID int64, in CollectionInput) (*model.TextCollection, error) {
	if !id.CanEditContent() {
		return nil, apperror.ErrForbidden
	}
	if err := requestValidator.Struct(in); err != nil {
		return nil, apperror.Validation("%v", err)
	}
	c, err := s.owned(ctx, id, collectionID)
	if err != nil {
		return nil, err
	}
	c.Name, c.Body = in.Name, in.Body

	var touched []model.Scope
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.store.UpdateTextCollection(ctx, tx, c); err != nil {
			return err
		}
		scopes, err := s.store.ScopesUsingCollection(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		for _, scope := range scopes {
			if _, err := s.tracker.Touch(ctx, tx, scope); err != nil {
				return err
			}
		}
		touched = scopes
		return nil
	})
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperror.Clone(apperror.ErrNotFound, "text collection not found")
	}
	if err != nil {
		log.Error().Err(err).Int64("collection_id", c.ID).Msg("update text collection failed")
		return nil, apperror.Storage(err)
	}

	for _, scope := range touched {
		s.tracker.Invalidate(ctx, scope)
	}
	log.Info().
		Int64("collection_id", c.ID).
		Str("subject", id.Subject).
		Int("scopes", len(touched)).
		Msg("text collection updated")
	return c, nil
}

func (s *CollectionService) owned(ctx context.Context, id *model.Identity, collectionID int64) (*model.TextCollection, error) {
	c, err := s.store.GetTextCollection(ctx, collectionID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperror.Clone(apperror.ErrNotFound, "text collection not found")
	}
	if err != nil {
		return nil, apperror.Storage(err)
	}
	if !id.OwnsTenant(c.TenantID) {
		return nil, apperror.ErrForbidden
	}
	return c, nil
}

// checkCollection rejects a text module that references a missing collection or one
// owned by another tenant.
func checkCollection(ctx context.Context, collections CollectionReader, scope model.Scope, settings model.ModuleSettings) error {
	id := settings.CollectionID()
	if id == 0 {
		return nil
	}
	c, err := collections.GetTextCollection(ctx, id)
	if errors.Is(err, db.ErrNotFound) || (err == nil && c.TenantID != scope.TenantID) {
		return apperror.Validation("text collection %d does not exist", id)
	}
	if err != nil {
		return apperror.Storage(err)
	}
	return nil
}
