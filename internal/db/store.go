// exposes a Store interface that is passed to the services
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type Store interface {
	// kiosks and groups
	GetKioskByID(ctx context.Context, id int64) (*model.Kiosk, error)
	GetKioskByDeviceID(ctx context.Context, deviceID string) (*model.Kiosk, error)
	GetGroupByID(ctx context.Context, id int64) (*model.KioskGroup, error)
	RecordKioskSeen(ctx context.Context, kioskID int64, reported int64, at time.Time) error
	InsertSyncLog(ctx context.Context, entry *model.SyncLog) error

	// loop configuration
	LoadLoopConfig(ctx context.Context, scope model.Scope) (model.LoopConfig, error)
	LoadLoopConfigTx(ctx context.Context, tx sqlx.ExtContext, scope model.Scope) (model.LoopConfig, error)
	LockLoopScope(ctx context.Context, tx sqlx.ExtContext, scope model.Scope) error
	ReplaceLoopConfig(ctx context.Context, tx sqlx.ExtContext, cfg model.LoopConfig) error
	LoopMarkerParts(ctx context.Context, scope model.Scope) (planVersion int64, modulesUpdated int64, err error)
	BumpPlanVersion(ctx context.Context, tx sqlx.ExtContext, scope model.Scope, floor int64) (int64, error)

	// module catalog
	GetModuleByKey(ctx context.Context, key string) (*model.ModuleMeta, error)
	AllowedModuleKeys(ctx context.Context, tenantID int64) (map[string]bool, error)

	// shared text
	GetTextCollection(ctx context.Context, id int64) (*model.TextCollection, error)
	CreateTextCollection(ctx context.Context, c *model.TextCollection) error
	UpdateTextCollection(ctx context.Context, tx sqlx.ExtContext, c *model.TextCollection) error
	ScopesUsingCollection(ctx context.Context, tx sqlx.ExtContext, id int64) ([]model.Scope, error)

	// display power
	GetPowerSchedule(ctx context.Context, kioskID int64) (*model.PowerSchedule, error)
	ReplacePowerSchedule(ctx context.Context, tx sqlx.ExtContext, schedule model.PowerSchedule) error
	LastPowerStatus(ctx context.Context, kioskID int64) (*model.PowerState, error)
	InsertPowerStatusLog(ctx context.Context, kioskID int64, status model.PowerState, message *string, previous *model.PowerState) error
	ListPowerStatusLog(ctx context.Context, kioskID int64, limit int) ([]model.PowerStatusLog, error)

	// retention
	PruneLogs(ctx context.Context, before time.Time) (int64, error)

	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

type pgStore struct {
	db *sqlx.DB
}

// compile-time check that pgStore implements Store
var _ Store = (*pgStore)(nil)

func NewStore(db *sqlx.DB) Store {
	return &pgStore{db: db}
}

// WithTx runs fn in a transaction. Any error from fn, or a panic, rolls back.
func (s *pgStore) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("rollback failed")
			}
			return
		}
		if err = tx.Commit(); err != nil {
			err = fmt.Errorf("commit tx: %w", err)
		}
	}()

	return fn(tx)
}
