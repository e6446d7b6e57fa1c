package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

func newStoreMock(t *testing.T) (*pgStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return &pgStore{db: sqlx.NewDb(sqlDB, "sqlmock")}, mock, func() { sqlDB.Close() }
}

var groupScope = model.Scope{Kind: model.ScopeGroup, ID: 7, TenantID: 1}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM loop_modules").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		_, err := tx.Exec("DELETE FROM loop_modules WHERE scope_id = 1")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(tx *sqlx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceLoopConfigInsertsBlocksThenModules(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	date := "2024-12-24"
	cfg := model.LoopConfig{
		Scope: groupScope,
		Base: []model.ModuleReference{
			{ModuleKey: "clock", DurationSeconds: 10, Enabled: true},
		},
		Blocks: []model.ContentBlock{{
			Window: &model.TimeWindow{
				Name: "Christmas", Kind: model.WindowDate, SpecificDate: &date,
				Start: model.NewClockTime(8, 0, 0), End: model.NewClockTime(18, 0, 0),
				Priority: 300, Enabled: true,
			},
			Modules: []model.ModuleReference{
				{ModuleKey: "text", DurationSeconds: 20, Enabled: true},
			},
		}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM loop_modules")).
		WithArgs(model.ScopeGroup, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM loop_blocks")).
		WithArgs(model.ScopeGroup, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO loop_blocks")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(41)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO loop_modules")).
		WithArgs(model.ScopeGroup, int64(7), nil, "clock", 10, sqlmock.AnyArg(), 0, true).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO loop_modules")).
		WithArgs(model.ScopeGroup, int64(7), int64(41), "text", 20, sqlmock.AnyArg(), 0, true).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		return store.ReplaceLoopConfig(context.Background(), tx, cfg)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceLoopConfigUnknownModuleRollsBack(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	cfg := model.LoopConfig{
		Scope: groupScope,
		Base:  []model.ModuleReference{{ModuleKey: "nope", DurationSeconds: 10, Enabled: true}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM loop_modules").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM loop_blocks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO loop_modules").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		return store.ReplaceLoopConfig(context.Background(), tx, cfg)
	})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadLoopConfigGroupsModulesByBlock(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM loop_blocks")).
		WithArgs(model.ScopeGroup, int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "kind", "days", "specific_date", "start_time", "end_time", "priority", "display_order", "enabled",
		}).AddRow(int64(41), "Morning", "weekly", "1", nil, "08:00:00", "10:00:00", 100, 0, true))
	mock.ExpectQuery(regexp.QuoteMeta("FROM loop_modules lm")).
		WithArgs(model.ScopeGroup, int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "block_id", "module_id", "module_key", "module_name", "duration_seconds", "settings", "display_order", "enabled", "updated_at",
		}).
			AddRow(int64(1), nil, int64(3), "clock", "Clock", 10, []byte(`{"format":"24h"}`), 0, true, now).
			AddRow(int64(2), int64(41), int64(4), "text", "Text", 15, []byte(`{"text":"hi"}`), 0, true, now))
	mock.ExpectQuery(regexp.QuoteMeta("AS plan_version")).
		WillReturnRows(sqlmock.NewRows([]string{"plan_version", "modules_updated"}).AddRow(int64(1700000000500), now.UnixMilli()))
	mock.ExpectCommit()

	cfg, err := store.LoadLoopConfig(context.Background(), groupScope)
	require.NoError(t, err)
	require.Len(t, cfg.Base, 1)
	require.Len(t, cfg.Blocks, 1)

	assert.Equal(t, "clock", cfg.Base[0].ModuleKey)
	assert.Equal(t, model.ScopeGroup, cfg.Base[0].Source)
	assert.Equal(t, model.DayMask{1}, cfg.Blocks[0].Window.Days)
	assert.Equal(t, model.NewClockTime(10, 0, 0), cfg.Blocks[0].Window.End)
	require.Len(t, cfg.Blocks[0].Modules, 1)
	assert.Equal(t, "text", cfg.Blocks[0].Modules[0].ModuleKey)
	assert.Equal(t, now.UnixMilli(), cfg.Version)
	assert.True(t, cfg.HasEnabledModules())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadLoopConfigReadsOneSnapshot(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM loop_blocks")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM loop_modules lm")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := store.LoadLoopConfig(context.Background(), groupScope)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockLoopScope(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).
		WithArgs("group:7").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM loop_blocks")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM loop_modules lm")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("AS plan_version")).
		WillReturnRows(sqlmock.NewRows([]string{"plan_version", "modules_updated"}).AddRow(int64(5), int64(0)))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		if err := store.LockLoopScope(context.Background(), tx, groupScope); err != nil {
			return err
		}
		cfg, err := store.LoadLoopConfigTx(context.Background(), tx, groupScope)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(5), cfg.Version)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScopesUsingCollection(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("lm.settings->>'collectionId' = $1::TEXT")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"kind", "id"}).
			AddRow("device", int64(1)).
			AddRow("group", int64(7)))
	mock.ExpectCommit()

	var scopes []model.Scope
	err := store.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		var err error
		scopes, err = store.ScopesUsingCollection(context.Background(), tx, 3)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []model.Scope{{Kind: model.ScopeDevice, ID: 1}, {Kind: model.ScopeGroup, ID: 7}}, scopes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTextCollectionNotFound(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM text_collections")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetTextCollection(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBumpPlanVersion(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO loop_plans")).
		WithArgs(model.ScopeGroup, int64(7), int64(1700000000000)).
		WillReturnRows(sqlmock.NewRows([]string{"plan_version"}).AddRow(int64(1700000000001)))
	mock.ExpectCommit()

	var got int64
	err := store.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		var err error
		got, err = store.BumpPlanVersion(context.Background(), tx, groupScope, 1700000000000)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000001), got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetKioskByDeviceIDNotFound(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM kiosks WHERE device_id = $1")).
		WithArgs("pi-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetKioskByDeviceID(context.Background(), "pi-1")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllowedModuleKeysAlwaysIncludesPlaceholder(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM tenant_modules")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"module_key"}).AddRow("clock"))

	keys, err := store.AllowedModuleKeys(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, keys["clock"])
	assert.True(t, keys[model.UnconfiguredModuleKey])
	assert.False(t, keys["video"])
}

func TestPowerStatusLogRoundTrip(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	prev := model.PowerActive
	msg := "schedule"
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO display_status_log")).
		WithArgs(int64(5), model.PowerTurnedOff, &msg, &prev).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.InsertPowerStatusLog(context.Background(), 5, model.PowerTurnedOff, &msg, &prev))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("TURNED_OFF"))
	last, err := store.LastPowerStatus(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, model.PowerTurnedOff, *last)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status")).
		WithArgs(int64(6)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	last, err = store.LastPowerStatus(context.Background(), 6)
	require.NoError(t, err)
	assert.Nil(t, last)
	require.NoError(t, mock.ExpectationsWereMet())
}
