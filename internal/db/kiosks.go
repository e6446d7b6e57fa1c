package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

const kioskColumns = `id, device_id, hostname, tenant_id, group_id, last_seen_at, reported_version, created_at, updated_at`

func (s *pgStore) GetKioskByID(ctx context.Context, id int64) (*model.Kiosk, error) {
	var k model.Kiosk
	err := s.db.GetContext(ctx, &k, `SELECT `+kioskColumns+` FROM kiosks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Int64("kiosk_id", id).Msg("GetKioskByID failed")
		return nil, fmt.Errorf("get kiosk: %w", err)
	}
	return &k, nil
}

func (s *pgStore) GetKioskByDeviceID(ctx context.Context, deviceID string) (*model.Kiosk, error) {
	var k model.Kiosk
	err := s.db.GetContext(ctx, &k, `SELECT `+kioskColumns+` FROM kiosks WHERE device_id = $1`, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("GetKioskByDeviceID failed")
		return nil, fmt.Errorf("get kiosk by device id: %w", err)
	}
	return &k, nil
}

func (s *pgStore) GetGroupByID(ctx context.Context, id int64) (*model.KioskGroup, error) {
	var g model.KioskGroup
	err := s.db.GetContext(ctx, &g, `
		SELECT id, tenant_id, name, created_at, updated_at
		  FROM kiosk_groups
		 WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Int64("group_id", id).Msg("GetGroupByID failed")
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}

// RecordKioskSeen stores the poll time and the marker the device reported.
func (s *pgStore) RecordKioskSeen(ctx context.Context, kioskID int64, reported int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE kiosks
		   SET last_seen_at = $2,
		       reported_version = $3
		 WHERE id = $1`, kioskID, at, reported)
	if err != nil {
		return fmt.Errorf("record kiosk seen: %w", err)
	}
	return nil
}

func (s *pgStore) InsertSyncLog(ctx context.Context, entry *model.SyncLog) error {
	err := s.db.GetContext(ctx, &entry.ID, `
		INSERT INTO sync_logs (request_id, kiosk_id, status, scope_kind, client_marker, server_marker, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id`,
		entry.RequestID, entry.KioskID, entry.Status, entry.ScopeKind, entry.ClientMarker, entry.ServerMarker)
	if err != nil {
		return fmt.Errorf("insert sync log: %w", err)
	}
	return nil
}

// PruneLogs deletes poll and power audit rows older than before.
func (s *pgStore) PruneLogs(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"sync_logs", "display_status_log"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE created_at < $1`, before)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
