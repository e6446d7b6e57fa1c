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

func (s *pgStore) GetPowerSchedule(ctx context.Context, kioskID int64) (*model.PowerSchedule, error) {
	var sched model.PowerSchedule
	err := s.db.GetContext(ctx, &sched, `
		SELECT id, kiosk_id, name, is_active, default_state
		  FROM display_schedules
		 WHERE kiosk_id = $1`, kioskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Int64("kiosk_id", kioskID).Msg("GetPowerSchedule failed")
		return nil, fmt.Errorf("get power schedule: %w", err)
	}

	var slots []model.PowerWindow
	err = s.db.SelectContext(ctx, &slots, `
		SELECT id, name, 'weekly' AS kind, days, NULL AS specific_date,
		       start_time, end_time, priority, display_order, enabled, is_on
		  FROM schedule_time_slots
		 WHERE schedule_id = $1
		 ORDER BY display_order, id`, sched.ID)
	if err != nil {
		return nil, fmt.Errorf("list power time slots: %w", err)
	}

	var special []model.PowerWindow
	err = s.db.SelectContext(ctx, &special, `
		SELECT id, name, 'date' AS kind, '' AS days,
		       to_char(specific_date, 'YYYY-MM-DD') AS specific_date,
		       start_time, end_time, priority, display_order, enabled, is_on
		  FROM schedule_special_days
		 WHERE schedule_id = $1
		 ORDER BY specific_date DESC, id`, sched.ID)
	if err != nil {
		return nil, fmt.Errorf("list power special days: %w", err)
	}

	sched.Windows = append(slots, special...)
	return &sched, nil
}

// ReplacePowerSchedule upserts the schedule row and rewrites its slots and special days.
func (s *pgStore) ReplacePowerSchedule(ctx context.Context, tx sqlx.ExtContext, sched model.PowerSchedule) error {
	var scheduleID int64
	err := sqlx.GetContext(ctx, tx, &scheduleID, `
		INSERT INTO display_schedules (kiosk_id, name, is_active, default_state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (kiosk_id) DO UPDATE
		   SET name = EXCLUDED.name,
		       is_active = EXCLUDED.is_active,
		       default_state = EXCLUDED.default_state,
		       updated_at = now()
		RETURNING id`, sched.KioskID, sched.Name, sched.Enabled, sched.Default)
	if err != nil {
		return fmt.Errorf("upsert power schedule: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_time_slots WHERE schedule_id = $1`, scheduleID); err != nil {
		return fmt.Errorf("delete power time slots: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_special_days WHERE schedule_id = $1`, scheduleID); err != nil {
		return fmt.Errorf("delete power special days: %w", err)
	}

	for _, w := range sched.Windows {
		switch w.Kind {
		case model.WindowWeekly:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO schedule_time_slots
				  (schedule_id, name, days, start_time, end_time, priority, display_order, enabled, is_on)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				scheduleID, w.Name, w.Days, w.Start, w.End, w.Priority, w.DisplayOrder, w.Enabled, w.On)
		case model.WindowDate:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO schedule_special_days
				  (schedule_id, name, specific_date, start_time, end_time, priority, display_order, enabled, is_on)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				scheduleID, w.Name, w.Date(), w.Start, w.End, w.Priority, w.DisplayOrder, w.Enabled, w.On)
		default:
			err = fmt.Errorf("unknown window kind %q", w.Kind)
		}
		if err != nil {
			return fmt.Errorf("insert power window %q: %w", w.Label(), err)
		}
	}
	return nil
}

// LastPowerStatus returns the most recently logged state, nil when nothing was logged.
func (s *pgStore) LastPowerStatus(ctx context.Context, kioskID int64) (*model.PowerState, error) {
	var state model.PowerState
	err := s.db.GetContext(ctx, &state, `
		SELECT status
		  FROM display_status_log
		 WHERE kiosk_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, kioskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last power status: %w", err)
	}
	return &state, nil
}

func (s *pgStore) InsertPowerStatusLog(ctx context.Context, kioskID int64, status model.PowerState, message *string, previous *model.PowerState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO display_status_log (kiosk_id, status, message, previous_status, created_at)
		VALUES ($1, $2, $3, $4, now())`, kioskID, status, message, previous)
	if err != nil {
		log.Error().Err(err).Int64("kiosk_id", kioskID).Msg("InsertPowerStatusLog failed")
		return fmt.Errorf("insert power status log: %w", err)
	}
	return nil
}

func (s *pgStore) ListPowerStatusLog(ctx context.Context, kioskID int64, limit int) ([]model.PowerStatusLog, error) {
	out := []model.PowerStatusLog{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, kiosk_id, status, message, previous_status, created_at
		  FROM display_status_log
		 WHERE kiosk_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, kioskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list power status log: %w", err)
	}
	return out, nil
}
