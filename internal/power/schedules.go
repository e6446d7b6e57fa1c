package power

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/apperror"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/db"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/devicesync"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/schedule"
)

const DefaultScheduleName = "Default"

// DefaultSchedule is off overnight from 22:00 and on from 06:00, every day.
func DefaultSchedule() []model.PowerWindow {
	return []model.PowerWindow{
		{
			TimeWindow: model.TimeWindow{
				ID: 1, Name: "Day", Kind: model.WindowWeekly,
				Start: model.NewClockTime(6, 0, 0), End: model.NewClockTime(21, 59, 59),
				Priority: model.WindowWeekly.DefaultPriority(), DisplayOrder: 0, Enabled: true,
			},
			On: true,
		},
		{
			TimeWindow: model.TimeWindow{
				ID: 2, Name: "Night", Kind: model.WindowWeekly,
				Start: model.NewClockTime(22, 0, 0), End: model.NewClockTime(5, 59, 59),
				Priority: model.WindowWeekly.DefaultPriority(), DisplayOrder: 1, Enabled: true,
			},
			On: false,
		},
	}
}

type WindowInput struct {
	Name         string           `json:"name"`
	Kind         model.WindowKind `json:"kind"`
	Days         model.DayMask    `json:"days"`
	SpecificDate *string          `json:"specific_date,omitempty"`
	Start        model.ClockTime  `json:"start_time"`
	End          model.ClockTime  `json:"end_time"`
	Priority     *int             `json:"priority,omitempty"`
	Enabled      *bool            `json:"enabled,omitempty"`
	On           bool             `json:"is_on"`
}

type SaveRequest struct {
	Name    string           `json:"name"`
	Enabled *bool            `json:"is_active,omitempty"`
	Default model.PowerState `json:"default_state"`
	Windows []WindowInput    `json:"windows"`
}

// Schedule returns the stored schedule, or the built-in default when none exists.
func (s *Scheduler) Schedule(ctx context.Context, id *model.Identity, deviceID string) (*model.PowerSchedule, error) {
	kiosk, err := devicesync.AuthorizeKiosk(ctx, s.store, id, deviceID)
	if err != nil {
		return nil, err
	}
	sched, err := s.store.GetPowerSchedule(ctx, kiosk.ID)
	if errors.Is(err, db.ErrNotFound) {
		return defaultFor(kiosk.ID), nil
	}
	if err != nil {
		return nil, apperror.Storage(err)
	}
	return sched, nil
}

func defaultFor(kioskID int64) *model.PowerSchedule {
	return &model.PowerSchedule{
		KioskID: kioskID,
		Name:    DefaultScheduleName,
		Enabled: true,
		Default: model.PowerActive,
		Windows: DefaultSchedule(),
	}
}

// CreateDefaultSchedule stores the default schedule for a kiosk that has none. An
// existing schedule is returned untouched.
func (s *Scheduler) CreateDefaultSchedule(ctx context.Context, id *model.Identity, deviceID string) (*model.PowerSchedule, error) {
	if !id.IsAdmin() {
		return nil, apperror.ErrForbidden
	}
	kiosk, err := devicesync.AuthorizeKiosk(ctx, s.store, id, deviceID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetPowerSchedule(ctx, kiosk.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, apperror.Storage(err)
	}

	sched := defaultFor(kiosk.ID)
	if err := s.replace(ctx, *sched); err != nil {
		return nil, err
	}
	log.Info().Str("device_id", kiosk.DeviceID).Msg("default power schedule created")
	return sched, nil
}

// Save validates and replaces a kiosk's power windows in one transaction.
func (s *Scheduler) Save(ctx context.Context, id *model.Identity, deviceID string, req SaveRequest) (*model.PowerSchedule, error) {
	if !id.IsAdmin() {
		return nil, apperror.ErrForbidden
	}
	kiosk, err := devicesync.AuthorizeKiosk(ctx, s.store, id, deviceID)
	if err != nil {
		return nil, err
	}

	sched := model.PowerSchedule{
		KioskID: kiosk.ID,
		Name:    req.Name,
		Enabled: true,
		Default: req.Default,
	}
	if sched.Name == "" {
		sched.Name = DefaultScheduleName
	}
	if req.Enabled != nil {
		sched.Enabled = *req.Enabled
	}
	switch sched.Default {
	case "":
		sched.Default = model.PowerActive
	case model.PowerActive, model.PowerTurnedOff:
	default:
		return nil, apperror.Validation("default_state must be %s or %s", model.PowerActive, model.PowerTurnedOff)
	}

	windows := make([]model.TimeWindow, 0, len(req.Windows))
	for i, in := range req.Windows {
		w := model.PowerWindow{
			TimeWindow: model.TimeWindow{
				ID:           int64(i + 1),
				Name:         in.Name,
				Kind:         in.Kind,
				Days:         in.Days.Normalize(),
				SpecificDate: in.SpecificDate,
				Start:        in.Start,
				End:          in.End,
				Priority:     in.Kind.DefaultPriority(),
				DisplayOrder: i,
				Enabled:      true,
			},
			On: in.On,
		}
		if in.Priority != nil {
			w.Priority = *in.Priority
		}
		if in.Enabled != nil {
			w.Enabled = *in.Enabled
		}
		if err := schedule.CheckWindow(w.TimeWindow); err != nil {
			return nil, apperror.Validation("%v", err)
		}
		sched.Windows = append(sched.Windows, w)
		windows = append(windows, w.TimeWindow)
	}

	if err := schedule.Validate(windows); err != nil {
		var conflict *schedule.ConflictError
		if errors.As(err, &conflict) {
			return nil, apperror.Wrap(err, apperror.ErrConflict, conflict.Error()).WithDetails(conflict.Labels())
		}
		return nil, apperror.Validation("%v", err)
	}

	if err := s.replace(ctx, sched); err != nil {
		return nil, err
	}
	log.Info().Str("device_id", kiosk.DeviceID).Int("windows", len(sched.Windows)).Msg("power schedule saved")
	return &sched, nil
}

func (s *Scheduler) replace(ctx context.Context, sched model.PowerSchedule) error {
	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.store.ReplacePowerSchedule(ctx, tx, sched)
	})
	if err != nil {
		log.Error().Err(err).Int64("kiosk_id", sched.KioskID).Msg("replace power schedule failed")
		return apperror.Storage(err)
	}
	return nil
}
