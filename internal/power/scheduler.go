// Package power decides whether a kiosk's display should be on.
package power

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/apperror"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/db"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/devicesync"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/metrics"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/schedule"
)

const (
	ReasonSchedule = "schedule"
	ReasonForced   = "Forced by admin"

	DefaultLogLimit = 50
	MaxLogLimit     = 500
)

// Source tells how a status was decided.
type Source string

const (
	SourceWindow  Source = "window"
	SourceDefault Source = "default"
	SourceNone    Source = "no_schedule"
	SourceForced  Source = "forced"
	SourceFailure Source = "error"
)

type Store interface {
	devicesync.KioskReader
	GetPowerSchedule(ctx context.Context, kioskID int64) (*model.PowerSchedule, error)
	ReplacePowerSchedule(ctx context.Context, tx sqlx.ExtContext, schedule model.PowerSchedule) error
	LastPowerStatus(ctx context.Context, kioskID int64) (*model.PowerState, error)
	InsertPowerStatusLog(ctx context.Context, kioskID int64, status model.PowerState, message *string, previous *model.PowerState) error
	ListPowerStatusLog(ctx context.Context, kioskID int64, limit int) ([]model.PowerStatusLog, error)
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// CommandPublisher delivers a command to the device so it can apply a state.
type CommandPublisher interface {
	PublishCommand(ctx context.Context, deviceID string, cmd any) error
}

// Command is the payload published for a forced state.
type Command struct {
	Type   string           `json:"type"`
	Status model.PowerState `json:"status"`
	Reason string           `json:"reason"`
}

type Status struct {
	DeviceID    string           `json:"device_id"`
	State       model.PowerState `json:"status"`
	Source      Source           `json:"source"`
	WindowName  string           `json:"window_name,omitempty"`
	EvaluatedAt time.Time        `json:"evaluated_at"`
}

type Scheduler struct {
	store     Store
	publisher CommandPublisher
	metrics   *metrics.Metrics
}

func NewScheduler(store Store, publisher CommandPublisher, m *metrics.Metrics) *Scheduler {
	return &Scheduler{store: store, publisher: publisher, metrics: m}
}

// Status evaluates the kiosk's schedule at the given instant and logs a transition when
// the state differs from the last logged one.
func (s *Scheduler) Status(ctx context.Context, id *model.Identity, deviceID string, at time.Time) (Status, error) {
	kiosk, err := devicesync.AuthorizeKiosk(ctx, s.store, id, deviceID)
	if err != nil {
		return Status{}, err
	}

	st := Status{DeviceID: kiosk.DeviceID, EvaluatedAt: at}
	sched, err := s.store.GetPowerSchedule(ctx, kiosk.ID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		st.State, st.Source = model.PowerActive, SourceNone
	case err != nil:
		log.Error().Err(err).Str("device_id", deviceID).Msg("load power schedule failed")
		st.State, st.Source = model.PowerError, SourceFailure
		return st, apperror.Storage(err)
	default:
		st.State, st.Source, st.WindowName = Evaluate(sched, at)
	}

	previous, err := s.store.LastPowerStatus(ctx, kiosk.ID)
	if err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("read last power status failed")
		return st, nil
	}
	if previous == nil || *previous != st.State {
		if err := s.LogTransition(ctx, kiosk.ID, st.State, ReasonSchedule, previous); err != nil {
			log.Warn().Err(err).Str("device_id", deviceID).Msg("log power transition failed")
		}
	}
	return st, nil
}

// Evaluate resolves a stored schedule at an instant. Inactive schedules and instants
// no window covers fall back to the schedule default, which itself defaults to ACTIVE.
func Evaluate(sched *model.PowerSchedule, at time.Time) (model.PowerState, Source, string) {
	if sched == nil || !sched.Enabled {
		return model.PowerActive, SourceNone, ""
	}

	type key struct {
		kind model.WindowKind
		id   int64
	}
	on := make(map[key]bool, len(sched.Windows))
	windows := make([]model.TimeWindow, len(sched.Windows))
	for i, w := range sched.Windows {
		windows[i] = w.TimeWindow
		on[key{w.Kind, w.ID}] = w.On
	}

	winner := schedule.Resolve(windows, at)
	if winner == nil {
		def := sched.Default
		if def != model.PowerTurnedOff {
			def = model.PowerActive
		}
		return def, SourceDefault, ""
	}
	if on[key{winner.Kind, winner.ID}] {
		return model.PowerActive, SourceWindow, winner.Name
	}
	return model.PowerTurnedOff, SourceWindow, winner.Name
}

// LogTransition appends a row to the kiosk's display status log.
func (s *Scheduler) LogTransition(ctx context.Context, kioskID int64, state model.PowerState, reason string, previous *model.PowerState) error {
	var msg *string
	if reason != "" {
		msg = &reason
	}
	if err := s.store.InsertPowerStatusLog(ctx, kioskID, state, msg, previous); err != nil {
		return err
	}
	s.metrics.PowerTransition(string(state))

	ev := log.Info().Int64("kiosk_id", kioskID).Str("status", string(state)).Str("reason", reason)
	if previous != nil {
		ev = ev.Str("previous", string(*previous))
	}
	ev.Msg("display power transition")
	return nil
}

// ForceState records an administrator's override and asks the device to apply it.
// Nothing is persisted beyond the log row, so the schedule takes over on the next
// evaluation.
func (s *Scheduler) ForceState(ctx context.Context, id *model.Identity, deviceID string, state model.PowerState, reason string) (Status, error) {
	if !id.IsAdmin() {
		return Status{}, apperror.ErrForbidden
	}
	if state != model.PowerActive && state != model.PowerTurnedOff {
		return Status{}, apperror.Validation("status must be %s or %s", model.PowerActive, model.PowerTurnedOff)
	}
	kiosk, err := devicesync.AuthorizeKiosk(ctx, s.store, id, deviceID)
	if err != nil {
		return Status{}, err
	}
	if reason == "" {
		reason = ReasonForced
	}

	previous, err := s.store.LastPowerStatus(ctx, kiosk.ID)
	if err != nil {
		return Status{}, apperror.Storage(err)
	}
	if err := s.LogTransition(ctx, kiosk.ID, state, reason, previous); err != nil {
		return Status{}, apperror.Storage(err)
	}

	if s.publisher != nil {
		cmd := Command{Type: "power", Status: state, Reason: reason}
		if err := s.publisher.PublishCommand(ctx, kiosk.DeviceID, cmd); err != nil {
			log.Warn().Err(err).Str("device_id", kiosk.DeviceID).Msg("power command not delivered")
		}
	}
	return Status{DeviceID: kiosk.DeviceID, State: state, Source: SourceForced, EvaluatedAt: time.Now()}, nil
}

// Log lists the newest status log rows for a kiosk.
func (s *Scheduler) Log(ctx context.Context, id *model.Identity, deviceID string, limit int) ([]model.PowerStatusLog, error) {
	kiosk, err := devicesync.AuthorizeKiosk(ctx, s.store, id, deviceID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	limit = min(limit, MaxLogLimit)

	rows, err := s.store.ListPowerStatusLog(ctx, kiosk.ID, limit)
	if err != nil {
		return nil, apperror.Storage(err)
	}
	return rows, nil
}
