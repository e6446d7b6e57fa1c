// Package devicesync answers device polls for their current loop plan.
package devicesync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/apperror"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/metrics"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/version"
)

const (
	StatusFull      = "full"
	StatusUnchanged = "unchanged"
)

type Store interface {
	KioskReader
	RecordKioskSeen(ctx context.Context, kioskID int64, reported int64, at time.Time) error
	InsertSyncLog(ctx context.Context, entry *model.SyncLog) error
}

// PlanResolver computes a kiosk's plan and the scope it comes from.
type PlanResolver interface {
	Resolve(ctx context.Context, kiosk *model.Kiosk, at time.Time) (model.LoopPlan, error)
	ScopeFor(ctx context.Context, kiosk *model.Kiosk) (model.Scope, model.LoopConfig, error)
}

type PollRequest struct {
	DeviceID     string
	ClientMarker version.Marker
	RequestID    string

	// ActiveBlockID is the block the device is playing, 0 for its base list. Nil when the
	// device does not report it.
	ActiveBlockID *int64
}

type PollResponse struct {
	RequestID     string          `json:"request_id"`
	Status        string          `json:"status"`
	SyncStatus    version.Status  `json:"sync_status"`
	ScopeKind     model.ScopeKind `json:"scope_kind"`
	ModuleCount   int             `json:"module_count"`
	VersionMarker int64           `json:"version_marker"`
	NextChangeAt  *time.Time      `json:"next_change_at,omitempty"`
	Plan          *model.LoopPlan `json:"plan,omitempty"`
}

// SyncReport is the admin view of how far behind a device is.
type SyncReport struct {
	DeviceID       string          `json:"device_id"`
	ScopeKind      model.ScopeKind `json:"scope_kind"`
	ServerMarker   int64           `json:"server_marker"`
	ReportedMarker int64           `json:"reported_marker"`
	Status         version.Status  `json:"status"`
	LastSeenAt     *time.Time      `json:"last_seen_at"`
}

type Service struct {
	store    Store
	resolver PlanResolver
	tracker  *version.Tracker
	metrics  *metrics.Metrics
	loc      *time.Location
	now      func() time.Time
}

type Option func(*Service)

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, resolver PlanResolver, tracker *version.Tracker, opts ...Option) *Service {
	s := &Service{store: store, resolver: resolver, tracker: tracker, loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Poll returns the full plan when the device is behind or playing a different block
// than the one active now, and a short unchanged answer otherwise. Every answer carries
// the next instant the active block can change so devices can poll again then.
func (s *Service) Poll(ctx context.Context, id *model.Identity, req PollRequest) (PollResponse, error) {
	started := s.now()

	kiosk, err := AuthorizeKiosk(ctx, s.store, id, req.DeviceID)
	if err != nil {
		return PollResponse{}, err
	}

	at := started.In(s.loc)
	plan, err := s.resolver.Resolve(ctx, kiosk, at)
	if err != nil {
		log.Error().Err(err).Str("device_id", kiosk.DeviceID).Msg("resolve loop plan failed")
		return PollResponse{}, apperror.FromError(err)
	}

	server := version.Marker(plan.Version)
	resp := PollResponse{
		RequestID:     req.RequestID,
		Status:        StatusUnchanged,
		SyncStatus:    s.tracker.Compare(server, req.ClientMarker),
		ScopeKind:     plan.ScopeKind,
		ModuleCount:   len(plan.Modules),
		VersionMarker: plan.Version,
		NextChangeAt:  plan.NextChangeAt,
	}
	if resp.RequestID == "" {
		resp.RequestID = uuid.NewString()
	}
	if plan.ScopeKind == model.ScopeNone || req.ClientMarker.IsZero() || server.After(req.ClientMarker) || blockChanged(req, plan) {
		resp.Status = StatusFull
		resp.Plan = &plan
	}

	s.record(ctx, kiosk, req, resp, at)
	s.metrics.ObservePoll(resp.Status, s.now().Sub(started))

	log.Debug().
		Str("request_id", resp.RequestID).
		Str("device_id", kiosk.DeviceID).
		Str("status", resp.Status).
		Str("sync_status", string(resp.SyncStatus)).
		Int64("client_marker", int64(req.ClientMarker)).
		Int64("server_marker", plan.Version).
		Msg("device poll")
	return resp, nil
}

func blockChanged(req PollRequest, plan model.LoopPlan) bool {
	if req.ActiveBlockID == nil {
		return false
	}
	var active int64
	if plan.ActiveBlockID != nil {
		active = *plan.ActiveBlockID
	}
	return *req.ActiveBlockID != active
}

// record writes the poll audit row and the last-seen stamp. Failures never fail the poll.
func (s *Service) record(ctx context.Context, kiosk *model.Kiosk, req PollRequest, resp PollResponse, at time.Time) {
	entry := &model.SyncLog{
		RequestID:    resp.RequestID,
		KioskID:      kiosk.ID,
		Status:       resp.Status,
		ScopeKind:    resp.ScopeKind,
		ClientMarker: int64(req.ClientMarker),
		ServerMarker: resp.VersionMarker,
		CreatedAt:    at,
	}
	if err := s.store.InsertSyncLog(ctx, entry); err != nil {
		log.Warn().Err(err).Str("request_id", resp.RequestID).Msg("sync log write failed")
	}
	if err := s.store.RecordKioskSeen(ctx, kiosk.ID, int64(req.ClientMarker), at); err != nil {
		log.Warn().Err(err).Int64("kiosk_id", kiosk.ID).Msg("record kiosk seen failed")
	}
}

// SyncStatus compares the marker a device last reported with the current one.
func (s *Service) SyncStatus(ctx context.Context, id *model.Identity, deviceID string) (SyncReport, error) {
	if id != nil && id.Role == model.RoleDevice {
		return SyncReport{}, apperror.ErrForbidden
	}
	kiosk, err := AuthorizeKiosk(ctx, s.store, id, deviceID)
	if err != nil {
		return SyncReport{}, err
	}

	scope, _, err := s.resolver.ScopeFor(ctx, kiosk)
	if err != nil {
		return SyncReport{}, apperror.Storage(err)
	}
	var server version.Marker
	if scope.Kind != model.ScopeNone {
		if server, err = s.tracker.Current(ctx, scope); err != nil {
			return SyncReport{}, apperror.Storage(err)
		}
	}

	reported := version.Marker(kiosk.ReportedVersion)
	return SyncReport{
		DeviceID:       kiosk.DeviceID,
		ScopeKind:      scope.Kind,
		ServerMarker:   int64(server),
		ReportedMarker: int64(reported),
		Status:         s.tracker.Compare(server, reported),
		LastSeenAt:     kiosk.LastSeenAt,
	}, nil
}
