package devicesync

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/apperror"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/db"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

// KioskReader looks up kiosks and their groups.
type KioskReader interface {
	GetKioskByDeviceID(ctx context.Context, deviceID string) (*model.Kiosk, error)
	GetGroupByID(ctx context.Context, id int64) (*model.KioskGroup, error)
}

// AuthorizeKiosk loads a kiosk by its device id and checks that both the kiosk and its
// group belong to the caller's tenant. Device tokens may only act for their own device.
// Denials use one generic message so tenants cannot probe each other's devices.
func AuthorizeKiosk(ctx context.Context, store KioskReader, id *model.Identity, deviceID string) (*model.Kiosk, error) {
	if id == nil {
		return nil, apperror.ErrUnauthorized
	}
	if deviceID == "" {
		return nil, apperror.Validation("device_id is required")
	}

	kiosk, err := store.GetKioskByDeviceID(ctx, deviceID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperror.Clone(apperror.ErrNotFound, "device not found")
	}
	if err != nil {
		return nil, apperror.Storage(err)
	}

	if !id.OwnsTenant(kiosk.TenantID) || (id.Role == model.RoleDevice && id.Subject != kiosk.DeviceID) {
		log.Warn().Str("subject", id.Subject).Str("device_id", deviceID).Msg("device access denied")
		return nil, apperror.ErrForbidden
	}

	if kiosk.GroupID != nil {
		group, err := store.GetGroupByID(ctx, *kiosk.GroupID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return nil, apperror.Storage(err)
		}
		if group != nil && group.TenantID != id.TenantID {
			log.Warn().Str("subject", id.Subject).Str("device_id", deviceID).Int64("group_id", group.ID).Msg("device group belongs to another tenant")
			return nil, apperror.ErrForbidden
		}
	}
	return kiosk, nil
}
