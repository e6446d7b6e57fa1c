package endpoints

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/apperror"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/devicesync"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/http/api"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/http/api/admin/packets"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/loopplan"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/version"
)

type LoopEditor interface {
	Load(ctx context.Context, id *model.Identity, scope model.Scope) (model.LoopConfig, error)
	Save(ctx context.Context, id *model.Identity, scope model.Scope, req loopplan.SaveRequest) (version.Marker, error)
}

type SyncReporter interface {
	SyncStatus(ctx context.Context, id *model.Identity, deviceID string) (devicesync.SyncReport, error)
}

// KioskLookup maps the numeric kiosk id used in admin paths to its device id.
type KioskLookup interface {
	GetKioskByID(ctx context.Context, id int64) (*model.Kiosk, error)
}

type LoopController struct {
	loops   LoopEditor
	reports SyncReporter
	kiosks  KioskLookup
}

func NewLoopController(loops LoopEditor, reports SyncReporter, kiosks KioskLookup) *LoopController {
	return &LoopController{loops: loops, reports: reports, kiosks: kiosks}
}

func LoopModule(loops LoopEditor, reports SyncReporter, kiosks KioskLookup) api.Module {
	ctl := NewLoopController(loops, reports, kiosks)
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/groups/:id/loop", ctl.getLoop(model.ScopeGroup))
		c.PUT("/groups/:id/loop", ctl.saveLoop(model.ScopeGroup))
		c.GET("/kiosks/:id/loop", ctl.getLoop(model.ScopeDevice))
		c.PUT("/kiosks/:id/loop", ctl.saveLoop(model.ScopeDevice))

		c.GET("/kiosks/:id/sync-status", ctl.syncStatus)
	})
}

func (l *LoopController) getLoop(kind model.ScopeKind) api.HandlerFuncWithAuth {
	return func(ctx *gin.Context, id *model.Identity) (any, *api.Error) {
		scopeID, err := pathID(ctx)
		if err != nil {
			return nil, err
		}
		cfg, loadErr := l.loops.Load(ctx.Request.Context(), id, model.Scope{Kind: kind, ID: scopeID})
		if loadErr != nil {
			return nil, api.Fail(loadErr)
		}
		return cfg, nil
	}
}

func (l *LoopController) saveLoop(kind model.ScopeKind) api.HandlerFuncWithAuth {
	return func(ctx *gin.Context, id *model.Identity) (any, *api.Error) {
		scopeID, err := pathID(ctx)
		if err != nil {
			return nil, err
		}
		var request loopplan.SaveRequest
		if bindErr := ctx.ShouldBindJSON(&request); bindErr != nil {
			return nil, api.BadRequest(bindErr)
		}

		scope := model.Scope{Kind: kind, ID: scopeID}
		marker, saveErr := l.loops.Save(ctx.Request.Context(), id, scope, request)
		if saveErr != nil {
			return nil, api.Fail(saveErr)
		}
		return packets.SaveLoopResponse{Scope: scope, VersionMarker: int64(marker)}, nil
	}
}

// GET /api/admin/kiosks/:id/sync-status
func (l *LoopController) syncStatus(ctx *gin.Context, id *model.Identity) (any, *api.Error) {
	kiosk, err := lookupKiosk(ctx, l.kiosks)
	if err != nil {
		return nil, err
	}
	report, reportErr := l.reports.SyncStatus(ctx.Request.Context(), id, kiosk.DeviceID)
	if reportErr != nil {
		return nil, api.Fail(reportErr)
	}
	return report, nil
}

func pathID(ctx *gin.Context) (int64, *api.Error) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("invalid id %q", ctx.Param("id"))
	}
	return id, nil
}
