package endpoints

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/apperror"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/db"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/http/api"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/http/api/admin/packets"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/power"
)

type PowerService interface {
	Status(ctx context.Context, id *model.Identity, deviceID string, at time.Time) (power.Status, error)
	Schedule(ctx context.Context, id *model.Identity, deviceID string) (*model.PowerSchedule, error)
	Save(ctx context.Context, id *model.Identity, deviceID string, req power.SaveRequest) (*model.PowerSchedule, error)
	CreateDefaultSchedule(ctx context.Context, id *model.Identity, deviceID string) (*model.PowerSchedule, error)
	ForceState(ctx context.Context, id *model.Identity, deviceID string, state model.PowerState, reason string) (power.Status, error)
	Log(ctx context.Context, id *model.Identity, deviceID string, limit int) ([]model.PowerStatusLog, error)
}

type PowerController struct {
	power  PowerService
	kiosks KioskLookup
	loc    *time.Location
	now    func() time.Time
}

func NewPowerController(pw PowerService, kiosks KioskLookup, loc *time.Location) *PowerController {
	if loc == nil {
		loc = time.UTC
	}
	return &PowerController{power: pw, kiosks: kiosks, loc: loc, now: time.Now}
}

func PowerModule(pw PowerService, kiosks KioskLookup, loc *time.Location) api.Module {
	ctl := NewPowerController(pw, kiosks, loc)
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/kiosks/:id/power", ctl.getStatus)
		c.POST("/kiosks/:id/power/force", ctl.forceState)
		c.GET("/kiosks/:id/power/log", ctl.getLog)

		c.GET("/kiosks/:id/power-schedule", ctl.getSchedule)
		c.PUT("/kiosks/:id/power-schedule", ctl.saveSchedule)
		c.POST("/kiosks/:id/power-schedule/default", ctl.createDefault)
	})
}

func (p *PowerController) getStatus(ctx *gin.Context, id *model.Identity) (any, *api.Error) {
	kiosk, err := lookupKiosk(ctx, p.kiosks)
	if err != nil {
		return nil, err
	}
	st, statusErr := p.power.Status(ctx.Request.Context(), id, kiosk.DeviceID, p.now().In(p.loc))
	if statusErr != nil {
		return nil, api.Fail(statusErr)
	}
	return st, nil
}

func (p *PowerController) forceState(ctx *gin.Context, id *model.Identity) (any, *api.Error) {
	kiosk, err := lookupKiosk(ctx, p.kiosks)
	if err != nil {
		return nil, err
	}
	var request packets.ForcePowerRequest
	if bindErr := ctx.ShouldBindJSON(&request); bindErr != nil {
		return nil, api.BadRequest(bindErr)
	}
	st, forceErr := p.power.ForceState(ctx.Request.Context(), id, kiosk.DeviceID, request.Status, request.Reason)
	if forceErr != nil {
		return nil, api.Fail(forceErr)
	}
	return st, nil
}

func (p *PowerController) getLog(ctx *gin.Context, id *model.Identity) (any, *api.Error) {
	kiosk, err := lookupKiosk(ctx, p.kiosks)
	if err != nil {
		return nil, err
	}
	var query packets.PowerLogQuery
	if bindErr := ctx.ShouldBindQuery(&query); bindErr != nil {
		return nil, api.BadRequest(bindErr)
	}
	rows, logErr := p.power.Log(ctx.Request.Context(), id, kiosk.DeviceID, query.Limit)
	if logErr != nil {
		return nil, api.Fail(logErr)
	}
	if rows == nil {
		rows = []model.PowerStatusLog{}
	}
	return packets.PowerLogResponse{DeviceID: kiosk.DeviceID, Entries: rows}, nil
}

func (p *PowerController) getSchedule(ctx *gin.Context, id *model.Identity) (any, *api.Error) {
	kiosk, err := lookupKiosk(ctx, p.kiosks)
	if err != nil {
		return nil, err
	}
	sched, loadErr := p.power.Schedule(ctx.Request.Context(), id, kiosk.DeviceID)
	if loadErr != nil {
		return nil, api.Fail(loadErr)
	}
	return sched, nil
}

func (p *PowerController) saveSchedule(ctx *gin.Context, id *model.Identity) (any, *api.Error) {
	kiosk, err := lookupKiosk(ctx, p.kiosks)
	if err != nil {
		return nil, err
	}
	var request power.SaveRequest
	if bindErr := ctx.ShouldBindJSON(&request); bindErr != nil {
		return nil, api.BadRequest(bindErr)
	}
	sched, saveErr := p.power.Save(ctx.Request.Context(), id, kiosk.DeviceID, request)
	if saveErr != nil {
		return nil, api.Fail(saveErr)
	}
	return sched, nil
}

func (p *PowerController) createDefault(ctx *gin.Context, id *model.Identity) (any, *api.Error) {
	kiosk, err := lookupKiosk(ctx, p.kiosks)
	if err != nil {
		return nil, err
	}
	sched, createErr := p.power.CreateDefaultSchedule(ctx.Request.Context(), id, kiosk.DeviceID)
	if createErr != nil {
		return nil, api.Fail(createErr)
	}
	return sched, nil
}

// lookupKiosk resolves the :id path parameter. Tenant checks happen in the services.
func lookupKiosk(ctx *gin.Context, kiosks KioskLookup) (*model.Kiosk, *api.Error) {
	kioskID, err := pathID(ctx)
	if err != nil {
		return nil, err
	}
	kiosk, lookupErr := kiosks.GetKioskByID(ctx.Request.Context(), kioskID)
	switch {
	case errors.Is(lookupErr, db.ErrNotFound):
		return nil, apperror.Clone(apperror.ErrNotFound, "kiosk not found")
	case lookupErr != nil:
		return nil, apperror.Storage(lookupErr)
	}
	return kiosk, nil
}
