package endpoints

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/devicesync"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/http/api"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/http/api/kiosk/packets"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/power"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/version"
)

type Poller interface {
	Poll(ctx context.Context, id *model.Identity, req devicesync.PollRequest) (devicesync.PollResponse, error)
}

type PowerReader interface {
	Status(ctx context.Context, id *model.Identity, deviceID string, at time.Time) (power.Status, error)
}

type KioskController struct {
	sync  Poller
	power PowerReader
	loc   *time.Location
	now   func() time.Time
}

func NewKioskController(sync Poller, pw PowerReader, loc *time.Location) *KioskController {
	if loc == nil {
		loc = time.UTC
	}
	return &KioskController{sync: sync, power: pw, loc: loc, now: time.Now}
}

// KioskModule serves the device-facing poll endpoints.
func KioskModule(sync Poller, pw PowerReader, loc *time.Location) api.Module {
	ctl := NewKioskController(sync, pw, loc)
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/loop", ctl.getLoop)
		c.GET("/power", ctl.getPower)
	})
}

// GET /api/kiosk/loop?device_id=&version=&block=
func (k *KioskController) getLoop(ctx *gin.Context, id *model.Identity) (any, *api.Error) {
	var query packets.LoopQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		return nil, api.BadRequest(err)
	}
	marker, err := version.ParseMarker(query.Version)
	if err != nil {
		return nil, api.BadRequest(err)
	}

	resp, err := k.sync.Poll(ctx.Request.Context(), id, devicesync.PollRequest{
		DeviceID:      query.DeviceID,
		ClientMarker:  marker,
		RequestID:     middleware.RequestID(ctx),
		ActiveBlockID: query.Block,
	})
	if err != nil {
		return nil, api.Fail(err)
	}
	ctx.Header("Cache-Control", "no-store")
	return resp, nil
}

// GET /api/kiosk/power?device_id=
func (k *KioskController) getPower(ctx *gin.Context, id *model.Identity) (any, *api.Error) {
	var query packets.PowerQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		return nil, api.BadRequest(err)
	}

	st, err := k.power.Status(ctx.Request.Context(), id, query.DeviceID, k.now().In(k.loc))
	if err != nil {
		e := api.Fail(err)
		if st.State == model.PowerError {
			e = e.WithDetails(st)
		}
		return nil, e
	}
	return st, nil
}
