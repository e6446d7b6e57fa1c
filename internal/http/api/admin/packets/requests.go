package packets

import "github.com/Nixie-Tech-LLC/kiosksync/internal/model"

type ForcePowerRequest struct {
	Status model.PowerState `json:"status" binding:"required"`
	Reason string           `json:"reason"`
}

type PowerLogQuery struct {
	Limit int `form:"limit"`
}
