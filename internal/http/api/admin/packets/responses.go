package packets

import "github.com/Nixie-Tech-LLC/kiosksync/internal/model"

// SaveLoopResponse reports the marker devices will see after a save.
type SaveLoopResponse struct {
	Scope         model.Scope `json:"scope"`
	VersionMarker int64       `json:"version_marker"`
}

type PowerLogResponse struct {
	DeviceID string                 `json:"device_id"`
	Entries  []model.PowerStatusLog `json:"entries"`
}
