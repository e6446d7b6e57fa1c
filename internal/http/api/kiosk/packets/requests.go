package packets

// LoopQuery is what a device sends on every poll. Block is the id of the block it is
// playing, 0 for its base list.
type LoopQuery struct {
	DeviceID string `form:"device_id" binding:"required"`
	Version  string `form:"version"`
	Block    *int64 `form:"block"     binding:"omitempty,min=0"`
}

type PowerQuery struct {
	DeviceID string `form:"device_id" binding:"required"`
}
