package model

import "time"

type PowerState string

const (
	PowerActive    PowerState = "ACTIVE"
	PowerTurnedOff PowerState = "TURNED_OFF"
	PowerError     PowerState = "ERROR"
)

func (s PowerState) IsValid() bool {
	return s == PowerActive || s == PowerTurnedOff || s == PowerError
}

// PowerWindow is a time window whose payload is the display power flag.
type PowerWindow struct {
	TimeWindow
	On bool `db:"is_on" json:"is_on"`
}

// PowerSchedule is the stored power configuration of one kiosk.
type PowerSchedule struct {
	ID      int64         `db:"id"            json:"id"`
	KioskID int64         `db:"kiosk_id"      json:"kiosk_id"`
	Name    string        `db:"name"          json:"name"`
	Enabled bool          `db:"is_active"     json:"is_active"`
	Default PowerState    `db:"default_state" json:"default_state"`
	Windows []PowerWindow `db:"-"             json:"windows"`
}

// PowerStatusLog is one row of the display status audit trail.
type PowerStatusLog struct {
	ID             int64       `db:"id"              json:"id"`
	KioskID        int64       `db:"kiosk_id"        json:"kiosk_id"`
	Status         PowerState  `db:"status"          json:"status"`
	Message        *string     `db:"message"         json:"message"`
	PreviousStatus *PowerState `db:"previous_status" json:"previous_status"`
	CreatedAt      time.Time   `db:"created_at"      json:"created_at"`
}
