package model

import "time"

// Kiosk represents a display device in the system.
type Kiosk struct {
	ID              int64      `db:"id"               json:"id"`
	DeviceID        string     `db:"device_id"        json:"device_id"`
	Hostname        *string    `db:"hostname"         json:"hostname"`
	TenantID        int64      `db:"tenant_id"        json:"tenant_id"`
	GroupID         *int64     `db:"group_id"         json:"group_id"`
	LastSeenAt      *time.Time `db:"last_seen_at"     json:"last_seen_at"`
	ReportedVersion int64      `db:"reported_version" json:"reported_version"`
	CreatedAt       time.Time  `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"       json:"updated_at"`
}

// KioskGroup is a tenant's group of kiosks sharing one loop configuration.
type KioskGroup struct {
	ID        int64     `db:"id"         json:"id"`
	TenantID  int64     `db:"tenant_id"  json:"tenant_id"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SyncLog is one recorded device poll.
type SyncLog struct {
	ID           int64     `db:"id"            json:"id"`
	RequestID    string    `db:"request_id"    json:"request_id"`
	KioskID      int64     `db:"kiosk_id"      json:"kiosk_id"`
	Status       string    `db:"status"        json:"status"`
	ScopeKind    ScopeKind `db:"scope_kind"    json:"scope_kind"`
	ClientMarker int64     `db:"client_marker" json:"client_marker"`
	ServerMarker int64     `db:"server_marker" json:"server_marker"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
}

// TextCollection is a tenant-owned body of text that text modules can reference by id.
// Editing it changes every loop that displays it.
type TextCollection struct {
	ID        int64     `db:"id"         json:"id"`
	TenantID  int64     `db:"tenant_id"  json:"tenant_id"`
	Name      string    `db:"name"       json:"name"`
	Body      string    `db:"body"       json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
