package model

// Roles carried in bearer claims.
const (
	RoleAdmin         = "admin"
	RoleContentEditor = "content_editor"
	RoleViewer        = "viewer"
	RoleDevice        = "device"
)

// Identity is the caller as resolved from a verified bearer token.
type Identity struct {
	Subject  string `json:"sub"`
	TenantID int64  `json:"tenant_id"`
	Role     string `json:"role"`
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// CanEditContent allows settings-only loop edits.
func (i *Identity) CanEditContent() bool {
	return i != nil && (i.Role == RoleAdmin || i.Role == RoleContentEditor)
}

// OwnsTenant reports whether the caller may act inside tenantID.
func (i *Identity) OwnsTenant(tenantID int64) bool {
	return i != nil && i.TenantID != 0 && i.TenantID == tenantID
}
