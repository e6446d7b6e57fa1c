package model

import (
	"fmt"
	"time"
)

// ScopeKind is the owner of a loop configuration.
type ScopeKind string

const (
	ScopeDevice ScopeKind = "device"
	ScopeGroup  ScopeKind = "group"
	// ScopeNone is reported when a device has no configuration of its own and no group.
	ScopeNone ScopeKind = "none"
)

func (k ScopeKind) IsValid() bool {
	return k == ScopeDevice || k == ScopeGroup
}

// Scope identifies one device or one group inside a tenant.
type Scope struct {
	Kind     ScopeKind `json:"kind"`
	ID       int64     `json:"id"`
	TenantID int64     `json:"tenant_id"`
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%d", s.Kind, s.ID)
}

// UnconfiguredModuleKey is the placeholder shown when nothing else resolves.
// It is always allowed for every tenant.
const UnconfiguredModuleKey = "unconfigured"

// ModuleReference is one entry of a block's ordered module list.
type ModuleReference struct {
	ID              int64          `db:"id"               json:"id"`
	BlockID         *int64         `db:"block_id"         json:"-"`
	ModuleID        int64          `db:"module_id"        json:"module_id"`
	ModuleKey       string         `db:"module_key"       json:"module_key"`
	ModuleName      string         `db:"module_name"      json:"module_name"`
	DurationSeconds int            `db:"duration_seconds" json:"duration_seconds"`
	Settings        ModuleSettings `db:"settings"         json:"settings"`
	DisplayOrder    int            `db:"display_order"    json:"display_order"`
	Enabled         bool           `db:"enabled"          json:"-"`
	UpdatedAt       time.Time      `db:"updated_at"       json:"-"`
	Source          ScopeKind      `db:"-"                json:"source"`
}

// ContentBlock pairs an optional time window with its module list. A nil Window marks
// the base block.
type ContentBlock struct {
	ID      *int64            `json:"id,omitempty"`
	Window  *TimeWindow       `json:"window,omitempty"`
	Modules []ModuleReference `json:"modules"`
}

func (b ContentBlock) IsBase() bool {
	return b.Window == nil
}

// ActiveScope tells which part of the configuration produced a plan.
type ActiveScope string

const (
	ActiveBlock       ActiveScope = "block"
	ActiveBase        ActiveScope = "base"
	ActivePlaceholder ActiveScope = "placeholder"
)

// LoopPlan is the resolved module list for one scope at one instant. It is never stored.
// NextChangeAt is the next instant a time window starts or stops matching, nil when no
// window changes within a week.
type LoopPlan struct {
	ActiveBlockID   *int64            `json:"active_block_id"`
	ActiveBlockName string            `json:"active_block_name,omitempty"`
	ActiveScope     ActiveScope       `json:"active_scope"`
	Modules         []ModuleReference `json:"modules"`
	PreloadModules  []string          `json:"preload_modules"`
	ScopeKind       ScopeKind         `json:"scope_kind"`
	ScopeID         int64             `json:"scope_id"`
	Version         int64             `json:"version_marker"`
	ComputedAt      time.Time         `json:"computed_at"`
	NextChangeAt    *time.Time        `json:"next_change_at,omitempty"`
}

// LoopConfig is a scope's stored configuration as edited by administrators.
type LoopConfig struct {
	Scope   Scope             `json:"scope"`
	Base    []ModuleReference `json:"base"`
	Blocks  []ContentBlock    `json:"blocks"`
	Version int64             `json:"version_marker"`
}

// HasEnabledModules reports whether the base list or an enabled time block carries at
// least one enabled module. Modules under a disabled block can never play.
func (c LoopConfig) HasEnabledModules() bool {
	for _, m := range c.Base {
		if m.Enabled {
			return true
		}
	}
	for _, b := range c.Blocks {
		if b.Window != nil && !b.Window.Enabled {
			continue
		}
		for _, m := range b.Modules {
			if m.Enabled {
				return true
			}
		}
	}
	return false
}

// ModuleMeta is the catalog entry for a module key.
type ModuleMeta struct {
	ID              int64        `db:"id"               json:"id"               yaml:"-"`
	Key             string       `db:"module_key"       json:"module_key"       yaml:"key"`
	Name            string       `db:"name"             json:"name"             yaml:"name"`
	DefaultDuration int          `db:"default_duration" json:"default_duration" yaml:"default_duration"`
	Kind            SettingsKind `db:"settings_kind"    json:"settings_kind"    yaml:"settings_kind"`
}
