package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// SettingsKind selects which typed variant a module's settings decode into.
type SettingsKind string

const (
	SettingsRaw   SettingsKind = "raw"
	SettingsClock SettingsKind = "clock"
	SettingsText  SettingsKind = "text"
	SettingsImage SettingsKind = "image"
	SettingsVideo SettingsKind = "video"
)

const (
	MinVideoDurationSec = 1
	MaxVideoDurationSec = 86400
)

type ClockSettings struct {
	Format   string `json:"format,omitempty"   validate:"omitempty,oneof=24h 12h"`
	ShowDate bool   `json:"showDate,omitempty"`
	Date     string `json:"date,omitempty"`
}

// TextSettings carries either an inline body or the id of a shared TextCollection.
type TextSettings struct {
	Body         string `json:"text,omitempty"         validate:"required_without=CollectionID,max=4000"`
	CollectionID int64  `json:"collectionId,omitempty" validate:"omitempty,min=1"`
	FontSize     int    `json:"fontSize,omitempty"     validate:"omitempty,min=8,max=400"`
	Color        string `json:"color,omitempty"        validate:"omitempty,hexcolor"`
}

type ImageSettings struct {
	URL string `json:"url"           validate:"required,url"`
	Fit string `json:"fit,omitempty" validate:"omitempty,oneof=contain cover fill"`
}

type VideoSettings struct {
	URL         string `json:"url"              validate:"required,url"`
	DurationSec int    `json:"videoDurationSec"`
	Muted       bool   `json:"muted,omitempty"`
}

// ModuleSettings is the settings payload of one module reference. Settings read back
// from storage carry only Raw; the typed variants are filled by Normalize on save.
type ModuleSettings struct {
	Kind  SettingsKind
	Clock *ClockSettings
	Text  *TextSettings
	Image *ImageSettings
	Video *VideoSettings
	Raw   map[string]any
}

var settingsValidator = validator.New()

// Normalize decodes the raw payload into the variant for kind and validates it.
// Video durations are clamped into 1..86400 seconds.
func (s ModuleSettings) Normalize(kind SettingsKind) (ModuleSettings, error) {
	out := ModuleSettings{Kind: kind, Raw: s.Raw}
	var target any
	switch kind {
	case SettingsClock:
		out.Clock = &ClockSettings{}
		target = out.Clock
	case SettingsText:
		out.Text = &TextSettings{}
		target = out.Text
	case SettingsImage:
		out.Image = &ImageSettings{}
		target = out.Image
	case SettingsVideo:
		out.Video = &VideoSettings{}
		target = out.Video
	case SettingsRaw, "":
		out.Kind = SettingsRaw
		if out.Raw == nil {
			out.Raw = map[string]any{}
		}
		return out, nil
	default:
		return ModuleSettings{}, fmt.Errorf("unknown settings kind %q", kind)
	}

	raw, err := json.Marshal(s.rawOrEmpty())
	if err != nil {
		return ModuleSettings{}, fmt.Errorf("encode settings: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return ModuleSettings{}, fmt.Errorf("decode %s settings: %w", kind, err)
	}
	if out.Video != nil {
		out.Video.DurationSec = ClampVideoDuration(out.Video.DurationSec)
	}
	if err := settingsValidator.Struct(target); err != nil {
		return ModuleSettings{}, fmt.Errorf("invalid %s settings: %w", kind, err)
	}
	out.Raw = nil
	return out, nil
}

func ClampVideoDuration(sec int) int {
	if sec < MinVideoDurationSec {
		return MinVideoDurationSec
	}
	if sec > MaxVideoDurationSec {
		return MaxVideoDurationSec
	}
	return sec
}

func (s ModuleSettings) rawOrEmpty() map[string]any {
	if s.Raw == nil {
		return map[string]any{}
	}
	return s.Raw
}

// CollectionID returns the id of the text collection the settings reference, 0 when
// there is none.
func (s ModuleSettings) CollectionID() int64 {
	if s.Text != nil {
		return s.Text.CollectionID
	}
	switch v := s.Raw["collectionId"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// With returns a copy of the settings with key set to value. Typed settings stay typed
// when the variant has a field for key; otherwise the copy is a flat Raw map.
func (s ModuleSettings) With(key string, value any) (ModuleSettings, error) {
	flat, err := s.Flatten()
	if err != nil {
		return s, err
	}
	flat[key] = value
	raw := ModuleSettings{Kind: SettingsRaw, Raw: flat}
	if s.Kind == SettingsRaw || s.Kind == "" {
		return raw, nil
	}
	typed, err := raw.Normalize(s.Kind)
	if err != nil {
		return s, err
	}
	check, err := typed.Flatten()
	if err != nil {
		return s, err
	}
	if _, ok := check[key]; !ok {
		return raw, nil
	}
	return typed, nil
}

// Flatten renders the settings into the flat object devices expect.
func (s ModuleSettings) Flatten() (map[string]any, error) {
	var variant any
	switch {
	case s.Clock != nil:
		variant = s.Clock
	case s.Text != nil:
		variant = s.Text
	case s.Image != nil:
		variant = s.Image
	case s.Video != nil:
		variant = s.Video
	default:
		out := make(map[string]any, len(s.Raw))
		for k, v := range s.Raw {
			out[k] = v
		}
		return out, nil
	}
	b, err := json.Marshal(variant)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s ModuleSettings) MarshalJSON() ([]byte, error) {
	flat, err := s.Flatten()
	if err != nil {
		return nil, err
	}
	return json.Marshal(flat)
}

func (s *ModuleSettings) UnmarshalJSON(b []byte) error {
	raw := map[string]any{}
	if len(b) > 0 && string(b) != "null" {
		if err := json.Unmarshal(b, &raw); err != nil {
			return fmt.Errorf("settings must be a JSON object: %w", err)
		}
	}
	*s = ModuleSettings{Kind: SettingsRaw, Raw: raw}
	return nil
}

// Scan reads a jsonb settings column.
func (s *ModuleSettings) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = ModuleSettings{Kind: SettingsRaw, Raw: map[string]any{}}
		return nil
	case []byte:
		return s.UnmarshalJSON(v)
	case string:
		return s.UnmarshalJSON([]byte(v))
	}
	return fmt.Errorf("cannot scan %T into ModuleSettings", src)
}

func (s ModuleSettings) Value() (driver.Value, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
