package model

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// WindowKind tells a recurring weekly window apart from a one-off date window.
type WindowKind string

const (
	WindowWeekly WindowKind = "weekly"
	WindowDate   WindowKind = "date"
)

func (k WindowKind) IsValid() bool {
	return k == WindowWeekly || k == WindowDate
}

// DefaultPriority is used when a window is saved without an explicit priority.
func (k WindowKind) DefaultPriority() int {
	if k == WindowDate {
		return 300
	}
	return 100
}

const secondsPerDay = 24 * 60 * 60

// ClockTime is a time of day in seconds since midnight.
type ClockTime int

func NewClockTime(hour, minute, second int) ClockTime {
	return ClockTime(hour*3600 + minute*60 + second)
}

// ClockOf returns the wall clock time of t in t's location.
func ClockOf(t time.Time) ClockTime {
	h, m, s := t.Clock()
	return NewClockTime(h, m, s)
}

// ParseClockTime accepts "HH:MM" or "HH:MM:SS". "24:00" is read as the last second of the day.
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	var vals [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		vals[i] = n
	}
	if vals[0] == 24 && vals[1] == 0 && vals[2] == 0 {
		return ClockTime(secondsPerDay - 1), nil
	}
	if vals[0] > 23 || vals[1] > 59 || vals[2] > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return NewClockTime(vals[0], vals[1], vals[2]), nil
}

func (c ClockTime) String() string {
	s := int(c)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}

func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClockTime) UnmarshalText(b []byte) error {
	v, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Scan reads a postgres TIME column, which lib/pq hands over as text or a time.Time.
func (c *ClockTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = 0
		return nil
	case time.Time:
		*c = ClockOf(v)
		return nil
	case []byte:
		return c.UnmarshalText(trimFraction(string(v)))
	case string:
		return c.UnmarshalText(trimFraction(v))
	}
	return fmt.Errorf("cannot scan %T into ClockTime", src)
}

func (c ClockTime) Value() (driver.Value, error) {
	return c.String(), nil
}

func trimFraction(s string) []byte {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return []byte(s)
}

// DayMask is a set of ISO weekdays, 1 = Monday .. 7 = Sunday. Empty means every day.
type DayMask []int

// ISOWeekday maps time.Weekday onto 1..7 with Monday first.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func ParseDayMask(s string) (DayMask, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DayMask{}, nil
	}
	var out DayMask
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := strconv.Atoi(p)
		if err != nil || d < 1 || d > 7 {
			return nil, fmt.Errorf("invalid weekday %q", p)
		}
		out = append(out, d)
	}
	return out.Normalize(), nil
}

// Normalize sorts the mask and drops duplicates.
func (m DayMask) Normalize() DayMask {
	seen := make(map[int]bool, len(m))
	out := make(DayMask, 0, len(m))
	for _, d := range m {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out
}

func (m DayMask) Contains(day int) bool {
	if len(m) == 0 {
		return true
	}
	for _, d := range m {
		if d == day {
			return true
		}
	}
	return false
}

// SharesDay reports whether the two masks apply to at least one common weekday.
func (m DayMask) SharesDay(other DayMask) bool {
	if len(m) == 0 || len(other) == 0 {
		return true
	}
	for _, d := range m {
		if other.Contains(d) {
			return true
		}
	}
	return false
}

func (m DayMask) Valid() bool {
	for _, d := range m {
		if d < 1 || d > 7 {
			return false
		}
	}
	return true
}

func (m DayMask) String() string {
	parts := make([]string, len(m))
	for i, d := range m {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func (m *DayMask) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*m = DayMask{}
		return nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("cannot scan %T into DayMask", src)
	}
	parsed, err := ParseDayMask(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m DayMask) Value() (driver.Value, error) {
	return m.String(), nil
}

// DateLayout is the calendar date format used for date-specific windows.
const DateLayout = "2006-01-02"

// TimeWindow is one weekly-recurring or date-specific interval.
type TimeWindow struct {
	ID           int64      `db:"id"            json:"id"`
	Name         string     `db:"name"          json:"name"`
	Kind         WindowKind `db:"kind"          json:"kind"`
	Days         DayMask    `db:"days"          json:"days"`
	SpecificDate *string    `db:"specific_date" json:"specific_date,omitempty"`
	Start        ClockTime  `db:"start_time"    json:"start_time"`
	End          ClockTime  `db:"end_time"      json:"end_time"`
	Priority     int        `db:"priority"      json:"priority"`
	DisplayOrder int        `db:"display_order" json:"display_order"`
	Enabled      bool       `db:"enabled"       json:"enabled"`
}

// Wraps reports whether the window crosses midnight.
func (w TimeWindow) Wraps() bool {
	return w.Start > w.End
}

// Label is the human readable identifier used in conflict messages.
func (w TimeWindow) Label() string {
	if w.Name != "" {
		return w.Name
	}
	return fmt.Sprintf("#%d", w.ID)
}

// Date returns the normalized specific date, empty for weekly windows.
func (w TimeWindow) Date() string {
	if w.SpecificDate == nil {
		return ""
	}
	d := strings.TrimSpace(*w.SpecificDate)
	if len(d) > len(DateLayout) {
		d = d[:len(DateLayout)]
	}
	return d
}
