// Package schedule decides which time windows apply at an instant and picks a
// single winner among them.
package schedule

import (
	"time"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

// TimeInRange reports whether t lies in [start, end], both ends inclusive.
// When start > end the range wraps past midnight.
func TimeInRange(t, start, end model.ClockTime) bool {
	if start <= end {
		return start <= t && t <= end
	}
	return t >= start || t <= end
}

// Matches reports whether the window contains at, read as wall clock in at's location.
func Matches(w model.TimeWindow, at time.Time) bool {
	if !w.Enabled {
		return false
	}
	switch w.Kind {
	case model.WindowDate:
		d := w.Date()
		if d == "" || at.Format(model.DateLayout) != d {
			return false
		}
	case model.WindowWeekly:
		if !w.Days.Contains(model.ISOWeekday(at)) {
			return false
		}
	default:
		return false
	}
	return TimeInRange(model.ClockOf(at), w.Start, w.End)
}

// MatchAll returns the windows containing at, in input order.
func MatchAll(windows []model.TimeWindow, at time.Time) []model.TimeWindow {
	var out []model.TimeWindow
	for _, w := range windows {
		if Matches(w, at) {
			out = append(out, w)
		}
	}
	return out
}
