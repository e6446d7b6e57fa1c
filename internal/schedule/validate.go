package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

const endOfDay = model.ClockTime(24 * 60 * 60)

// Conflict is a pair of enabled windows that can both be active at the same time.
type Conflict struct {
	A model.TimeWindow
	B model.TimeWindow
}

func (c Conflict) Error() string {
	return fmt.Sprintf("time blocks %q and %q overlap", c.A.Label(), c.B.Label())
}

// ConflictError carries every conflict found by Validate.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	msgs := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		msgs[i] = c.Error()
	}
	return strings.Join(msgs, "; ")
}

// Labels lists the identifiers of the colliding windows, pairwise.
func (e *ConflictError) Labels() [][2]string {
	out := make([][2]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		out[i] = [2]string{c.A.Label(), c.B.Label()}
	}
	return out
}

type span struct {
	from, to model.ClockTime
}

// spans splits a window into half-open ranges within one day. A wrapping window
// becomes [start, 24:00) and [00:00, end).
func spans(w model.TimeWindow) []span {
	if w.Start < w.End {
		return []span{{w.Start, w.End}}
	}
	if w.Start == w.End {
		return []span{{w.Start, w.Start + 1}}
	}
	out := []span{{w.Start, endOfDay}}
	if w.End > 0 {
		out = append(out, span{0, w.End})
	}
	return out
}

// TimesOverlap reports whether two windows' time ranges intersect, ignoring days.
func TimesOverlap(a, b model.TimeWindow) bool {
	for _, sa := range spans(a) {
		for _, sb := range spans(b) {
			if sa.from < sb.to && sb.from < sa.to {
				return true
			}
		}
	}
	return false
}

// Collide reports whether two windows of the same kind could ever be active together.
func Collide(a, b model.TimeWindow) bool {
	if !a.Enabled || !b.Enabled || a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case model.WindowWeekly:
		if !a.Days.SharesDay(b.Days) {
			return false
		}
	case model.WindowDate:
		if a.Date() == "" || a.Date() != b.Date() {
			return false
		}
	default:
		return false
	}
	return TimesOverlap(a, b)
}

// Validate checks every pair of windows and returns a *ConflictError when any collide.
func Validate(windows []model.TimeWindow) error {
	var conflicts []Conflict
	for i := 0; i < len(windows); i++ {
		for j := i + 1; j < len(windows); j++ {
			if Collide(windows[i], windows[j]) {
				conflicts = append(conflicts, Conflict{A: windows[i], B: windows[j]})
			}
		}
	}
	if len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}
	return nil
}

// CheckWindow rejects windows that cannot be stored.
func CheckWindow(w model.TimeWindow) error {
	if !w.Kind.IsValid() {
		return fmt.Errorf("time block %q: unknown kind %q", w.Label(), w.Kind)
	}
	if w.Kind == model.WindowDate {
		if w.Date() == "" {
			return fmt.Errorf("time block %q: specific_date is required", w.Label())
		}
		if _, err := time.Parse(model.DateLayout, w.Date()); err != nil {
			return fmt.Errorf("time block %q: invalid specific_date %q", w.Label(), w.Date())
		}
	}
	if !w.Days.Valid() {
		return fmt.Errorf("time block %q: weekdays must be between 1 and 7", w.Label())
	}
	if w.Start < 0 || w.Start >= endOfDay || w.End < 0 || w.End >= endOfDay {
		return fmt.Errorf("time block %q: time of day out of range", w.Label())
	}
	return nil
}
