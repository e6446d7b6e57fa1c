package schedule

import (
	"time"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

// lookaheadDays covers a full weekly cycle plus the day a wrapped window ends on.
const lookaheadDays = 8

// NextChange returns the first whole second after at where any enabled window starts
// or stops matching, or nil when none does within the coming week. Candidates are
// window starts, the second after window ends and midnights, all read as wall clock in
// at's location.
func NextChange(windows []model.TimeWindow, at time.Time) *time.Time {
	var next *time.Time
	y, m, d := at.Date()
	loc := at.Location()

	for offset := 0; offset <= lookaheadDays; offset++ {
		if next != nil && time.Date(y, m, d+offset, 0, 0, 0, 0, loc).After(*next) {
			break
		}
		for _, w := range windows {
			if !w.Enabled {
				continue
			}
			for _, c := range []model.ClockTime{0, w.Start, w.End + 1} {
				h, mi, s := int(c)/3600, int(c)%3600/60, int(c)%60
				candidate := time.Date(y, m, d+offset, h, mi, s, 0, loc)
				if !candidate.After(at) || (next != nil && !candidate.Before(*next)) {
					continue
				}
				if Matches(w, candidate) != Matches(w, candidate.Add(-time.Second)) {
					next = &candidate
				}
			}
		}
	}
	return next
}
