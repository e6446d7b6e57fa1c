package schedule

import (
	"sort"
	"time"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

func kindRank(k model.WindowKind) int {
	if k == model.WindowDate {
		return 0
	}
	return 1
}

// Less orders windows by precedence: date windows first, then higher priority,
// then lower display order, then lower id.
func Less(a, b model.TimeWindow) bool {
	if ra, rb := kindRank(a.Kind), kindRank(b.Kind); ra != rb {
		return ra < rb
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.DisplayOrder != b.DisplayOrder {
		return a.DisplayOrder < b.DisplayOrder
	}
	return a.ID < b.ID
}

// Sort orders windows in place by precedence.
func Sort(windows []model.TimeWindow) {
	sort.SliceStable(windows, func(i, j int) bool { return Less(windows[i], windows[j]) })
}

// Resolve returns the winning window at the instant, or nil when none matches.
// The input slice is not modified.
func Resolve(windows []model.TimeWindow, at time.Time) *model.TimeWindow {
	matching := MatchAll(windows, at)
	if len(matching) == 0 {
		return nil
	}
	winner := matching[0]
	for _, w := range matching[1:] {
		if Less(w, winner) {
			winner = w
		}
	}
	return &winner
}
