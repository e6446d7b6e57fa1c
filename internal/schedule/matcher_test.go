package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

func clock(t *testing.T, s string) model.ClockTime {
	t.Helper()
	c, err := model.ParseClockTime(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return c
}

func weekly(id int64, days model.DayMask, start, end string) model.TimeWindow {
	s, _ := model.ParseClockTime(start)
	e, _ := model.ParseClockTime(end)
	return model.TimeWindow{
		ID:       id,
		Name:     "weekly",
		Kind:     model.WindowWeekly,
		Days:     days,
		Start:    s,
		End:      e,
		Priority: model.WindowWeekly.DefaultPriority(),
		Enabled:  true,
	}
}

func dated(id int64, date, start, end string) model.TimeWindow {
	w := weekly(id, nil, start, end)
	w.Name = "dated"
	w.Kind = model.WindowDate
	w.SpecificDate = &date
	w.Priority = model.WindowDate.DefaultPriority()
	return w
}

// 2024-01-01 is a Monday.
func monday(hour, minute int) time.Time {
	return time.Date(2024, 1, 1, hour, minute, 0, 0, time.UTC)
}

func TestTimeInRange(t *testing.T) {
	cases := []struct {
		name       string
		at         string
		start, end string
		want       bool
	}{
		{"inside", "09:00", "08:00", "10:00", true},
		{"start inclusive", "08:00", "08:00", "10:00", true},
		{"end inclusive", "10:00", "08:00", "10:00", true},
		{"after end", "10:00:01", "08:00", "10:00", false},
		{"before start", "07:59:59", "08:00", "10:00", false},
		{"wrap late evening", "23:30", "22:00", "06:00", true},
		{"wrap early morning", "05:59", "22:00", "06:00", true},
		{"wrap midnight", "00:00", "22:00", "06:00", true},
		{"wrap noon", "12:00", "22:00", "06:00", false},
		{"single second", "12:00", "12:00", "12:00", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TimeInRange(clock(t, tc.at), clock(t, tc.start), clock(t, tc.end))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMatchesWeekly(t *testing.T) {
	w := weekly(1, model.DayMask{1}, "08:00", "10:00")

	assert.True(t, Matches(w, monday(9, 0)))
	assert.False(t, Matches(w, monday(11, 0)))
	assert.False(t, Matches(w, monday(9, 0).AddDate(0, 0, 1)), "tuesday is not in the mask")

	all := weekly(2, nil, "08:00", "10:00")
	assert.True(t, Matches(all, monday(9, 0).AddDate(0, 0, 6)), "empty mask applies to sunday")
}

func TestMatchesWrapUsesInstantWeekday(t *testing.T) {
	w := weekly(1, model.DayMask{1}, "22:00", "06:00")

	assert.True(t, Matches(w, monday(23, 0)))
	assert.True(t, Matches(w, monday(5, 0)), "early monday belongs to the monday window")
	assert.False(t, Matches(w, monday(5, 0).AddDate(0, 0, 1)), "early tuesday is a different weekday")
}

func TestMatchesDate(t *testing.T) {
	w := dated(1, "2024-01-01", "00:00", "23:59:59")

	assert.True(t, Matches(w, monday(12, 0)))
	assert.False(t, Matches(w, monday(12, 0).AddDate(0, 0, 7)))

	local := time.FixedZone("CET", 3600)
	assert.False(t, Matches(w, time.Date(2024, 1, 2, 0, 30, 0, 0, local)))
}

func TestMatchesDisabled(t *testing.T) {
	w := weekly(1, nil, "00:00", "23:59:59")
	w.Enabled = false
	assert.False(t, Matches(w, monday(12, 0)))
}

func TestBackToBackWindowsBothMatchAtBoundary(t *testing.T) {
	morning := weekly(1, nil, "08:00", "10:00")
	late := weekly(2, nil, "10:00", "12:00")

	got := MatchAll([]model.TimeWindow{morning, late}, monday(10, 0))
	assert.Len(t, got, 2)

	assert.Len(t, MatchAll([]model.TimeWindow{morning, late}, monday(10, 0).Add(time.Second)), 1)
}

func TestNextChange(t *testing.T) {
	morning := weekly(1, model.DayMask{1}, "09:00", "10:00")

	tests := []struct {
		name    string
		windows []model.TimeWindow
		at      time.Time
		want    *time.Time
	}{
		{"before start", []model.TimeWindow{morning}, monday(8, 0), ptr(monday(9, 0))},
		{"inside", []model.TimeWindow{morning}, monday(9, 30), ptr(monday(10, 0).Add(time.Second))},
		{"after end waits a week", []model.TimeWindow{morning}, monday(11, 0), ptr(monday(9, 0).AddDate(0, 0, 7))},
		{"wrapped window ends at midnight", []model.TimeWindow{weekly(2, model.DayMask{1}, "22:00", "02:00")}, monday(23, 0), ptr(monday(0, 0).AddDate(0, 0, 1))},
		{"dated window in the past", []model.TimeWindow{dated(3, "2023-12-31", "08:00", "09:00")}, monday(8, 0), nil},
		{"no windows", nil, monday(8, 0), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextChange(tt.windows, tt.at)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			if assert.NotNil(t, got) {
				assert.True(t, tt.want.Equal(*got), "want %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNextChangeDisabledWindowIgnored(t *testing.T) {
	w := weekly(1, nil, "09:00", "10:00")
	w.Enabled = false
	assert.Nil(t, NextChange([]model.TimeWindow{w}, monday(8, 0)))
}

func ptr(t time.Time) *time.Time { return &t }
