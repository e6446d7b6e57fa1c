package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

func TestResolveNoMatch(t *testing.T) {
	windows := []model.TimeWindow{weekly(1, model.DayMask{1}, "08:00", "10:00")}
	assert.Nil(t, Resolve(windows, monday(11, 0)))
	assert.Nil(t, Resolve(nil, monday(11, 0)))
}

func TestResolveDateBeatsWeeklyRegardlessOfPriority(t *testing.T) {
	w := weekly(1, nil, "00:00", "23:59:59")
	w.Priority = 10000
	d := dated(2, "2024-01-01", "08:00", "18:00")
	d.Priority = 1

	got := Resolve([]model.TimeWindow{w, d}, monday(9, 0))
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.ID)
}

func TestResolveTieBreaks(t *testing.T) {
	base := func(id int64, priority, order int) model.TimeWindow {
		w := weekly(id, nil, "08:00", "10:00")
		w.Priority = priority
		w.DisplayOrder = order
		return w
	}

	cases := []struct {
		name    string
		windows []model.TimeWindow
		want    int64
	}{
		{"priority", []model.TimeWindow{base(1, 100, 0), base(2, 200, 5)}, 2},
		{"display order", []model.TimeWindow{base(1, 100, 3), base(2, 100, 1)}, 2},
		{"id", []model.TimeWindow{base(7, 100, 1), base(3, 100, 1)}, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.windows, monday(9, 0))
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.ID)
		})
	}
}

func TestResolveIsDeterministicAndPure(t *testing.T) {
	windows := []model.TimeWindow{
		weekly(5, nil, "08:00", "10:00"),
		weekly(4, nil, "09:00", "11:00"),
		dated(9, "2024-01-01", "07:00", "09:30"),
	}
	before := append([]model.TimeWindow(nil), windows...)

	first := Resolve(windows, monday(9, 0))
	second := Resolve(windows, monday(9, 0))
	require.NotNil(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(9), first.ID)
	assert.Equal(t, before, windows)
}

func TestResolveBoundaryDoubleMatchIsStable(t *testing.T) {
	morning := weekly(1, nil, "08:00", "10:00")
	late := weekly(2, nil, "10:00", "12:00")

	got := Resolve([]model.TimeWindow{late, morning}, monday(10, 0))
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.ID)
}

func TestSort(t *testing.T) {
	windows := []model.TimeWindow{
		weekly(3, nil, "08:00", "10:00"),
		dated(2, "2024-05-01", "08:00", "10:00"),
		weekly(1, nil, "08:00", "10:00"),
	}
	Sort(windows)
	assert.Equal(t, []int64{2, 1, 3}, []int64{windows[0].ID, windows[1].ID, windows[2].ID})
}
