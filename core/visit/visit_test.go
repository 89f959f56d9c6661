package visit

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func daysAgo(now time.Time, days int) *time.Time {
	t := now.Add(-time.Duration(days) * 24 * time.Hour)
	return &t
}

func TestClassify(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name        string
		last        *time.Time
		wantDays    int
		wantOverdue bool
		wantSev     Severity
	}{
		{name: "never visited", last: nil, wantDays: NeverVisited, wantOverdue: true, wantSev: SeveritySeverelyOverdue},
		{name: "10 days", last: daysAgo(now, 10), wantDays: 10, wantSev: SeverityCurrent},
		{name: "90 days", last: daysAgo(now, 90), wantDays: 90, wantSev: SeverityCurrent},
		{name: "91 days", last: daysAgo(now, 91), wantDays: 91, wantOverdue: true, wantSev: SeverityOverdue},
		{name: "180 days", last: daysAgo(now, 180), wantDays: 180, wantOverdue: true, wantSev: SeverityOverdue},
		{name: "181 days", last: daysAgo(now, 181), wantDays: 181, wantOverdue: true, wantSev: SeveritySeverelyOverdue},
		{name: "partial day floors", last: func() *time.Time { t := now.Add(-47 * time.Hour); return &t }(), wantDays: 1, wantSev: SeverityCurrent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.last, now)
			assert.Equal(t, tt.wantDays, got.DaysSince)
			assert.Equal(t, tt.wantOverdue, got.IsOverdue)
			assert.Equal(t, tt.wantSev, got.Severity)
			assert.Equal(t, tt.last, got.LastVisit)
		})
	}
}

func TestSortPlan(t *testing.T) {
	now := time.Now()
	plan := []Planned{
		{OrgUnit: "recent", Recency: Classify(daysAgo(now, 5), now)},
		{OrgUnit: "overdue", Recency: Classify(daysAgo(now, 100), now)},
		{OrgUnit: "never", Recency: Classify(nil, now)},
		{OrgUnit: "older", Recency: Classify(daysAgo(now, 60), now)},
		{OrgUnit: "severe", Recency: Classify(daysAgo(now, 200), now)},
	}
	SortPlan(plan)

	order := make([]string, 0, len(plan))
	for _, p := range plan {
		order = append(order, p.OrgUnit)
	}
	assert.Equal(t, []string{"never", "severe", "overdue", "older", "recent"}, order)
}

type presenterSpy struct {
	selected   []Marker
	recentered int
}

func (p *presenterSpy) OnSelect(m Marker) { p.selected = append(p.selected, m) }
func (p *presenterSpy) OnRecenter()       { p.recentered++ }

func TestMarkersAndSelect(t *testing.T) {
	now := time.Now()
	plan := []Planned{
		{OrgUnit: "a", Name: "EP Alpha", Coordinates: []float64{29.2, -1.6}, Recency: Classify(nil, now)},
		{OrgUnit: "b", Name: "EP Beta", Recency: Classify(daysAgo(now, 3), now)},
	}
	markers := Markers(plan)
	require.Len(t, markers, 1)
	assert.Equal(t, Marker{OrgUnit: "a", Name: "EP Alpha", Longitude: 29.2, Latitude: -1.6, Severity: SeveritySeverelyOverdue, DaysSince: NeverVisited}, markers[0])

	spy := new(presenterSpy)
	require.NoError(t, Select(spy, markers, "a"))
	require.NoError(t, Select(spy, markers, ""))
	err := Select(spy, markers, "b")
	assert.Equal(t, ErrNoMarker, errors.Cause(err))

	assert.Len(t, spy.selected, 1)
	assert.Equal(t, 1, spy.recentered)
}
