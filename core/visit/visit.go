package visit

import (
	"math"
	"sort"
	"time"
)

const (
	// NeverVisited is the DaysSince of a school without any recorded visit.
	NeverVisited = 999

	OverdueAfterDays         = 90
	SeverelyOverdueAfterDays = 180
)

type Severity string

const (
	SeverityCurrent         Severity = "current"
	SeverityOverdue         Severity = "overdue"
	SeveritySeverelyOverdue Severity = "severely-overdue"
)

// Recency describes how long ago a school was last visited.
type Recency struct {
	LastVisit *time.Time `json:"last_visit"`
	DaysSince int        `json:"days_since"`
	IsOverdue bool       `json:"is_overdue"`
	Severity  Severity   `json:"severity"`
}

// Classify computes the Recency of a school last visited at last (nil when never visited).
func Classify(last *time.Time, now time.Time) Recency {
	days := NeverVisited
	if last != nil {
		days = int(math.Floor(now.Sub(*last).Hours() / 24))
	}
	r := Recency{
		LastVisit: last,
		DaysSince: days,
		IsOverdue: days > OverdueAfterDays,
		Severity:  SeverityCurrent,
	}
	switch {
	case days > SeverelyOverdueAfterDays:
		r.Severity = SeveritySeverelyOverdue
	case days > OverdueAfterDays:
		r.Severity = SeverityOverdue
	}
	return r
}

// Planned is a school on the visit planner.
type Planned struct {
	OrgUnit     string    `json:"org_unit"`
	Name        string    `json:"name"`
	Coordinates []float64 `json:"coordinates,omitempty"` // [longitude, latitude]
	Recency
}

// SortPlan orders schools so that overdue ones come first, the longest unvisited first.
func SortPlan(plan []Planned) {
	sort.SliceStable(plan, func(i, j int) bool {
		a, b := plan[i], plan[j]
		if a.IsOverdue != b.IsOverdue {
			return a.IsOverdue
		}
		return a.DaysSince > b.DaysSince
	})
}
