package inspection

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/ukaguzi/core"
	"github.com/trezcool/ukaguzi/core/aggregate"
	"github.com/trezcool/ukaguzi/core/event"
	"github.com/trezcool/ukaguzi/core/profile"
	"github.com/trezcool/ukaguzi/core/standard"
	"github.com/trezcool/ukaguzi/core/stats"
	"github.com/trezcool/ukaguzi/core/visit"
)

// Inspector is a tracker user allowed to use the app.
type Inspector struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	OrgUnits []string `json:"org_units"`
}

// ResourceDashboard compares a school's resources with its cluster, month by month.
type ResourceDashboard struct {
	School     event.OrgUnit         `json:"school"`
	Cluster    *event.OrgUnit        `json:"cluster,omitempty"`
	Categories []string              `json:"categories"`
	Series     aggregate.Series      `json:"series"`
	Latest     *aggregate.Bucket     `json:"latest,omitempty"`
	Compliance []standard.Compliance `json:"compliance"`
	Skipped    int                   `json:"skipped"`    // events without a usable date
	Incomplete []string              `json:"incomplete"` // cluster schools whose events could not be fetched
}

// ClusterDashboard holds the statistics of every month/category of a cluster.
type ClusterDashboard struct {
	Cluster    event.OrgUnit                       `json:"cluster"`
	Schools    int                                 `json:"schools"`
	Months     []string                            `json:"months"`
	Statistics map[string]map[string]stats.Summary `json:"statistics"`
	Skipped    int                                 `json:"skipped"`
	Incomplete []string                            `json:"incomplete"`
}

// VisitsDashboard counts the visits of a school.
type VisitsDashboard struct {
	School    event.OrgUnit          `json:"school"`
	Monthly   []aggregate.MonthCount `json:"monthly"`
	Quarterly []aggregate.Quarter    `json:"quarterly"`
	Recency   visit.Recency          `json:"recency"`
	Skipped   int                    `json:"skipped"`
}

// VisitPlan lists the schools of a cluster, the ones most in need of a visit first.
type VisitPlan struct {
	Cluster          event.OrgUnit   `json:"cluster"`
	Schools          []visit.Planned `json:"schools"`
	Markers          []visit.Marker  `json:"markers"`
	Overdue          int             `json:"overdue"`
	OverdueAfterDays int             `json:"overdue_after_days"`
	Incomplete       []string        `json:"incomplete"`
}

// NewInspection contains information needed to submit an inspection.
type NewInspection struct {
	OrgUnit    string            `json:"org_unit" validate:"required"`
	Program    string            `json:"program"`
	OccurredAt string            `json:"occurred_at" validate:"required,isodate"`
	Values     map[string]string `json:"values" validate:"required,min=1,dive,keys,required,endkeys,numeric_str"`
}

func (ni *NewInspection) Clean() {
	ni.OrgUnit = core.CleanString(ni.OrgUnit)
	ni.Program = core.CleanString(ni.Program)
	ni.OccurredAt = core.CleanString(ni.OccurredAt)
	ni.Values = core.CleanValues(ni.Values)
}

// Validate cleans & validates ni against the profile. Resource inspections may only carry known data elements.
func (ni *NewInspection) Validate(validate *validator.Validate, p *profile.Profile, now time.Time) error {
	ni.Clean()
	if ni.Program == "" {
		ni.Program = p.Programs.Resources
	}
	if err := validate.Struct(ni); err != nil {
		return err
	}

	var flds []core.FieldError
	if d, err := time.Parse("2006-01-02", ni.OccurredAt); err == nil && d.After(now) {
		flds = append(flds, core.FieldError{Field: "occurred_at", Error: "cannot be in the future"})
	}
	if ni.Program != p.Programs.Resources && ni.Program != p.Programs.Visits {
		flds = append(flds, core.FieldError{Field: "program", Error: "unknown program"})
	}
	if ni.Program == p.Programs.Resources {
		for de := range ni.Values {
			if _, ok := p.Fields[de]; !ok {
				flds = append(flds, core.FieldError{Field: "values." + de, Error: "unknown data element"})
			}
		}
	}
	if len(flds) > 0 {
		sort.Slice(flds, func(i, j int) bool { return flds[i].Field < flds[j].Field })
		return core.NewValidationError(errors.New("invalid inspection"), flds...)
	}
	return nil
}

// Event converts ni to a tracker event.
func (ni NewInspection) Event() event.Event {
	des := make([]string, 0, len(ni.Values))
	for de := range ni.Values {
		des = append(des, de)
	}
	sort.Strings(des)

	e := event.Event{
		OrgUnit:    ni.OrgUnit,
		Program:    ni.Program,
		OccurredAt: ni.OccurredAt,
		DataValues: make([]event.DataValue, 0, len(des)),
	}
	for _, de := range des {
		e.DataValues = append(e.DataValues, event.DataValue{DataElement: de, Value: ni.Values[de]})
	}
	return e
}

// PendingSubmission is an inspection saved locally because the tracker could not be reached.
type PendingSubmission struct {
	ID        string      `json:"id" db:"id"`
	Event     event.Event `json:"event" db:"-"`
	Attempts  int         `json:"attempts" db:"attempts"`
	LastError string      `json:"last_error" db:"last_error"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// Submission is the outcome of submitting an inspection.
type Submission struct {
	Pending   bool   `json:"pending"`
	PendingID string `json:"pending_id,omitempty"`
	EventID   string `json:"event_id,omitempty"`
}

// ResubmitResult is the outcome of retrying the pending submissions.
type ResubmitResult struct {
	Submitted int `json:"submitted"`
	Failed    int `json:"failed"`
}
