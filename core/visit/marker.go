package visit

import "github.com/pkg/errors"

var ErrNoMarker = errors.New("no marker for this school")

// Marker is a map pin of the visit planner.
type Marker struct {
	OrgUnit   string   `json:"org_unit"`
	Name      string   `json:"name"`
	Longitude float64  `json:"longitude"`
	Latitude  float64  `json:"latitude"`
	Severity  Severity `json:"severity"`
	DaysSince int      `json:"days_since"`
}

// Presenter is implemented by whatever renders the planner map.
type Presenter interface {
	OnSelect(m Marker)
	OnRecenter()
}

// Markers returns the pins of every planned school that has coordinates.
func Markers(plan []Planned) []Marker {
	markers := make([]Marker, 0, len(plan))
	for _, p := range plan {
		if len(p.Coordinates) < 2 {
			continue
		}
		markers = append(markers, Marker{
			OrgUnit:   p.OrgUnit,
			Name:      p.Name,
			Longitude: p.Coordinates[0],
			Latitude:  p.Coordinates[1],
			Severity:  p.Severity,
			DaysSince: p.DaysSince,
		})
	}
	return markers
}

// Select notifies p of the marker of orgUnit; an empty orgUnit recenters the map.
func Select(p Presenter, markers []Marker, orgUnit string) error {
	if orgUnit == "" {
		p.OnRecenter()
		return nil
	}
	for _, m := range markers {
		if m.OrgUnit == orgUnit {
			p.OnSelect(m)
			return nil
		}
	}
	return errors.Wrap(ErrNoMarker, orgUnit)
}
