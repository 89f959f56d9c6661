package event

import (
	"strconv"
	"strings"
	"time"
)

// timestamp layouts accepted from the tracker, most specific first.
// Layouts without a zone are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type (
	// DataValue is one raw (dataElement, value) pair of an Event.
	DataValue struct {
		DataElement string `json:"dataElement"`
		Value       string `json:"value"`
	}

	// Event is one submitted inspection record as returned by the tracker.
	Event struct {
		ID         string      `json:"event,omitempty"`
		OrgUnit    string      `json:"orgUnit"`
		Program    string      `json:"program"`
		OccurredAt string      `json:"occurredAt,omitempty"`
		CreatedAt  string      `json:"createdAt,omitempty"`
		DataValues []DataValue `json:"dataValues"`
	}

	// FieldMap maps opaque data element ids to category names (e.g. "toilets", "seats").
	FieldMap map[string]string
)

// ParseTime parses a tracker timestamp.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Timestamp returns OccurredAt, falling back to CreatedAt.
// ok is false when neither can be parsed.
func (e Event) Timestamp() (time.Time, bool) {
	if t, ok := ParseTime(e.OccurredAt); ok {
		return t, true
	}
	return ParseTime(e.CreatedAt)
}

// MonthKey returns the "YYYY-MM" key of t. Lexicographic order of keys is chronological.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Values extracts the numeric value of every category in fields.
// Categories the event does not carry are 0.
func (e Event) Values(fields FieldMap) map[string]float64 {
	vals := make(map[string]float64, len(fields))
	for _, category := range fields {
		vals[category] = 0
	}
	for _, dv := range e.DataValues {
		if category, ok := fields[dv.DataElement]; ok {
			vals[category] = float64(ParseInt(dv.Value))
		}
	}
	return vals
}

// ParseInt reads the leading integer of s ("12", "12.7", "12 seats" -> 12).
// Anything without a leading integer is 0.
func ParseInt(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0 // overflow
	}
	return n
}

// Partition splits events into those with a usable timestamp and those without.
func Partition(events []Event) (valid, invalid []Event) {
	for _, e := range events {
		if _, ok := e.Timestamp(); ok {
			valid = append(valid, e)
		} else {
			invalid = append(invalid, e)
		}
	}
	return valid, invalid
}

// Latest returns the timestamp of the most recent event.
func Latest(events []Event) (time.Time, bool) {
	var latest time.Time
	var found bool
	for _, e := range events {
		if ts, ok := e.Timestamp(); ok && (!found || ts.After(latest)) {
			latest = ts
			found = true
		}
	}
	return latest, found
}

// OrgUnit is an organisation unit of the tracker: a school or a cluster.
type OrgUnit struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Coordinates []float64 `json:"coordinates,omitempty"` // [longitude, latitude]
	Parent      *OrgUnit  `json:"parent,omitempty"`
	Children    []OrgUnit `json:"children,omitempty"`
}
