// Package aggregate turns flat lists of tracker events into monthly and quarterly summaries.
//
// Events without a parseable timestamp are skipped by every aggregation.
package aggregate

import (
	"sort"
	"time"

	"github.com/trezcool/ukaguzi/core/event"
)

// Bucket is the aggregation of one school's events for one month.
type Bucket struct {
	Month     string             `json:"month"`
	Timestamp time.Time          `json:"timestamp"` // of the event the values come from
	Values    map[string]float64 `json:"values"`
}

// ClusterMonths holds every value contributed by the cluster: month -> category -> values.
type ClusterMonths map[string]map[string][]float64

// Monthly aggregates the events of a single school.
// Each month keeps the values of its latest event; on equal timestamps the event seen last wins.
// Buckets are ordered by month.
func Monthly(events []event.Event, fields event.FieldMap) []Bucket {
	byMonth := make(map[string]*Bucket)
	for _, e := range events {
		ts, ok := e.Timestamp()
		if !ok {
			continue
		}
		key := event.MonthKey(ts)
		b, exists := byMonth[key]
		if !exists {
			b = &Bucket{Month: key}
			byMonth[key] = b
		} else if ts.Before(b.Timestamp) {
			continue
		}
		b.Timestamp = ts
		b.Values = e.Values(fields)
	}

	buckets := make([]Bucket, 0, len(byMonth))
	for _, b := range byMonth {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Month < buckets[j].Month })
	return buckets
}

// Cluster collects the values of every event of every school in a cluster.
// Nothing is collapsed: each event appends one value per category to its month.
func Cluster(events []event.Event, fields event.FieldMap) ClusterMonths {
	months := make(ClusterMonths)
	for _, e := range events {
		ts, ok := e.Timestamp()
		if !ok {
			continue
		}
		key := event.MonthKey(ts)
		cats, ok := months[key]
		if !ok {
			cats = make(map[string][]float64, len(fields))
			months[key] = cats
		}
		for category, v := range e.Values(fields) {
			cats[category] = append(cats[category], v)
		}
	}
	return months
}

// Months returns the month keys of c in chronological order.
func (c ClusterMonths) Months() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the values contributed to month/category, nil when there are none.
func (c ClusterMonths) Values(month, category string) []float64 {
	if cats, ok := c[month]; ok {
		return cats[category]
	}
	return nil
}

// Latest returns the most recent bucket.
func Latest(buckets []Bucket) (Bucket, bool) {
	if len(buckets) == 0 {
		return Bucket{}, false
	}
	return buckets[len(buckets)-1], true
}
