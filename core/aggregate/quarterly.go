package aggregate

import (
	"sort"

	"github.com/trezcool/ukaguzi/core/event"
)

const monthsPerQuarter = 3

// Quarter is the number of events over (at most) three consecutive active months.
type Quarter struct {
	Label  string   `json:"label"`
	Months []string `json:"months"`
	Total  int      `json:"total"`
}

// MonthCount is the number of events of one month.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// CountByMonth counts events per month, in chronological order.
func CountByMonth(events []event.Event) []MonthCount {
	counts := make(map[string]int)
	for _, e := range events {
		if ts, ok := e.Timestamp(); ok {
			counts[event.MonthKey(ts)]++
		}
	}
	out := make([]MonthCount, 0, len(counts))
	for m, c := range counts {
		out = append(out, MonthCount{Month: m, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// Quarterly counts events per month then folds the months that have events
// into groups of three, in order. A trailing group with fewer months is kept.
func Quarterly(events []event.Event) []Quarter {
	return Fold(CountByMonth(events))
}

// Fold groups consecutive month counts by three and sums each group.
func Fold(counts []MonthCount) []Quarter {
	quarters := make([]Quarter, 0, (len(counts)+monthsPerQuarter-1)/monthsPerQuarter)
	for start := 0; start < len(counts); start += monthsPerQuarter {
		end := start + monthsPerQuarter
		if end > len(counts) {
			end = len(counts)
		}
		q := Quarter{Months: make([]string, 0, end-start)}
		for _, mc := range counts[start:end] {
			q.Months = append(q.Months, mc.Month)
			q.Total += mc.Count
		}
		q.Label = quarterLabel(q.Months)
		quarters = append(quarters, q)
	}
	return quarters
}

func quarterLabel(months []string) string {
	first, last := months[0], months[len(months)-1]
	if first == last {
		return first
	}
	return first + " - " + last
}
