package standard

import (
	"github.com/trezcool/ukaguzi/core/aggregate"
)

// Standard is a named threshold a category's latest value is checked against.
// One of Minimum or Maximum is expected to be set.
type Standard struct {
	Name     string   `json:"name" yaml:"name"`
	Category string   `json:"category" yaml:"category"`
	Minimum  *float64 `json:"minimum,omitempty" yaml:"minimum"`
	Maximum  *float64 `json:"maximum,omitempty" yaml:"maximum"`
}

// Compliance is the result of checking one Standard.
type Compliance struct {
	Standard Standard `json:"standard"`
	Month    string   `json:"month,omitempty"`
	Value    float64  `json:"value"`
	Met      bool     `json:"met"`
	Missing  bool     `json:"missing"` // no data to evaluate; Met is then false
}

// Meets reports whether value satisfies s.
// When both bounds are set only the minimum is evaluated; a standard without bounds is always met.
func Meets(value float64, s Standard) bool {
	switch {
	case s.Minimum != nil:
		return value >= *s.Minimum
	case s.Maximum != nil:
		return value <= *s.Maximum
	default:
		return true
	}
}

// Evaluate checks every standard against the most recent bucket.
func Evaluate(buckets []aggregate.Bucket, standards []Standard) []Compliance {
	latest, ok := aggregate.Latest(buckets)
	out := make([]Compliance, 0, len(standards))
	for _, s := range standards {
		c := Compliance{Standard: s}
		if !ok {
			c.Missing = true
			out = append(out, c)
			continue
		}
		c.Month = latest.Month
		c.Value = latest.Values[s.Category]
		c.Met = Meets(c.Value, s)
		out = append(out, c)
	}
	return out
}
