package aggregate

import (
	"github.com/trezcool/ukaguzi/core/stats"
)

// Series is chart-ready data: every slice is aligned on Months.
type Series struct {
	Months     []string                  `json:"months"`
	Categories map[string]CategorySeries `json:"categories"`
}

// CategorySeries holds a school's values for one category with its cluster reference.
type CategorySeries struct {
	Values      []float64 `json:"values"`
	ClusterMean []float64 `json:"cluster_mean"`
	ClusterLow  []float64 `json:"cluster_lower"`
	ClusterHigh []float64 `json:"cluster_upper"`
	Fallback    []bool    `json:"fallback"` // true where the school's own average stands in for the cluster
}

// BuildSeries aligns a school's buckets with its cluster statistics.
// When the cluster has no value for a month/category, the school's own average over
// all its months is used as the cluster mean and both band edges.
func BuildSeries(buckets []Bucket, cluster ClusterMonths, categories []string) Series {
	s := Series{
		Months:     make([]string, len(buckets)),
		Categories: make(map[string]CategorySeries, len(categories)),
	}
	for i, b := range buckets {
		s.Months[i] = b.Month
	}

	for _, category := range categories {
		cs := CategorySeries{
			Values:      make([]float64, len(buckets)),
			ClusterMean: make([]float64, len(buckets)),
			ClusterLow:  make([]float64, len(buckets)),
			ClusterHigh: make([]float64, len(buckets)),
			Fallback:    make([]bool, len(buckets)),
		}
		for i, b := range buckets {
			cs.Values[i] = b.Values[category]
		}
		own := stats.Flat(stats.Mean(cs.Values))

		for i, b := range buckets {
			ref := own
			if values := cluster.Values(b.Month, category); len(values) > 0 {
				ref = stats.Summarize(values)
			} else {
				cs.Fallback[i] = true
			}
			cs.ClusterMean[i] = ref.Mean
			cs.ClusterLow[i] = ref.Lower
			cs.ClusterHigh[i] = ref.Upper
		}
		s.Categories[category] = cs
	}
	return s
}

// Statistics summarises every month/category of the cluster.
func Statistics(cluster ClusterMonths) map[string]map[string]stats.Summary {
	out := make(map[string]map[string]stats.Summary, len(cluster))
	for month, cats := range cluster {
		sums := make(map[string]stats.Summary, len(cats))
		for category, values := range cats {
			sums[category] = stats.Summarize(values)
		}
		out[month] = sums
	}
	return out
}
