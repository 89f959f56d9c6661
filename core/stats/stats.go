// Package stats holds the descriptive statistics used to compare a school against its cluster.
package stats

import "math"

// Summary describes the values contributed to one month/category.
type Summary struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
}

// Round2 rounds x to 2 decimal places.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64, m float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(values)))
}

// Mean returns the arithmetic mean of values rounded to 2 decimals, 0 when empty.
func Mean(values []float64) float64 {
	return Round2(mean(values))
}

// StandardDeviation returns the population standard deviation of values around mean,
// rounded to 2 decimals, 0 when empty.
func StandardDeviation(values []float64, mean float64) float64 {
	return Round2(stdDev(values, mean))
}

// Band returns mean-stddev and mean+stddev, each rounded to 2 decimals.
func Band(values []float64) (lower, upper float64) {
	s := Summarize(values)
	return s.Lower, s.Upper
}

// Summarize computes every statistic from the unrounded mean and only rounds the reported values.
func Summarize(values []float64) Summary {
	m := mean(values)
	sd := stdDev(values, m)
	return Summary{
		N:      len(values),
		Mean:   Round2(m),
		StdDev: Round2(sd),
		Lower:  Round2(m - sd),
		Upper:  Round2(m + sd),
	}
}

// Flat is the zero-width band used when only a single reference value is known.
func Flat(value float64) Summary {
	v := Round2(value)
	return Summary{Mean: v, Lower: v, Upper: v}
}
