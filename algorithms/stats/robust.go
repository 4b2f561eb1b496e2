package stats

import (
	"fmt"
	"sort"
)

// Robust location estimators for noisy spectral data. The detector estimates
// noise floors from power spectra where a strong narrowband source would
// drag a mean upward; the median stays put.

// Median returns the middle value of the data, averaging the two central
// values for even counts. Zero for empty input.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0
}

// Percentile returns the p-th percentile (0 <= p <= 100) using linear
// interpolation between closest ranks.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("empty data set")
	}
	if p < 0 || p > 100 {
		return 0, fmt.Errorf("percentile must be in [0, 100], got %.2f", p)
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0], nil
	}

	rank := p / 100.0 * float64(len(sorted)-1)
	lower := int(rank)
	frac := rank - float64(lower)

	if lower+1 >= len(sorted) {
		return sorted[len(sorted)-1], nil
	}
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower]), nil
}
