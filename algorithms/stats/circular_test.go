package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBearing(t *testing.T) {
	assert.InDelta(t, 0.0, NormalizeBearing(360.0), 1e-9)
	assert.InDelta(t, 350.0, NormalizeBearing(-10.0), 1e-9)
	assert.InDelta(t, 45.0, NormalizeBearing(405.0), 1e-9)
	assert.InDelta(t, 180.0, NormalizeBearing(180.0), 1e-9)
}

func TestAngularDiff(t *testing.T) {
	for _, b := range []float64{0, 10, 90, 180, 270, 359.5} {
		assert.InDelta(t, 0.0, AngularDiff(b, b), 1e-9)
	}

	assert.InDelta(t, 20.0, AngularDiff(10, 350), 1e-9)
	assert.InDelta(t, 20.0, AngularDiff(350, 10), 1e-9)
	assert.InDelta(t, 180.0, AngularDiff(0, 180), 1e-9)
	assert.InDelta(t, 2.0, AngularDiff(359, 1), 1e-9)
}

func TestCircularMeanWrapsAroundNorth(t *testing.T) {
	mean, err := CircularMean([]float64{10, 350})
	require.NoError(t, err)

	// The mean of angles straddling north is north, not south.
	assert.InDelta(t, 0.0, AngularDiff(mean, 0.0), 1e-9)
}

func TestCircularMeanEmpty(t *testing.T) {
	_, err := CircularMean(nil)
	assert.Error(t, err)
}

func TestCircularStdShrinksWithSpread(t *testing.T) {
	tight, err := CircularStd([]float64{89, 90, 91})
	require.NoError(t, err)

	loose, err := CircularStd([]float64{60, 90, 120})
	require.NoError(t, err)

	assert.Less(t, tight, loose)
}

func TestCircularStdPerfectAgreement(t *testing.T) {
	std, err := CircularStd([]float64{42, 42, 42})
	require.NoError(t, err)
	assert.Zero(t, std)
}

func TestCircularMeanStd(t *testing.T) {
	mean, std, err := CircularMeanStd([]float64{355, 5})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, AngularDiff(mean, 0.0), 1e-9)
	assert.Greater(t, std, 0.0)
}

func TestTrimmedCircularMeanDropsOutlier(t *testing.T) {
	// Nine bearings near 90 and one wild outlier. A 20% trim must discard
	// the outlier, so the result stays near 90.
	angles := []float64{88, 89, 89.5, 90, 90, 90.5, 91, 91.5, 92, 270}

	mean, err := TrimmedCircularMean(angles, 0.2)
	require.NoError(t, err)
	assert.InDelta(t, 90.0, mean, 1.0)
}

func TestTrimmedCircularMeanNoTrim(t *testing.T) {
	angles := []float64{10, 20}

	mean, err := TrimmedCircularMean(angles, 0.2)
	require.NoError(t, err)

	raw, err := CircularMean(angles)
	require.NoError(t, err)
	assert.InDelta(t, raw, mean, 1e-9)
}

func TestTrimmedCircularMeanBadProportion(t *testing.T) {
	_, err := TrimmedCircularMean([]float64{1, 2}, 1.0)
	assert.Error(t, err)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 3.0, Median([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 2, 3}))

	// Robust to one strong outlier.
	assert.Equal(t, 1.0, Median([]float64{1, 1, 1, 1, 1000}))
}

func TestPercentile(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}

	p50, err := Percentile(data, 50)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, p50, 1e-9)

	p0, err := Percentile(data, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p0, 1e-9)

	p100, err := Percentile(data, 100)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, p100, 1e-9)

	p25, err := Percentile(data, 25)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, p25, 1e-9)

	_, err = Percentile(nil, 50)
	assert.Error(t, err)

	_, err = Percentile(data, 101)
	assert.Error(t, err)
}
