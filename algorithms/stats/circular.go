package stats

import (
	"fmt"
	"math"
	"sort"
)

// Circular statistics for angular (wraparound) quantities such as compass
// bearings. All angles are degrees; bearings are normalized to [0, 360).

// NormalizeBearing wraps an angle into [0, 360).
func NormalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, 360.0)
	if deg < 0 {
		deg += 360.0
	}
	return deg
}

// AngularDiff returns the minimum circular distance between two angles,
// in [0, 180].
func AngularDiff(a, b float64) float64 {
	diff := math.Abs(a-b)
	diff = math.Mod(diff, 360.0)
	return math.Min(diff, 360.0-diff)
}

// CircularMean returns the vector-sum mean of the angles, normalized to
// [0, 360). The mean of {10, 350} is 0, not 180.
func CircularMean(degrees []float64) (float64, error) {
	if len(degrees) == 0 {
		return 0, fmt.Errorf("empty angle set")
	}

	var sinSum, cosSum float64
	for _, d := range degrees {
		rad := d * math.Pi / 180.0
		sinSum += math.Sin(rad)
		cosSum += math.Cos(rad)
	}

	mean := math.Atan2(sinSum, cosSum) * 180.0 / math.Pi
	return NormalizeBearing(mean), nil
}

// CircularStd returns the circular standard deviation in degrees,
// sigma = sqrt(-2 ln r) with r the mean resultant length. Perfect agreement
// (r >= 1) yields zero.
func CircularStd(degrees []float64) (float64, error) {
	if len(degrees) == 0 {
		return 0, fmt.Errorf("empty angle set")
	}

	var sinSum, cosSum float64
	for _, d := range degrees {
		rad := d * math.Pi / 180.0
		sinSum += math.Sin(rad)
		cosSum += math.Cos(rad)
	}

	r := math.Sqrt(sinSum*sinSum+cosSum*cosSum) / float64(len(degrees))
	if r >= 1.0 {
		return 0, nil
	}

	return math.Sqrt(-2.0*math.Log(r)) * 180.0 / math.Pi, nil
}

// CircularMeanStd returns both the circular mean and circular standard
// deviation in one pass.
func CircularMeanStd(degrees []float64) (mean, std float64, err error) {
	mean, err = CircularMean(degrees)
	if err != nil {
		return 0, 0, err
	}

	std, err = CircularStd(degrees)
	if err != nil {
		return 0, 0, err
	}

	return mean, std, nil
}

// TrimmedCircularMean computes an outlier-robust circular mean by discarding
// the angles furthest from the raw circular mean. trimProportion is the total
// fraction discarded (e.g. 0.2 drops the worst 20%). Single-frame correlation
// peaks are noisy, so DOA aggregation uses this instead of a plain mean.
func TrimmedCircularMean(degrees []float64, trimProportion float64) (float64, error) {
	if len(degrees) == 0 {
		return 0, fmt.Errorf("empty angle set")
	}
	if trimProportion < 0 || trimProportion >= 1 {
		return 0, fmt.Errorf("trim proportion must be in [0, 1), got %.2f", trimProportion)
	}

	rawMean, err := CircularMean(degrees)
	if err != nil {
		return 0, err
	}

	nTrim := int(float64(len(degrees)) * trimProportion)
	if nTrim == 0 {
		return rawMean, nil
	}

	type angleDist struct {
		angle float64
		dist  float64
	}

	dists := make([]angleDist, len(degrees))
	for i, d := range degrees {
		dists[i] = angleDist{angle: d, dist: AngularDiff(d, rawMean)}
	}

	sort.Slice(dists, func(i, j int) bool { return dists[i].dist < dists[j].dist })

	kept := make([]float64, 0, len(degrees)-nTrim)
	for _, ad := range dists[:len(dists)-nTrim] {
		kept = append(kept, ad.angle)
	}

	return CircularMean(kept)
}
