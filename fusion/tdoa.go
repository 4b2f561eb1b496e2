package fusion

import (
	"fmt"
	"math"
	"time"
)

const (
	// speedOfSound in m/s at 20 C.
	speedOfSound = 343.0

	// distanceDiffClampFactor caps a physically impossible distance
	// difference at this fraction of the node baseline.
	distanceDiffClampFactor = 0.95

	// tdoaBaseConfidence anchors the geometry-conditioned confidence of a
	// cross-node bearing: the result spans [0.3, 0.6].
	tdoaBaseConfidence = 0.6
)

// BearingEstimate is a cross-node bearing fused from a timestamp-based TDOA
// between two registered nodes.
type BearingEstimate struct {
	BearingDeg         float64 `json:"bearing_deg"` // In [0, 360)
	Confidence         float64 `json:"bearing_confidence"`
	Method             string  `json:"method"`
	PairedNodeID       string  `json:"paired_node_id"`
	BaselineDistanceM  float64 `json:"baseline_distance_m"`
	BaselineBearingDeg float64 `json:"baseline_bearing_deg"`
	TDOASec            float64 `json:"tdoa_sec"`
}

// TDOAToBearing converts a time difference of arrival between two nodes into
// a source bearing via hyperbolic geometry. tau is positive when sound
// arrives at node 2 first. A distance difference beyond the baseline is
// clamped to 0.95 of it rather than rejected. Confidence is highest when the
// source lies perpendicular to the baseline and lowest when collinear, where
// the hyperbola degenerates.
func TDOAToBearing(tau, lat1, lon1, lat2, lon2 float64) (bearingDeg, confidence float64, err error) {
	baselineDistance := HaversineDistance(lat1, lon1, lat2, lon2)
	if baselineDistance <= 0 {
		return 0, 0, fmt.Errorf("coincident nodes, no baseline for TDOA geometry")
	}
	baselineBearing := ForwardAzimuth(lat1, lon1, lat2, lon2)

	distanceDiff := tau * speedOfSound
	if math.Abs(distanceDiff) > baselineDistance {
		distanceDiff = math.Copysign(baselineDistance*distanceDiffClampFactor, distanceDiff)
	}

	cosTheta := distanceDiff / baselineDistance
	cosTheta = math.Max(-1, math.Min(1, cosTheta))

	thetaRad := math.Acos(math.Abs(cosTheta))
	thetaDeg := thetaRad * 180 / math.Pi

	// tau > 0 puts the source on node 2's side of the baseline.
	if distanceDiff > 0 {
		bearingDeg = math.Mod(baselineBearing+90-thetaDeg+360, 360)
	} else {
		bearingDeg = math.Mod(baselineBearing+90+thetaDeg, 360)
	}

	confidence = tdoaBaseConfidence * (0.5 + 0.5*math.Abs(math.Sin(thetaRad)))

	return bearingDeg, confidence, nil
}

// PairCandidate is a nearby node together with its own concurrent detection
// timestamp, the raw material for a cross-node TDOA.
type PairCandidate struct {
	NearbyNode
	TsNs int64 `json:"ts_ns"`
}

// EstimateBearingMultiNode fuses a bearing for a detection at the given node
// from concurrent detections on nearby nodes. The closest paired node wins;
// candidates are never averaged. Returns nil when no candidate can form a
// pair.
func EstimateBearingMultiNode(current Node, candidates []PairCandidate, detectionTsNs int64) (*BearingEstimate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	paired := candidates[0]
	for _, c := range candidates[1:] {
		if c.DistanceM < paired.DistanceM {
			paired = c
		}
	}

	tau := float64(paired.TsNs-detectionTsNs) / float64(time.Second.Nanoseconds())

	bearing, confidence, err := TDOAToBearing(tau, current.Lat, current.Lon, paired.Lat, paired.Lon)
	if err != nil {
		return nil, err
	}

	return &BearingEstimate{
		BearingDeg:         bearing,
		Confidence:         confidence,
		Method:             "GCC_PHAT_TDOA",
		PairedNodeID:       paired.NodeID,
		BaselineDistanceM:  paired.DistanceM,
		BaselineBearingDeg: paired.BearingToNode,
		TDOASec:            tau,
	}, nil
}
