package wire

import (
	"time"

	"github.com/google/uuid"

	"github.com/echoshield/echoshield/detect"
	"github.com/echoshield/echoshield/fusion"
	"github.com/echoshield/echoshield/logging"
)

const (
	defaultAccuracyM   = 200.0
	defaultPairRadiusM = 100.0
	defaultPairWindow  = 5 * time.Second
	defaultPairMinConf = 0.5
	unknownNodeID      = "NODE_UNKNOWN"
)

// EdgePayload is the raw detection report an edge node submits before wire
// encoding. Bearing and location are optional: a node without GPS still
// reports, it just cannot participate in cross-node fusion.
type EdgePayload struct {
	NodeID     string   `json:"nodeId"`
	TimeMs     int64    `json:"time_ms"`
	AzimuthDeg *float64 `json:"azimuth_deg"`
	Confidence float64  `json:"confidence"`
	Event      string   `json:"event"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	AccM       float64  `json:"acc_m"`
}

// Ingestor maps edge payloads to wire packets, registering each report with
// the node registry and upgrading the bearing via cross-node TDOA fusion
// when a nearby node saw the same event.
type Ingestor struct {
	registry    *fusion.NodeRegistry
	pairRadiusM float64
	pairWindow  time.Duration
	pairMinConf float64
	logger      logging.Logger
}

// NewIngestor wires payload mapping to a node registry.
func NewIngestor(registry *fusion.NodeRegistry) *Ingestor {
	return &Ingestor{
		registry:    registry,
		pairRadiusM: defaultPairRadiusM,
		pairWindow:  defaultPairWindow,
		pairMinConf: defaultPairMinConf,
		logger: logging.WithFields(logging.Fields{
			"component": "wire_ingestor",
		}),
	}
}

// ToWirePacket converts an edge payload into a wire packet. When the payload
// carries a location the node and detection are registered, and a concurrent
// detection on the closest nearby node replaces the node-local bearing with a
// cross-node triangulated one.
func (in *Ingestor) ToWirePacket(payload EdgePayload) *WirePacket {
	eventID := uuid.NewString()
	tsNs := payload.TimeMs * int64(time.Millisecond)

	nodeID := payload.NodeID
	if nodeID == "" {
		nodeID = unknownNodeID
	}

	accM := payload.AccM
	if accM <= 0 {
		accM = defaultAccuracyM
	}

	bearing := payload.AzimuthDeg
	locationMethod := LocBearingOnly

	var fused *fusion.BearingEstimate
	if in.registry != nil && payload.Lat != nil && payload.Lon != nil {
		lat, lon := *payload.Lat, *payload.Lon

		if err := in.registry.RegisterNode(nodeID, lat, lon, accM); err == nil {
			_ = in.registry.AddDetection(nodeID, eventID, tsNs, payload.Confidence, lat, lon)
			fused = in.fuseBearing(nodeID, lat, lon, tsNs)
		}
	}

	if fused != nil {
		bearing = &fused.BearingDeg
		locationMethod = LocAcousticTriangulation
	}

	var bearingInt *int64
	if bearing != nil {
		b := int64(*bearing * bearingScale)
		bearingInt = &b
	}

	var latInt, lonInt int64
	if payload.Lat != nil {
		latInt = int64(*payload.Lat * latLonScale)
	}
	if payload.Lon != nil {
		lonInt = int64(*payload.Lon * latLonScale)
	}

	packet := &WirePacket{
		EventID:      eventID,
		SensorType:   SensorTypeAcoustic,
		TsNs:         tsNs,
		SensorNodeID: nodeID,
		Location: WireLocation{
			LatInt:       latInt,
			LonInt:       lonInt,
			ErrorRadiusM: int(accM),
		},
		BearingDeg:        bearingInt,
		BearingConfidence: int(payload.Confidence * confScale),
		NObjectsDetected:  1,
		EventCode:         EventCodeDrone,
		LocationMethod:    locationMethod,
		PacketVersion:     PacketVersion,
	}

	if fused != nil {
		packet.GCCPhatMetadata = &GCCPhatMetadata{
			Method:             fused.Method,
			PairedNodeID:       fused.PairedNodeID,
			BaselineDistanceM:  fused.BaselineDistanceM,
			TDOASec:            fused.TDOASec,
			BaselineBearingDeg: fused.BaselineBearingDeg,
		}
	}

	return packet
}

// fuseBearing attempts cross-node TDOA fusion: nearby nodes that registered
// a concurrent detection become pairing candidates, and the closest one
// anchors the baseline.
func (in *Ingestor) fuseBearing(nodeID string, lat, lon float64, tsNs int64) *fusion.BearingEstimate {
	nearby := in.registry.NearbyNodes(nodeID, in.pairRadiusM)
	if len(nearby) == 0 {
		return nil
	}

	concurrent := in.registry.ConcurrentDetections(tsNs, in.pairWindow, in.pairMinConf)

	var candidates []fusion.PairCandidate
	for _, n := range nearby {
		for _, det := range concurrent {
			if det.NodeID == n.NodeID {
				candidates = append(candidates, fusion.PairCandidate{
					NearbyNode: n,
					TsNs:       det.TsNs,
				})
				break
			}
		}
	}

	current := fusion.Node{NodeID: nodeID, Lat: lat, Lon: lon}
	estimate, err := fusion.EstimateBearingMultiNode(current, candidates, tsNs)
	if err != nil {
		in.logger.Warn("cross-node bearing fusion failed", logging.Fields{
			"node_id": nodeID,
			"error":   err.Error(),
		})
		return nil
	}
	if estimate != nil {
		in.logger.Info("bearing upgraded by cross-node fusion", logging.Fields{
			"node_id":     nodeID,
			"paired_node": estimate.PairedNodeID,
			"bearing_deg": estimate.BearingDeg,
		})
	}

	return estimate
}

// EventFromDetection builds a canonical event from a local detection result.
// A DOA angle becomes the event bearing; a non-detection carries the
// no-detection event code with zero objects.
func EventFromDetection(result *detect.DetectionResult, nodeID string, lat, lon, accuracyM float64, tsNs int64) *Event {
	eventCode := EventCodeNoDetection
	nObjects := 0
	if result.Detected {
		eventCode = EventCodeDrone
		nObjects = 1
	}

	var bearing *float64
	if result.DOAAngleDeg != nil {
		b := *result.DOAAngleDeg
		bearing = &b
	}

	rxNs := time.Now().UnixNano()
	latencyNs := max(int64(0), rxNs-tsNs)

	return &Event{
		EventID:        uuid.NewString(),
		SensorType:     SensorTypeAcoustic,
		SensorNodeID:   nodeID,
		TsNs:           tsNs,
		RxNs:           rxNs,
		LatencyNs:      latencyNs,
		LatencyStatus:  LatencyStatusFor(latencyNs),
		Lat:            lat,
		Lon:            lon,
		ErrorRadiusM:   accuracyM,
		BearingDeg:     bearing,
		BearingConf:    result.Confidence,
		NObjects:       nObjects,
		EventCode:      eventCode,
		LocationMethod: LocBearingOnly,
		PacketVersion:  PacketVersion,
		ValidityStatus: ValidityUnknown,
	}
}
