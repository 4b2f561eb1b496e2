package wire

import (
	"fmt"
	"time"
)

// Fixed-point scale factors of the wire format.
const (
	latLonScale   = 1e5
	bearingScale  = 100.0
	confScale     = 100.0
	PacketVersion = 1
)

// Latency thresholds for classifying event freshness on receipt.
const (
	LatencyNormalNs  = int64(500 * time.Millisecond)
	LatencyDelayedNs = int64(2 * time.Second)
)

// Latency statuses.
const (
	LatencyNormal   = "normal"
	LatencyDelayed  = "delayed"
	LatencyObsolete = "obsolete"
)

// Sensor types accepted on the wire.
const SensorTypeAcoustic = "acoustic"

// Location methods.
const (
	LocBearingOnly           = "LOC_BEARING_ONLY"
	LocAcousticTriangulation = "LOC_ACOUSTIC_TRIANGULATION"
)

// Event codes.
const (
	EventCodeDrone       = 10
	EventCodeNoDetection = 0
)

// Validity statuses assigned during post-processing.
const (
	ValidityUnknown = "unknown"
	ValidityValid   = "valid"
	ValidityInvalid = "invalid"
)

// WireLocation is the fixed-point location block of a wire packet.
// Latitude and longitude are degrees scaled by 1e5.
type WireLocation struct {
	LatInt       int64 `json:"lat_int"`
	LonInt       int64 `json:"lon_int"`
	ErrorRadiusM int   `json:"error_radius_m"`
}

// GCCPhatMetadata carries the cross-node fusion provenance of a bearing.
type GCCPhatMetadata struct {
	Method             string  `json:"method"`
	PairedNodeID       string  `json:"paired_node_id"`
	BaselineDistanceM  float64 `json:"baseline_distance_m"`
	TDOASec            float64 `json:"tdoa_sec"`
	BaselineBearingDeg float64 `json:"baseline_bearing_deg"`
}

// WirePacket is the compact fixed-point record edge nodes transmit.
// BearingDeg is degrees scaled by 100 and nullable; BearingConfidence is an
// integer percentage.
type WirePacket struct {
	EventID           string           `json:"event_id"`
	SensorType        string           `json:"sensor_type"`
	TsNs              int64            `json:"ts_ns"`
	SensorNodeID      string           `json:"sensor_node_id"`
	Location          WireLocation     `json:"location"`
	BearingDeg        *int64           `json:"bearing_deg"`
	BearingConfidence int              `json:"bearing_confidence"`
	NObjectsDetected  int              `json:"n_objects_detected"`
	EventCode         int              `json:"event_code"`
	LocationMethod    string           `json:"location_method"`
	PacketVersion     int              `json:"packet_version"`
	GCCPhatMetadata   *GCCPhatMetadata `json:"gcc_phat_metadata,omitempty"`
}

// Event is the canonical, float-valued form of a wire packet, enriched with
// server receipt time and derived latency.
type Event struct {
	EventID      string `json:"event_id"`
	SensorType   string `json:"sensor_type"`
	SensorNodeID string `json:"sensor_node_id"`

	TsNs          int64  `json:"ts_ns"`
	RxNs          int64  `json:"rx_ns"`
	LatencyNs     int64  `json:"latency_ns"`
	LatencyStatus string `json:"latency_status"`

	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	ErrorRadiusM float64 `json:"error_radius_m"`

	BearingDeg  *float64 `json:"bearing_deg"` // In [0, 360), nil when the node had no bearing
	BearingConf float64  `json:"bearing_conf"`

	NObjects       int    `json:"n_objects"`
	EventCode      int    `json:"event_code"`
	LocationMethod string `json:"location_method"`
	PacketVersion  int    `json:"packet_version"`

	ValidityStatus string `json:"validity_status"`
	DuplicateFlag  bool   `json:"duplicate_flag"`
	TrackID        string `json:"object_track_id,omitempty"`

	GCCPhatMetadata *GCCPhatMetadata `json:"gcc_phat_metadata,omitempty"`
}

// Validate rejects malformed wire input before it reaches persistence.
func (p *WirePacket) Validate() error {
	if p.EventID == "" {
		return fmt.Errorf("missing event_id")
	}
	if p.SensorNodeID == "" {
		return fmt.Errorf("missing sensor_node_id")
	}
	if p.TsNs <= 0 {
		return fmt.Errorf("missing or invalid ts_ns")
	}
	if p.SensorType != SensorTypeAcoustic {
		return fmt.Errorf("unknown sensor_type %q", p.SensorType)
	}
	if p.BearingConfidence < 0 || p.BearingConfidence > 100 {
		return fmt.Errorf("bearing_confidence %d out of [0, 100]", p.BearingConfidence)
	}
	if p.NObjectsDetected < 0 {
		return fmt.Errorf("negative n_objects_detected %d", p.NObjectsDetected)
	}
	switch p.LocationMethod {
	case LocBearingOnly, LocAcousticTriangulation:
	default:
		return fmt.Errorf("unknown location_method %q", p.LocationMethod)
	}
	return nil
}

// LatencyStatusFor classifies an ingest latency.
func LatencyStatusFor(latencyNs int64) string {
	switch {
	case latencyNs <= LatencyNormalNs:
		return LatencyNormal
	case latencyNs <= LatencyDelayedNs:
		return LatencyDelayed
	default:
		return LatencyObsolete
	}
}

// ToCanonical converts a validated wire packet to a canonical event, stamping
// the receipt time. Clock skew can make rx precede ts; latency floors at 0.
func (p *WirePacket) ToCanonical(rxNs int64) (*Event, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if rxNs == 0 {
		rxNs = time.Now().UnixNano()
	}

	latencyNs := max(int64(0), rxNs-p.TsNs)

	var bearing *float64
	if p.BearingDeg != nil {
		b := float64(*p.BearingDeg) / bearingScale
		bearing = &b
	}

	return &Event{
		EventID:         p.EventID,
		SensorType:      p.SensorType,
		SensorNodeID:    p.SensorNodeID,
		TsNs:            p.TsNs,
		RxNs:            rxNs,
		LatencyNs:       latencyNs,
		LatencyStatus:   LatencyStatusFor(latencyNs),
		Lat:             float64(p.Location.LatInt) / latLonScale,
		Lon:             float64(p.Location.LonInt) / latLonScale,
		ErrorRadiusM:    float64(p.Location.ErrorRadiusM),
		BearingDeg:      bearing,
		BearingConf:     float64(p.BearingConfidence) / confScale,
		NObjects:        p.NObjectsDetected,
		EventCode:       p.EventCode,
		LocationMethod:  p.LocationMethod,
		PacketVersion:   p.PacketVersion,
		ValidityStatus:  ValidityUnknown,
		GCCPhatMetadata: p.GCCPhatMetadata,
	}, nil
}

// ToWire converts a canonical event back to the fixed-point wire form, for
// re-transmission. Round-tripping preserves bearing and confidence only to
// the fixed-point precision.
func (e *Event) ToWire() *WirePacket {
	var bearing *int64
	if e.BearingDeg != nil {
		b := int64(*e.BearingDeg * bearingScale)
		bearing = &b
	}

	return &WirePacket{
		EventID:           e.EventID,
		SensorType:        e.SensorType,
		TsNs:              e.TsNs,
		SensorNodeID:      e.SensorNodeID,
		Location: WireLocation{
			LatInt:       int64(e.Lat * latLonScale),
			LonInt:       int64(e.Lon * latLonScale),
			ErrorRadiusM: int(e.ErrorRadiusM),
		},
		BearingDeg:        bearing,
		BearingConfidence: int(e.BearingConf * confScale),
		NObjectsDetected:  e.NObjects,
		EventCode:         e.EventCode,
		LocationMethod:    e.LocationMethod,
		PacketVersion:     e.PacketVersion,
		GCCPhatMetadata:   e.GCCPhatMetadata,
	}
}
