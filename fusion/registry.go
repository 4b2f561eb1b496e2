package fusion

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/echoshield/echoshield/logging"
)

const defaultAccuracyM = 50.0

// Node is an active edge sensor known to the registry.
type Node struct {
	NodeID    string    `json:"node_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	AccuracyM float64   `json:"accuracy_m"`
	LastSeen  time.Time `json:"last_seen"`
}

// NearbyNode is a registry node annotated with its geometry relative to a
// reference node.
type NearbyNode struct {
	Node
	DistanceM     float64 `json:"distance_m"`
	BearingToNode float64 `json:"bearing_to_node"` // Forward azimuth from the reference, [0, 360)
}

// Detection is a registry-local detection record, kept only for the
// retention window.
type Detection struct {
	EventID      string    `json:"event_id"`
	NodeID       string    `json:"node_id"`
	TsNs         int64     `json:"ts_ns"` // Source clock
	Confidence   float64   `json:"confidence"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	RegisteredAt time.Time `json:"-"` // Registry clock
}

// Status summarizes registry contents.
type Status struct {
	TotalNodes       int      `json:"total_nodes"`
	TotalDetections  int      `json:"total_detections"`
	Nodes            []string `json:"nodes"`
	RetentionSeconds float64  `json:"retention_seconds"`
}

// NodeRegistry tracks active edge nodes and their recent detections.
// It is shared mutable state: every method is safe for concurrent use.
// Entries older than the retention window are dropped; nodes age out via the
// cache TTL, detections via a sweep on every insertion.
//
// Construct one registry per process (or per test) with NewNodeRegistry;
// there is no implicit global instance.
type NodeRegistry struct {
	retention time.Duration
	nodes     *cache.Cache

	mu         sync.RWMutex
	detections map[string][]Detection

	logger logging.Logger
}

// NewNodeRegistry creates a registry with the given retention window for
// both nodes and detections.
func NewNodeRegistry(retention time.Duration) (*NodeRegistry, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}

	return &NodeRegistry{
		retention:  retention,
		nodes:      cache.New(retention, retention),
		detections: make(map[string][]Detection),
		logger: logging.WithFields(logging.Fields{
			"component": "node_registry",
		}),
	}, nil
}

// RegisterNode upserts a node and stamps its last-seen time.
func (r *NodeRegistry) RegisterNode(nodeID string, lat, lon, accuracyM float64) error {
	if nodeID == "" {
		return fmt.Errorf("empty node id")
	}
	if accuracyM <= 0 {
		accuracyM = defaultAccuracyM
	}

	r.nodes.Set(nodeID, Node{
		NodeID:    nodeID,
		Lat:       lat,
		Lon:       lon,
		AccuracyM: accuracyM,
		LastSeen:  time.Now(),
	}, cache.DefaultExpiration)

	return nil
}

// AddDetection appends a detection and sweeps expired entries.
func (r *NodeRegistry) AddDetection(nodeID, eventID string, tsNs int64, confidence, lat, lon float64) error {
	if nodeID == "" || eventID == "" {
		return fmt.Errorf("node id and event id are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.detections[nodeID] = append(r.detections[nodeID], Detection{
		EventID:      eventID,
		NodeID:       nodeID,
		TsNs:         tsNs,
		Confidence:   confidence,
		Lat:          lat,
		Lon:          lon,
		RegisteredAt: time.Now(),
	})

	r.sweepLocked()
	return nil
}

// Lookup returns the node with the given id, if still within retention.
func (r *NodeRegistry) Lookup(nodeID string) (Node, bool) {
	v, found := r.nodes.Get(nodeID)
	if !found {
		return Node{}, false
	}
	return v.(Node), true
}

// NearbyNodes returns every other node within maxRadiusM great-circle meters
// of the given node, annotated with distance and bearing, closest first.
// An unknown reference node yields an empty result.
func (r *NodeRegistry) NearbyNodes(nodeID string, maxRadiusM float64) []NearbyNode {
	ref, found := r.Lookup(nodeID)
	if !found {
		return nil
	}

	var nearby []NearbyNode
	for id, item := range r.nodes.Items() {
		if id == nodeID {
			continue
		}
		other := item.Object.(Node)

		distance := HaversineDistance(ref.Lat, ref.Lon, other.Lat, other.Lon)
		if distance > maxRadiusM {
			continue
		}

		nearby = append(nearby, NearbyNode{
			Node:          other,
			DistanceM:     distance,
			BearingToNode: ForwardAzimuth(ref.Lat, ref.Lon, other.Lat, other.Lon),
		})
	}

	sort.Slice(nearby, func(i, j int) bool {
		return nearby[i].DistanceM < nearby[j].DistanceM
	})

	return nearby
}

// ConcurrentDetections returns all detections across all nodes within
// |ts - tsNs| <= window of the reference timestamp and at or above the
// confidence threshold.
func (r *NodeRegistry) ConcurrentDetections(tsNs int64, window time.Duration, minConfidence float64) []Detection {
	windowNs := window.Nanoseconds()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var concurrent []Detection
	for _, dets := range r.detections {
		for _, det := range dets {
			delta := det.TsNs - tsNs
			if delta < 0 {
				delta = -delta
			}
			if delta <= windowNs && det.Confidence >= minConfidence {
				concurrent = append(concurrent, det)
			}
		}
	}

	return concurrent
}

// Status reports registry statistics.
func (r *NodeRegistry) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, dets := range r.detections {
		total += len(dets)
	}

	nodeIDs := make([]string, 0, r.nodes.ItemCount())
	for id := range r.nodes.Items() {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	return Status{
		TotalNodes:       len(nodeIDs),
		TotalDetections:  total,
		Nodes:            nodeIDs,
		RetentionSeconds: r.retention.Seconds(),
	}
}

// sweepLocked drops detections older than the retention window. Caller holds
// the write lock.
func (r *NodeRegistry) sweepLocked() {
	cutoff := time.Now().Add(-r.retention)

	for nodeID, dets := range r.detections {
		kept := dets[:0]
		for _, det := range dets {
			if !det.RegisteredAt.Before(cutoff) {
				kept = append(kept, det)
			}
		}
		if len(kept) == 0 {
			delete(r.detections, nodeID)
		} else {
			r.detections[nodeID] = kept
		}
	}
}
