package fusion

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/echoshield/echoshield/algorithms/stats"
)

// TrackMethodBearingOnly is the aggregation method for bearing-only tracks.
const TrackMethodBearingOnly = "bearing_only"

// Track statuses. Expiry is monotonic: an expired track never returns to
// active; a new time bucket produces a new track.
const (
	TrackStatusActive  = "active"
	TrackStatusExpired = "expired"
)

// TrackEvent is the slice of an event the tracker jobs operate on.
type TrackEvent struct {
	EventID    string   `json:"event_id"`
	NodeID     string   `json:"node_id"`
	TsNs       int64    `json:"ts_ns"`
	BearingDeg *float64 `json:"bearing_deg,omitempty"`
}

// Contributor links one event into a track. At most one contributor exists
// per (track, event) pair.
type Contributor struct {
	EventID    string  `json:"event_id"`
	NodeID     string  `json:"node_id"`
	BearingDeg float64 `json:"bearing_deg"`
	TsNs       int64   `json:"ts_ns"`
}

// TrackUpdate is the mutation the aggregator asks persistence to apply:
// update-or-create the track row keyed by TrackID, then link each
// contributor and stamp its event with the track id.
type TrackUpdate struct {
	TrackID              string        `json:"track_id"`
	Method               string        `json:"method"`
	FirstTsNs            int64         `json:"first_ts_ns"`
	LastTsNs             int64         `json:"last_ts_ns"`
	AggregatedBearingDeg float64       `json:"aggregated_bearing_deg"` // In [0, 360)
	AggregationConf      float64       `json:"aggregation_conf"`       // In [0, 1]
	Status               string        `json:"status"`
	Contributors         []Contributor `json:"contributors"`
}

// TrackState is the minimal view of a persisted track the expiry sweep needs.
type TrackState struct {
	TrackID  string `json:"track_id"`
	Status   string `json:"status"`
	LastTsNs int64  `json:"last_ts_ns"`
}

// TrackerConfig holds the batch-job tunables.
type TrackerConfig struct {
	DedupTimeDelta    time.Duration `json:"dedup_time_delta"`
	DedupBearingDelta float64       `json:"dedup_bearing_delta_deg"`
	AggregationWindow time.Duration `json:"aggregation_window"`
	MinContributors   int           `json:"min_track_contributors"`
	TrackStaleness    time.Duration `json:"track_staleness"`
}

// DefaultTrackerConfig returns the stock batch-job tunables.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		DedupTimeDelta:    5 * time.Second,
		DedupBearingDelta: 20.0,
		AggregationWindow: 10 * time.Second,
		MinContributors:   2,
		TrackStaleness:    60 * time.Second,
	}
}

// Validate checks the tracker tunables.
func (c TrackerConfig) Validate() error {
	if c.DedupTimeDelta <= 0 {
		return fmt.Errorf("dedup time delta must be positive, got %s", c.DedupTimeDelta)
	}
	if c.DedupBearingDelta <= 0 {
		return fmt.Errorf("dedup bearing delta must be positive, got %.2f", c.DedupBearingDelta)
	}
	if c.AggregationWindow <= 0 {
		return fmt.Errorf("aggregation window must be positive, got %s", c.AggregationWindow)
	}
	if c.MinContributors < 1 {
		return fmt.Errorf("min contributors must be at least 1, got %d", c.MinContributors)
	}
	if c.TrackStaleness <= 0 {
		return fmt.Errorf("track staleness must be positive, got %s", c.TrackStaleness)
	}
	return nil
}

// Deduplicate returns the event ids to flag as duplicate among not-yet-flagged
// events. Events from the same node closer than the time delta, with bearings
// within the circular bearing delta (or either bearing missing), are
// duplicates; the later timestamp is always the one flagged. On identical
// timestamps the earlier-sorted event is flagged.
//
// The input is sorted by (node, ts) internally; because of that ordering the
// per-node scan stops at the first pair exceeding the time delta.
func Deduplicate(events []TrackEvent, cfg TrackerConfig) []string {
	sorted := make([]TrackEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].NodeID != sorted[j].NodeID {
			return sorted[i].NodeID < sorted[j].NodeID
		}
		return sorted[i].TsNs < sorted[j].TsNs
	})

	deltaNs := cfg.DedupTimeDelta.Nanoseconds()
	flagged := make(map[string]bool)

	for i, a := range sorted {
		for _, b := range sorted[i+1:] {
			if a.NodeID != b.NodeID {
				break
			}

			timeDiff := b.TsNs - a.TsNs
			if timeDiff < 0 {
				timeDiff = -timeDiff
			}
			if timeDiff > deltaNs {
				break
			}

			if a.BearingDeg != nil && b.BearingDeg != nil {
				if stats.AngularDiff(*a.BearingDeg, *b.BearingDeg) > cfg.DedupBearingDelta {
					continue
				}
			}

			later := b
			if a.TsNs >= b.TsNs {
				later = a
			}
			flagged[later.EventID] = true
		}
	}

	ids := make([]string, 0, len(flagged))
	for id := range flagged {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Aggregate partitions untracked, non-duplicate bearing events into time
// buckets of the aggregation window and builds one TrackUpdate per bucket
// with contributions from at least MinContributors distinct nodes. Events
// without a bearing are skipped. The track id derives from the bucket key,
// so re-running over an existing bucket updates the same track.
func Aggregate(events []TrackEvent, cfg TrackerConfig) []TrackUpdate {
	windowNs := cfg.AggregationWindow.Nanoseconds()

	buckets := make(map[int64][]TrackEvent)
	for _, e := range events {
		if e.BearingDeg == nil {
			continue
		}
		key := e.TsNs / windowNs
		buckets[key] = append(buckets[key], e)
	}

	keys := make([]int64, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var updates []TrackUpdate
	for _, key := range keys {
		bucket := buckets[key]

		nodes := make(map[string]bool)
		for _, e := range bucket {
			nodes[e.NodeID] = true
		}
		if len(nodes) < cfg.MinContributors {
			continue
		}

		bearings := make([]float64, len(bucket))
		contributors := make([]Contributor, len(bucket))
		firstTs, lastTs := bucket[0].TsNs, bucket[0].TsNs
		for i, e := range bucket {
			bearings[i] = *e.BearingDeg
			contributors[i] = Contributor{
				EventID:    e.EventID,
				NodeID:     e.NodeID,
				BearingDeg: *e.BearingDeg,
				TsNs:       e.TsNs,
			}
			firstTs = min(firstTs, e.TsNs)
			lastTs = max(lastTs, e.TsNs)
		}

		mean, std, err := stats.CircularMeanStd(bearings)
		if err != nil {
			continue
		}

		updates = append(updates, TrackUpdate{
			TrackID:              fmt.Sprintf("bearing-%d", key),
			Method:               TrackMethodBearingOnly,
			FirstTsNs:            firstTs,
			LastTsNs:             lastTs,
			AggregatedBearingDeg: stats.NormalizeBearing(mean),
			AggregationConf:      math.Max(0, 1.0-std/180.0),
			Status:               TrackStatusActive,
			Contributors:         contributors,
		})
	}

	return updates
}

// Expire returns the ids of active tracks whose last contribution is older
// than the staleness threshold at the given time.
func Expire(tracks []TrackState, cfg TrackerConfig, nowNs int64) []string {
	cutoff := nowNs - cfg.TrackStaleness.Nanoseconds()

	var expired []string
	for _, t := range tracks {
		if t.Status == TrackStatusActive && t.LastTsNs < cutoff {
			expired = append(expired, t.TrackID)
		}
	}
	return expired
}
