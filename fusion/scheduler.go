package fusion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/echoshield/echoshield/logging"
)

// EventStore is the persistence collaborator the batch jobs mutate through.
// Implementations must make ApplyTrackUpdate transactional: the track upsert,
// contributor links, and event-to-track assignment commit or roll back as one
// unit, and an event already claimed by a track is never claimed by another.
type EventStore interface {
	// PendingEvents returns recently received events not yet flagged as
	// duplicate, for deduplication.
	PendingEvents(ctx context.Context) ([]TrackEvent, error)

	// UntrackedBearingEvents returns non-duplicate bearing events not yet
	// assigned to any track, for aggregation.
	UntrackedBearingEvents(ctx context.Context) ([]TrackEvent, error)

	// ActiveTracks returns tracks in the active status, for expiry.
	ActiveTracks(ctx context.Context) ([]TrackState, error)

	// FlagDuplicates bulk-marks events as duplicate/invalid.
	FlagDuplicates(ctx context.Context, eventIDs []string) error

	// ApplyTrackUpdate upserts the track by id, links contributors uniquely
	// per (track, event), and stamps contributing events with the track id.
	ApplyTrackUpdate(ctx context.Context, update TrackUpdate) error

	// ExpireTracks transitions the given tracks to expired.
	ExpireTracks(ctx context.Context, trackIDs []string) error
}

// SchedulerConfig sets the cadences of the three periodic jobs. Dedup runs
// most often, aggregation a little slower, expiry slowest.
type SchedulerConfig struct {
	DedupInterval     time.Duration `json:"dedup_interval"`
	AggregateInterval time.Duration `json:"aggregate_interval"`
	ExpireInterval    time.Duration `json:"expire_interval"`
}

// DefaultSchedulerConfig returns the stock cadences.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		DedupInterval:     10 * time.Second,
		AggregateInterval: 15 * time.Second,
		ExpireInterval:    30 * time.Second,
	}
}

// Scheduler owns the periodic deduplicate, aggregate and expire jobs. The
// jobs themselves are pure functions over store snapshots; the scheduler
// only supplies the clock and cadence. Transient store failures are logged
// and retried on the next tick rather than aborting the loop.
type Scheduler struct {
	store    EventStore
	tracker  TrackerConfig
	cadences SchedulerConfig
	logger   logging.Logger

	wg sync.WaitGroup
}

// NewScheduler wires the batch jobs to a persistence collaborator.
func NewScheduler(store EventStore, tracker TrackerConfig, cadences SchedulerConfig) (*Scheduler, error) {
	if store == nil {
		return nil, fmt.Errorf("nil event store")
	}
	if err := tracker.Validate(); err != nil {
		return nil, err
	}
	if cadences.DedupInterval <= 0 || cadences.AggregateInterval <= 0 || cadences.ExpireInterval <= 0 {
		return nil, fmt.Errorf("scheduler intervals must be positive")
	}

	return &Scheduler{
		store:    store,
		tracker:  tracker,
		cadences: cadences,
		logger: logging.WithFields(logging.Fields{
			"component": "fusion_scheduler",
		}),
	}, nil
}

// Start launches the three job loops. They stop when the context is
// cancelled; Wait blocks until they have drained.
func (s *Scheduler) Start(ctx context.Context) {
	s.loop(ctx, s.cadences.DedupInterval, s.RunDeduplicate)
	s.loop(ctx, s.cadences.AggregateInterval, s.RunAggregate)
	s.loop(ctx, s.cadences.ExpireInterval, s.RunExpire)
}

// Wait blocks until every job loop has stopped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, job func(context.Context) (int, error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := job(ctx); err != nil {
					s.logger.Error(err, "batch job failed, will retry next tick")
				}
			}
		}
	}()
}

// RunDeduplicate executes one deduplication pass and returns the number of
// events flagged.
func (s *Scheduler) RunDeduplicate(ctx context.Context) (int, error) {
	events, err := s.store.PendingEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading pending events: %w", err)
	}

	flagged := Deduplicate(events, s.tracker)
	if len(flagged) == 0 {
		return 0, nil
	}

	if err := s.store.FlagDuplicates(ctx, flagged); err != nil {
		return 0, fmt.Errorf("flagging duplicates: %w", err)
	}

	s.logger.Info("deduplication pass complete", logging.Fields{
		"flagged": len(flagged),
	})

	return len(flagged), nil
}

// RunAggregate executes one aggregation pass and returns the number of track
// updates applied.
func (s *Scheduler) RunAggregate(ctx context.Context) (int, error) {
	events, err := s.store.UntrackedBearingEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading untracked bearing events: %w", err)
	}

	updates := Aggregate(events, s.tracker)
	applied := 0
	for _, update := range updates {
		if err := s.store.ApplyTrackUpdate(ctx, update); err != nil {
			return applied, fmt.Errorf("applying track %s: %w", update.TrackID, err)
		}
		applied++
	}

	if applied > 0 {
		s.logger.Info("aggregation pass complete", logging.Fields{
			"tracks": applied,
		})
	}

	return applied, nil
}

// RunExpire executes one expiry sweep and returns the number of tracks
// transitioned to expired.
func (s *Scheduler) RunExpire(ctx context.Context) (int, error) {
	tracks, err := s.store.ActiveTracks(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading active tracks: %w", err)
	}

	expired := Expire(tracks, s.tracker, time.Now().UnixNano())
	if len(expired) == 0 {
		return 0, nil
	}

	if err := s.store.ExpireTracks(ctx, expired); err != nil {
		return 0, fmt.Errorf("expiring tracks: %w", err)
	}

	s.logger.Info("expiry sweep complete", logging.Fields{
		"expired": len(expired),
	})

	return len(expired), nil
}
