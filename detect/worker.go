package detect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/echoshield/echoshield/logging"
	"github.com/echoshield/echoshield/transcode"
)

const (
	defaultQueueSize   = 64
	defaultMaxAttempts = 3
	defaultBackoff     = 200 * time.Millisecond
)

// Job is one clip queued for detection.
type Job struct {
	ID    string               `json:"id"`
	Audio *transcode.AudioData `json:"-"`

	Enqueued time.Time `json:"enqueued"`
}

// JobResult pairs a finished job with its outcome. Err is set only when
// every attempt failed.
type JobResult struct {
	JobID    string           `json:"job_id"`
	Result   *DetectionResult `json:"result,omitempty"`
	Err      error            `json:"-"`
	Attempts int              `json:"attempts"`
}

// Worker runs detection jobs from a bounded queue with per-job retry.
// Transient processing failures are retried with doubling backoff up to
// maxAttempts; the final failure is reported on the results channel, never
// dropped.
type Worker struct {
	processor   *Processor
	jobs        chan Job
	results     chan JobResult
	maxAttempts int
	backoff     time.Duration
	logger      logging.Logger

	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewWorker wraps a processor in a retrying job queue.
func NewWorker(processor *Processor) (*Worker, error) {
	if processor == nil {
		return nil, fmt.Errorf("nil processor")
	}

	return &Worker{
		processor:   processor,
		jobs:        make(chan Job, defaultQueueSize),
		results:     make(chan JobResult, defaultQueueSize),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		logger: logging.WithFields(logging.Fields{
			"component": "detection_worker",
		}),
	}, nil
}

// Start launches concurrency goroutines draining the queue. They run until
// the context is cancelled or Close is called, whichever comes first.
func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", concurrency)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("worker already started")
	}
	w.started = true

	for i := range concurrency {
		w.wg.Add(1)
		go w.run(ctx, i)
	}

	return nil
}

// Submit queues a clip for detection and returns the job id. Blocks while
// the queue is full unless the context expires first.
func (w *Worker) Submit(ctx context.Context, audio *transcode.AudioData) (string, error) {
	if audio == nil {
		return "", fmt.Errorf("nil audio clip")
	}

	job := Job{
		ID:       uuid.NewString(),
		Audio:    audio,
		Enqueued: time.Now(),
	}

	select {
	case w.jobs <- job:
		return job.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Results exposes the outcome channel.
func (w *Worker) Results() <-chan JobResult {
	return w.results
}

// Close stops accepting jobs, waits for in-flight work, and closes the
// results channel.
func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.started = false

	close(w.jobs)
	w.wg.Wait()
	close(w.results)
}

func (w *Worker) run(ctx context.Context, id int) {
	defer w.wg.Done()

	logger := w.logger.WithFields(logging.Fields{"worker": id})

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			w.deliver(ctx, w.process(ctx, logger, job))
		}
	}
}

func (w *Worker) process(ctx context.Context, logger logging.Logger, job Job) JobResult {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		result, err := w.processor.ProcessAudio(job.Audio)
		if err == nil {
			return JobResult{JobID: job.ID, Result: result, Attempts: attempt}
		}
		lastErr = err

		logger.Warn("detection attempt failed", logging.Fields{
			"job_id":  job.ID,
			"attempt": attempt,
			"error":   err.Error(),
		})

		if attempt < w.maxAttempts {
			select {
			case <-ctx.Done():
				return JobResult{JobID: job.ID, Err: ctx.Err(), Attempts: attempt}
			case <-time.After(w.backoff << (attempt - 1)):
			}
		}
	}

	logger.Error(lastErr, "detection job exhausted retries", logging.Fields{
		"job_id": job.ID,
	})

	return JobResult{JobID: job.ID, Err: lastErr, Attempts: w.maxAttempts}
}

func (w *Worker) deliver(ctx context.Context, result JobResult) {
	select {
	case w.results <- result:
	case <-ctx.Done():
	}
}
