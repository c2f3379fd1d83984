package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"labelsync/internal/lock"
	"labelsync/internal/logger"
	"labelsync/internal/model"
	"labelsync/internal/service"
)

// ErrRunInProgress is returned when another run holds the lock for the label.
var ErrRunInProgress = errors.New("an ingestion run is already in progress")

// Notifier receives the outcome of every run.
type Notifier interface {
	Broadcast(eventType string, data interface{})
}

// IngestJob triggers the ingestor at a fixed interval. Every run, scheduled
// or manual, holds the lock for the label so runs never overlap.
type IngestJob struct {
	ingestService service.IngestService
	locker        lock.Locker
	label         string
	notifier      Notifier
	logger        *logger.Logger

	intervalMux sync.Mutex
	interval    time.Duration
	reschedule  chan time.Duration

	started atomic.Bool
	done    chan struct{}

	// stopped is set under runsMux before runs.Wait so no run is added after
	runsMux sync.Mutex
	stopped bool
	runs    sync.WaitGroup

	// Context for managing the job lifecycle
	ctx    context.Context
	cancel context.CancelFunc
}

// NewIngestJob creates a job for one label. notifier may be nil.
func NewIngestJob(
	ingestService service.IngestService,
	locker lock.Locker,
	label string,
	interval time.Duration,
	notifier Notifier,
	logger *logger.Logger,
) *IngestJob {
	ctx, cancel := context.WithCancel(context.Background())

	return &IngestJob{
		ingestService: ingestService,
		locker:        locker,
		label:         label,
		notifier:      notifier,
		logger:        logger,
		interval:      interval,
		reschedule:    make(chan time.Duration, 1),
		done:          make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start performs an initial run and then one run per interval until Stop.
// It blocks, so callers run it in its own goroutine.
func (j *IngestJob) Start() {
	if !j.started.CompareAndSwap(false, true) {
		j.logger.Warn("Ingest job for label", j.label, "already started")
		return
	}
	defer close(j.done)

	if j.ctx.Err() != nil {
		j.logger.Info("Ingest job for label", j.label, "stopped before start")
		return
	}

	interval := j.Interval()
	j.logger.Info("Starting ingest job for label", j.label, "with interval:", interval.String())

	// Run the initial ingestion
	j.spawnRun()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.spawnRun()
		case next := <-j.reschedule:
			// Reset drops the previous trigger; the next tick is a full interval away
			ticker.Reset(next)
			j.logger.Info("Ingest job for label", j.label, "rescheduled to every", next.String())
		case <-j.ctx.Done():
			j.logger.Info("Ingest job stopped")
			return
		}
	}
}

// Stop clears the trigger and waits for in-flight runs to finish
func (j *IngestJob) Stop() {
	j.cancel()

	j.runsMux.Lock()
	j.stopped = true
	j.runsMux.Unlock()

	if j.started.Load() {
		<-j.done
	}
	j.runs.Wait()
}

// Reschedule replaces the current trigger with one firing every interval.
func (j *IngestJob) Reschedule(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}

	j.intervalMux.Lock()
	defer j.intervalMux.Unlock()

	j.interval = interval
	// Only the latest request matters
	select {
	case <-j.reschedule:
	default:
	}
	j.reschedule <- interval
	return nil
}

// Interval returns the current trigger interval
func (j *IngestJob) Interval() time.Duration {
	j.intervalMux.Lock()
	defer j.intervalMux.Unlock()

	return j.interval
}

// Label returns the label this job polls
func (j *IngestJob) Label() string {
	return j.label
}

// RunSync executes one ingestion run under the label lock. It returns
// ErrRunInProgress without running when the lock is held elsewhere.
func (j *IngestJob) RunSync(ctx context.Context) error {
	unlock, ok, err := j.locker.TryLock(ctx, j.label)
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return ErrRunInProgress
	}
	defer unlock()

	started := time.Now()
	runErr := j.ingestService.Run(ctx)
	j.notify(runErr, time.Since(started))
	return runErr
}

func (j *IngestJob) spawnRun() {
	j.runsMux.Lock()
	defer j.runsMux.Unlock()
	if j.stopped {
		return
	}

	j.runs.Add(1)
	go func() {
		defer j.runs.Done()
		j.runScheduled()
	}()
}

func (j *IngestJob) runScheduled() {
	j.logger.Debug("Running scheduled ingestion for label", j.label)

	err := j.RunSync(j.ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrRunInProgress):
		j.logger.Warn("Skipping tick for label", j.label+":", err)
	case errors.Is(err, model.ErrConfiguration):
		j.logger.Error("Ingestion misconfigured for label", j.label+":", err)
	default:
		j.logger.Error("Ingestion failed for label", j.label+":", err)
	}
}

func (j *IngestJob) notify(err error, elapsed time.Duration) {
	if j.notifier == nil {
		return
	}

	event := map[string]interface{}{
		"label":       j.label,
		"duration_ms": elapsed.Milliseconds(),
		"succeeded":   err == nil,
	}
	if err != nil {
		event["error"] = err.Error()
	}
	j.notifier.Broadcast("run_finished", event)
}
