package migration

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/mcmigrate/internal/errors"
	"github.com/tphakala/mcmigrate/internal/logger"
)

// DefaultBatchSize is the default number of rows processed per chunk.
const DefaultBatchSize = 50

// DefaultSleepBetweenChunks is the default pause between chunks to reduce
// database load.
const DefaultSleepBetweenChunks = 100 * time.Millisecond

// DefaultErrorBackoff is how long the runner waits after a failed chunk.
const DefaultErrorBackoff = 5 * time.Second

// DefaultMaxConsecutiveErrors is how many failed chunks in a row abort the run.
const DefaultMaxConsecutiveErrors = 5

var (
	// ErrRunnerStopped is returned by Run when Stop was called.
	ErrRunnerStopped = errors.NewStd("migration stopped")
	// ErrAlreadyRunning is returned when Start or Run is called twice.
	ErrAlreadyRunning = errors.NewStd("migration already running")
)

// RunnerConfig configures the runner.
type RunnerConfig struct {
	Stages               []Stage
	BatchSize            int
	SleepBetween         time.Duration
	ErrorBackoff         time.Duration
	MaxConsecutiveErrors int
	Logger               logger.Logger
}

// Status is a point-in-time view of the runner.
type Status struct {
	Running       bool      `json:"running"`
	Paused        bool      `json:"paused"`
	CurrentStage  string    `json:"current_stage,omitempty"`
	Processed     int64     `json:"processed"`
	StartedAt     time.Time `json:"started_at,omitzero"`
	RowsPerSecond float64   `json:"rows_per_second"`
	LastError     string    `json:"last_error,omitempty"`
}

// Runner executes stages in order, one chunk at a time.
// Control methods are safe to call from other goroutines.
type Runner struct {
	stages               []Stage
	batchSize            int
	sleepBetween         time.Duration
	errorBackoff         time.Duration
	maxConsecutiveErrors int
	log                  logger.Logger

	// Control channels
	resumeCh chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}

	// State
	mu        sync.RWMutex
	running   bool
	paused    bool
	stopped   bool
	current   string
	processed int64
	startedAt time.Time
	lastError error
	runErr    error
}

// NewRunner creates a runner. Zero config values fall back to defaults,
// except SleepBetween where zero means no pause between chunks.
func NewRunner(cfg *RunnerConfig) *Runner {
	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	sleepBetween := cfg.SleepBetween
	if sleepBetween < 0 {
		sleepBetween = DefaultSleepBetweenChunks
	}
	backoff := cfg.ErrorBackoff
	if backoff <= 0 {
		backoff = DefaultErrorBackoff
	}
	maxErrors := cfg.MaxConsecutiveErrors
	if maxErrors <= 0 {
		maxErrors = DefaultMaxConsecutiveErrors
	}

	return &Runner{
		stages:               cfg.Stages,
		batchSize:            batchSize,
		sleepBetween:         sleepBetween,
		errorBackoff:         backoff,
		maxConsecutiveErrors: maxErrors,
		log:                  log.Module("migration"),
		resumeCh:             make(chan struct{}),
		stopCh:               make(chan struct{}),
		doneCh:               make(chan struct{}),
	}
}

// Run executes every stage to completion and blocks until done, stopped,
// or ctx is cancelled. A runner can be run once.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running || r.stopped {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	r.running = true
	r.startedAt = time.Now()
	r.mu.Unlock()

	err := r.run(ctx)

	r.mu.Lock()
	r.running = false
	r.paused = false
	r.stopped = true
	r.current = ""
	r.runErr = err
	r.mu.Unlock()
	close(r.doneCh)
	return err
}

// Start runs the stages in a background goroutine. Use Wait for the result.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.RLock()
	busy := r.running || r.stopped
	r.mu.RUnlock()
	if busy {
		return ErrAlreadyRunning
	}

	go func() { _ = r.Run(ctx) }()
	return nil
}

// Wait blocks until a started run returns and reports its error.
func (r *Runner) Wait() error {
	<-r.doneCh
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runErr
}

// Pause stops processing after the current chunk.
func (r *Runner) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running || r.paused {
		return
	}
	r.paused = true
	r.log.Info("pause requested")
}

// Resume continues processing after a pause.
func (r *Runner) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running || !r.paused {
		return
	}
	r.paused = false
	close(r.resumeCh)
	r.resumeCh = make(chan struct{})
	r.log.Info("resume requested")
}

// Stop ends the run after the current chunk.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running || r.stopped {
		return
	}
	r.stopped = true
	close(r.stopCh)
}

// IsRunning returns whether a run is in progress.
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// IsPaused returns whether the run is paused.
func (r *Runner) IsPaused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

// LastError returns the last chunk error.
func (r *Runner) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastError
}

// Status returns a snapshot of the runner.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Status{
		Running:      r.running,
		Paused:       r.paused,
		CurrentStage: r.current,
		Processed:    r.processed,
		StartedAt:    r.startedAt,
	}
	if r.lastError != nil {
		st.LastError = r.lastError.Error()
	}
	if r.running && !r.startedAt.IsZero() {
		if elapsed := time.Since(r.startedAt).Seconds(); elapsed > 0 {
			st.RowsPerSecond = float64(r.processed) / elapsed
		}
	}
	return st
}

func (r *Runner) run(ctx context.Context) error {
	r.log.Info("migration started", logger.Int("stages", len(r.stages)))

	for _, stage := range r.stages {
		r.setCurrent(stage.Name())
		if err := stage.Prepare(ctx); err != nil {
			r.setError(err)
			return err
		}
		if err := r.runStage(ctx, stage); err != nil {
			return err
		}
	}

	r.log.Info("migration finished")
	return nil
}

func (r *Runner) runStage(ctx context.Context, stage Stage) error {
	log := r.log.With(logger.String("stage", stage.Name()))
	consecutiveErrors := 0

	for !stage.IsCompleted() {
		if err := r.waitIfPaused(ctx); err != nil {
			return err
		}

		n, err := stage.MigrateNextChunk(ctx, r.batchSize)
		r.addProcessed(n)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			consecutiveErrors++
			r.setError(err)
			log.Error("chunk failed",
				logger.Int("consecutive_errors", consecutiveErrors),
				logger.Error(err))
			if consecutiveErrors >= r.maxConsecutiveErrors {
				return err
			}
			if err := r.sleep(ctx, r.errorBackoff); err != nil {
				return err
			}
			continue
		}
		consecutiveErrors = 0

		if stage.IsCompleted() {
			break
		}
		if err := r.sleep(ctx, r.sleepBetween); err != nil {
			return err
		}
	}

	log.Info("stage done")
	return nil
}

// waitIfPaused blocks while the runner is paused.
func (r *Runner) waitIfPaused(ctx context.Context) error {
	for {
		r.mu.RLock()
		paused := r.paused
		resumeCh := r.resumeCh
		r.mu.RUnlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopCh:
			return ErrRunnerStopped
		default:
		}
		if !paused {
			return nil
		}

		r.log.Info("migration paused")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopCh:
			return ErrRunnerStopped
		case <-resumeCh:
			r.log.Info("migration resumed")
		}
	}
}

// sleep waits for d unless the run is cancelled or stopped first.
func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopCh:
		return ErrRunnerStopped
	case <-timer.C:
		return nil
	}
}

func (r *Runner) setCurrent(name string) {
	r.mu.Lock()
	r.current = name
	r.mu.Unlock()
}

func (r *Runner) addProcessed(n int) {
	r.mu.Lock()
	r.processed += int64(n)
	r.mu.Unlock()
}

func (r *Runner) setError(err error) {
	r.mu.Lock()
	r.lastError = err
	r.mu.Unlock()
}
