// Package migration drives resumable, chunked data migration stages.
//
// A stage walks a table in primary key order. Each call to
// MigrateNextChunk processes up to N rows, records per-row failures in the
// error log without stopping, and checkpoints the highest processed ID.
// When a chunk comes back short the stage is drained; its finalize hook
// runs once and the stage is marked completed.
package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tphakala/mcmigrate/internal/datastore/entities"
	"github.com/tphakala/mcmigrate/internal/errors"
	"github.com/tphakala/mcmigrate/internal/logger"
	"github.com/tphakala/mcmigrate/internal/observability/metrics"
)

// ErrRowSkipped may be returned by a RowHandler for rows that need no
// change. The row counts as processed and is not written to the error log.
var ErrRowSkipped = errors.NewStd("row skipped")

// ErrNotPrepared is returned when MigrateNextChunk is called before Prepare.
var ErrNotPrepared = errors.NewStd("stage not prepared")

// Stage is one step of a migration run.
type Stage interface {
	// Name identifies the stage in state, logs and metrics.
	Name() string
	// Prepare loads persisted state and builds whatever the stage needs
	// before its first row. It is called once per process.
	Prepare(ctx context.Context) error
	// MigrateNextChunk processes up to maxItems rows and returns how many
	// it processed.
	MigrateNextChunk(ctx context.Context, maxItems int) (int, error)
	// IsCompleted reports whether the stage has finished, finalize included.
	IsCompleted() bool
}

// Row is a table row addressed by a monotonically increasing ID.
type Row interface {
	RowID() uint
}

// Source reads the rows a stage migrates.
type Source[R Row] interface {
	Count(ctx context.Context) (int64, error)
	After(ctx context.Context, afterID uint, limit int) ([]R, error)
}

// RowHandler migrates a single row.
type RowHandler[R Row] interface {
	MigrateRow(ctx context.Context, row R) error
}

// Preparer is implemented by handlers that need setup before the first
// row. It receives the persisted state so it can rebuild in-memory
// bookkeeping after a restart.
type Preparer interface {
	Prepare(ctx context.Context, state *entities.StageState) error
}

// Finalizer is implemented by handlers with a completion hook. Finalize
// is called once, after the chunk that drained the stage.
type Finalizer interface {
	Finalize(ctx context.Context) error
}

// StateStore persists stage state. *datastore.StateManager implements it.
type StateStore interface {
	EnsureStage(ctx context.Context, name string) (*entities.StageState, error)
	StartStage(ctx context.Context, name string, totalRecords int64) error
	BeginFinalize(ctx context.Context, name string) error
	CompleteStage(ctx context.Context, name string) error
	IncrementProgress(ctx context.Context, name string, lastID uint, processed int64) error
	RecordError(ctx context.Context, stage string, rowID *uint, cause error) error
}

// Observer receives per-row and per-chunk measurements.
// *metrics.MigrationMetrics implements it.
type Observer interface {
	RecordRow(stage, result string)
	RecordRowError(stage, category string)
	ObserveChunk(stage string, seconds float64)
	SetStageProgress(stage string, processed, total int64)
}

type nopObserver struct{}

func (nopObserver) RecordRow(string, string) {}
func (nopObserver) RecordRowError(string, string) {}
func (nopObserver) ObserveChunk(string, float64) {}
func (nopObserver) SetStageProgress(string, int64, int64) {}

// TableStageConfig configures a TableStage.
type TableStageConfig[R Row] struct {
	Name     string
	Source   Source[R]
	Handler  RowHandler[R]
	State    StateStore
	Logger   logger.Logger
	Observer Observer
}

// TableStage is a Stage over a Source, delegating each row to a RowHandler.
type TableStage[R Row] struct {
	name     string
	source   Source[R]
	handler  RowHandler[R]
	state    StateStore
	log      logger.Logger
	observer Observer

	mu        sync.Mutex
	prepared  bool
	status    entities.StageStatus
	cursor    uint
	processed int64
	total     int64
}

// NewTableStage creates a table stage.
func NewTableStage[R Row](cfg TableStageConfig[R]) *TableStage[R] {
	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	var observer Observer = nopObserver{}
	if cfg.Observer != nil {
		observer = cfg.Observer
	}
	return &TableStage[R]{
		name:     cfg.Name,
		source:   cfg.Source,
		handler:  cfg.Handler,
		state:    cfg.State,
		log:      log.Module("migration").With(logger.String("stage", cfg.Name)),
		observer: observer,
	}
}

// Name returns the stage name.
func (s *TableStage[R]) Name() string {
	return s.name
}

// Prepare loads the persisted state and prepares the handler.
func (s *TableStage[R]) Prepare(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.state.EnsureStage(ctx, s.name)
	if err != nil {
		return err
	}
	s.status = state.Status
	s.cursor = state.LastMigratedID
	s.processed = state.MigratedRecords
	s.total = state.TotalRecords

	if s.status == entities.StageStatusCompleted {
		s.prepared = true
		s.log.Info("stage already completed")
		return nil
	}

	if p, ok := s.handler.(Preparer); ok {
		if err := p.Prepare(ctx, state); err != nil {
			return fmt.Errorf("prepare stage %s: %w", s.name, err)
		}
	}

	s.prepared = true
	s.log.Info("stage prepared",
		logger.String("status", string(s.status)),
		logger.Uint64("cursor", uint64(s.cursor)),
		logger.Int64("processed", s.processed))
	return nil
}

// IsCompleted reports whether the stage and its finalize hook are done.
func (s *TableStage[R]) IsCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == entities.StageStatusCompleted
}

// MigrateNextChunk processes up to maxItems rows after the checkpoint.
func (s *TableStage[R]) MigrateNextChunk(ctx context.Context, maxItems int) (int, error) {
	if maxItems <= 0 {
		return 0, fmt.Errorf("chunk size must be positive, got %d", maxItems)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.prepared {
		return 0, ErrNotPrepared
	}

	switch s.status {
	case entities.StageStatusCompleted:
		return 0, nil
	case entities.StageStatusFinalizing:
		// A previous process drained the rows but did not finish finalize
		return 0, s.finalize(ctx)
	case entities.StageStatusPending:
		if err := s.start(ctx); err != nil {
			return 0, err
		}
	}

	start := time.Now()
	rows, err := s.source.After(ctx, s.cursor, maxItems)
	if err != nil {
		return 0, fmt.Errorf("read rows after %d: %w", s.cursor, err)
	}

	processed, lastID, rowErr := s.migrateRows(ctx, rows)
	if processed > 0 {
		if err := s.state.IncrementProgress(ctx, s.name, lastID, int64(processed)); err != nil {
			return processed, err
		}
		s.cursor = lastID
		s.processed += int64(processed)
		s.observer.SetStageProgress(s.name, s.processed, s.total)
	}
	s.observer.ObserveChunk(s.name, time.Since(start).Seconds())
	if rowErr != nil {
		return processed, rowErr
	}

	if len(rows) < maxItems {
		if err := s.state.BeginFinalize(ctx, s.name); err != nil {
			return processed, err
		}
		s.status = entities.StageStatusFinalizing
		s.log.Info("all rows processed", logger.Int64("processed", s.processed))
		return processed, s.finalize(ctx)
	}
	return processed, nil
}

func (s *TableStage[R]) start(ctx context.Context) error {
	total, err := s.source.Count(ctx)
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	if err := s.state.StartStage(ctx, s.name, total); err != nil {
		return err
	}
	s.status = entities.StageStatusRunning
	s.cursor = 0
	s.processed = 0
	s.total = total
	s.log.Info("stage started", logger.Int64("total", total))
	return nil
}

// migrateRows runs the handler over rows. Row failures are logged and do
// not stop the chunk; only context cancellation does, in which case the
// interrupted row is not counted.
func (s *TableStage[R]) migrateRows(ctx context.Context, rows []R) (processed int, lastID uint, err error) {
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return processed, lastID, err
		}

		id := row.RowID()
		rowErr := s.handler.MigrateRow(ctx, row)
		switch {
		case rowErr == nil:
			s.observer.RecordRow(s.name, metrics.ResultMigrated)
		case errors.Is(rowErr, ErrRowSkipped):
			s.observer.RecordRow(s.name, metrics.ResultSkipped)
		case ctx.Err() != nil:
			return processed, lastID, ctx.Err()
		default:
			s.recordRowError(ctx, id, rowErr)
		}

		processed++
		lastID = id
	}
	return processed, lastID, nil
}

func (s *TableStage[R]) recordRowError(ctx context.Context, id uint, rowErr error) {
	category := string(errors.CategoryOf(rowErr))
	s.observer.RecordRow(s.name, metrics.ResultFailed)
	s.observer.RecordRowError(s.name, category)
	s.log.Warn("row not migrated",
		logger.Uint64("row_id", uint64(id)),
		logger.String("category", category),
		logger.Error(rowErr))
	if err := s.state.RecordError(ctx, s.name, &id, rowErr); err != nil {
		s.log.Error("failed to record row error", logger.Error(err))
	}
}

func (s *TableStage[R]) finalize(ctx context.Context) error {
	if f, ok := s.handler.(Finalizer); ok {
		if err := f.Finalize(ctx); err != nil {
			return fmt.Errorf("finalize stage %s: %w", s.name, err)
		}
	}
	if err := s.state.CompleteStage(ctx, s.name); err != nil {
		return err
	}
	s.status = entities.StageStatusCompleted
	s.log.Info("stage completed", logger.Int64("processed", s.processed))
	return nil
}
