package datastore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/mcmigrate/internal/datastore/entities"
	"github.com/tphakala/mcmigrate/internal/errors"
	"github.com/tphakala/mcmigrate/internal/observability/metrics"
)

var (
	// ErrStageNotFound is returned when no state row exists for a stage.
	ErrStageNotFound = errors.NewStd("stage not found")
	// ErrInvalidTransition is returned when a stage is not in the state a
	// transition expects.
	ErrInvalidTransition = errors.NewStd("invalid stage transition")
)

// StateManager persists per-stage state and the error log.
// State transitions use atomic conditional updates so that two processes
// pointed at the same database cannot both advance a stage.
type StateManager struct {
	db       *gorm.DB
	runID    string
	recorder metrics.Recorder
	mu       sync.RWMutex
}

// NewStateManager creates a state manager. runID is stamped on stages
// started and errors recorded by this process. A nil recorder is allowed.
func NewStateManager(db *gorm.DB, runID string, recorder metrics.Recorder) *StateManager {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	return &StateManager{
		db:       db,
		runID:    runID,
		recorder: recorder,
	}
}

// RunID returns the identifier of the current process run.
func (m *StateManager) RunID() string {
	return m.runID
}

// EnsureStage returns the state row for name, creating a pending one.
func (m *StateManager) EnsureStage(ctx context.Context, name string) (*entities.StageState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := entities.StageState{Name: name}
	err := m.db.WithContext(ctx).
		Where(entities.StageState{Name: name}).
		Attrs(entities.StageState{Status: entities.StageStatusPending}).
		FirstOrCreate(&state).Error
	m.observe(err)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stage %s: %w", name, err)
	}
	return &state, nil
}

// GetStage returns the state row for name.
func (m *StateManager) GetStage(ctx context.Context, name string) (*entities.StageState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getStage(ctx, name)
}

func (m *StateManager) getStage(ctx context.Context, name string) (*entities.StageState, error) {
	var state entities.StageState
	err := m.db.WithContext(ctx).Where("name = ?", name).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrStageNotFound, name)
		}
		return nil, fmt.Errorf("failed to get stage %s: %w", name, err)
	}
	return &state, nil
}

// ListStages returns every known stage ordered by name.
func (m *StateManager) ListStages(ctx context.Context) ([]entities.StageState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var states []entities.StageState
	if err := m.db.WithContext(ctx).Order("name").Find(&states).Error; err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	return states, nil
}

// StartStage transitions a stage from pending to running and records the
// number of rows it will process.
func (m *StateManager) StartStage(ctx context.Context, name string, totalRecords int64) error {
	now := time.Now()
	return m.transition(ctx, name, entities.StageStatusPending, entities.StageStatusRunning, map[string]any{
		"started_at":       &now,
		"total_records":    totalRecords,
		"migrated_records": 0,
		"last_migrated_id": 0,
		"finalized":        false,
		"completed_at":     nil,
		"run_id":           m.runID,
	})
}

// BeginFinalize transitions a stage from running to finalizing. It is
// called when the stage has processed its last row.
func (m *StateManager) BeginFinalize(ctx context.Context, name string) error {
	return m.transition(ctx, name, entities.StageStatusRunning, entities.StageStatusFinalizing, nil)
}

// CompleteStage transitions a stage from finalizing to completed and sets
// the finalized flag, so the finalize hook is never run again.
func (m *StateManager) CompleteStage(ctx context.Context, name string) error {
	now := time.Now()
	return m.transition(ctx, name, entities.StageStatusFinalizing, entities.StageStatusCompleted, map[string]any{
		"finalized":    true,
		"completed_at": &now,
	})
}

// ResetStage puts a stage back to pending and clears its error log.
func (m *StateManager) ResetStage(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&entities.StageState{}).
			Where("name = ?", name).
			Updates(map[string]any{
				"status":           entities.StageStatusPending,
				"last_migrated_id": 0,
				"total_records":    0,
				"migrated_records": 0,
				"error_count":      0,
				"finalized":        false,
				"started_at":       nil,
				"completed_at":     nil,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrStageNotFound, name)
		}
		return tx.Where("stage = ?", name).Delete(&entities.StageError{}).Error
	})
	m.observe(err)
	if err != nil {
		return fmt.Errorf("failed to reset stage %s: %w", name, err)
	}
	return nil
}

// IncrementProgress moves the checkpoint of a running stage to lastID and
// adds processed to its counter.
func (m *StateManager) IncrementProgress(ctx context.Context, name string, lastID uint, processed int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := m.db.WithContext(ctx).Model(&entities.StageState{}).
		Where("name = ? AND status = ?", name, entities.StageStatusRunning).
		Updates(map[string]any{
			"last_migrated_id": lastID,
			"migrated_records": gorm.Expr("migrated_records + ?", processed),
		})
	m.observe(result.Error)
	if result.Error != nil {
		return fmt.Errorf("failed to update progress for stage %s: %w", name, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: cannot update progress of stage %s: not running", ErrInvalidTransition, name)
	}
	return nil
}

// RecordError appends an entry to the error log and bumps the stage's
// error counter. rowID is nil for stage level errors.
func (m *StateManager) RecordError(ctx context.Context, stage string, rowID *uint, cause error) error {
	if cause == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := entities.StageError{
		Stage:    stage,
		RowID:    rowID,
		Category: string(errors.CategoryOf(cause)),
		Message:  cause.Error(),
		RunID:    m.runID,
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return tx.Model(&entities.StageState{}).
			Where("name = ?", stage).
			Update("error_count", gorm.Expr("error_count + 1")).Error
	})
	m.observe(err)
	if err != nil {
		return fmt.Errorf("failed to record error for stage %s: %w", stage, err)
	}
	return nil
}

// Errors returns the error log of a stage, oldest first. An empty stage
// name returns all stages. limit <= 0 means no limit.
func (m *StateManager) Errors(ctx context.Context, stage string, limit int) ([]entities.StageError, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q := m.db.WithContext(ctx).Order("id")
	if stage != "" {
		q = q.Where("stage = ?", stage)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []entities.StageError
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to read error log: %w", err)
	}
	return out, nil
}

// transition atomically moves name from one status to another.
func (m *StateManager) transition(ctx context.Context, name string, from, to entities.StageStatus, extra map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	result := m.db.WithContext(ctx).Model(&entities.StageState{}).
		Where("name = ? AND status = ?", name, from).
		Updates(updates)
	m.observe(result.Error)
	if result.Error != nil {
		return fmt.Errorf("failed to transition stage %s to %s: %w", name, to, result.Error)
	}

	if result.RowsAffected == 0 {
		current, err := m.getStage(ctx, name)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: cannot transition %s to %s: current state is %s, expected %s",
			ErrInvalidTransition, name, to, current.Status, from)
	}
	return nil
}

func (m *StateManager) observe(err error) {
	if err != nil {
		m.recorder.RecordOperation(metrics.OpState, metrics.StatusError)
		m.recorder.RecordError(metrics.OpState, string(errors.CategoryDatabase))
		return
	}
	m.recorder.RecordOperation(metrics.OpState, metrics.StatusSuccess)
}
