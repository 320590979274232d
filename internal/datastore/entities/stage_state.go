package entities

import "time"

// StageStatus is the lifecycle state of a migration stage.
type StageStatus string

const (
	// StageStatusPending means the stage has not processed any rows.
	StageStatusPending StageStatus = "pending"
	// StageStatusRunning means rows are being processed chunk by chunk.
	StageStatusRunning StageStatus = "running"
	// StageStatusFinalizing means all rows are processed and the finalize
	// hook has not committed yet.
	StageStatusFinalizing StageStatus = "finalizing"
	// StageStatusCompleted is terminal.
	StageStatusCompleted StageStatus = "completed"
)

// StageState is the persisted checkpoint of one stage.
type StageState struct {
	Name            string      `gorm:"column:name;primaryKey;size:100"`
	Status          StageStatus `gorm:"column:status;size:20;not null;default:'pending'"`
	LastMigratedID  uint        `gorm:"column:last_migrated_id;not null;default:0"`
	TotalRecords    int64       `gorm:"column:total_records;not null;default:0"`
	MigratedRecords int64       `gorm:"column:migrated_records;not null;default:0"`
	ErrorCount      int64       `gorm:"column:error_count;not null;default:0"`
	Finalized       bool        `gorm:"column:finalized;not null;default:false"`
	RunID           string      `gorm:"column:run_id;size:36"`
	StartedAt       *time.Time  `gorm:"column:started_at"`
	CompletedAt     *time.Time  `gorm:"column:completed_at"`
	UpdatedAt       time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (StageState) TableName() string {
	return "migration_stages"
}

// Progress returns processed/total, or 0 when the total is unknown.
func (s *StageState) Progress() float64 {
	if s.TotalRecords <= 0 {
		return 0
	}
	return float64(s.MigratedRecords) / float64(s.TotalRecords)
}

// StageError is one entry of the operator facing error log.
// RowID is nil for stage level errors.
type StageError struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Stage     string    `gorm:"column:stage;size:100;not null;index"`
	RowID     *uint     `gorm:"column:row_id"`
	Category  string    `gorm:"column:category;size:50;not null"`
	Message   string    `gorm:"column:message;type:text;not null"`
	RunID     string    `gorm:"column:run_id;size:36"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for GORM.
func (StageError) TableName() string {
	return "migration_errors"
}
