package listgroup

import (
	"context"
	"fmt"
	"math"

	"github.com/tphakala/mcmigrate/internal/datastore/entities"
	"github.com/tphakala/mcmigrate/internal/datastore/repository"
	"github.com/tphakala/mcmigrate/internal/errors"
	"github.com/tphakala/mcmigrate/internal/logger"
	"github.com/tphakala/mcmigrate/internal/migration"
	"github.com/tphakala/mcmigrate/internal/observability/metrics"
)

// StageName identifies the list-group stage in state, logs and metrics.
const StageName = "mailchimp_list_group"

// Config holds the dependencies of the list-group stage.
type Config struct {
	Rows      repository.ListGroupRepository
	Directory Directory
	Errors    ErrorRecorder
	Logger    logger.Logger
	// Metrics may be nil.
	Metrics *metrics.MigrationMetrics
}

// Migrator is the row handler of the list-group stage. It owns the
// interest index and the consumed set for the lifetime of the stage.
type Migrator struct {
	rows       repository.ListGroupRepository
	builder    *Builder
	reconciler *Reconciler
	errs       ErrorRecorder
	log        logger.Logger
	metrics    *metrics.MigrationMetrics

	index    *InterestIndex
	consumed *ConsumedSet
	// unclaimed holds interests popped for a row whose update failed.
	// They were never written, so the reconciler inserts them.
	unclaimed []Entry
}

// NewMigrator creates the row handler.
func NewMigrator(cfg Config) *Migrator {
	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	log = log.Module("listgroup")

	return &Migrator{
		rows:       cfg.Rows,
		builder:    NewBuilder(cfg.Directory, log),
		reconciler: NewReconciler(cfg.Rows, cfg.Errors, log),
		errs:       cfg.Errors,
		log:        log,
		metrics:    cfg.Metrics,
		index:      NewInterestIndex(),
		consumed:   NewConsumedSet(),
	}
}

// NewStage wires a Migrator into a table stage over the list-group table.
func NewStage(cfg Config, state migration.StateStore) (*migration.TableStage[entities.EventListGroup], *Migrator) {
	m := NewMigrator(cfg)
	var observer migration.Observer
	if cfg.Metrics != nil {
		observer = cfg.Metrics
	}
	stage := migration.NewTableStage(migration.TableStageConfig[entities.EventListGroup]{
		Name:     StageName,
		Source:   cfg.Rows,
		Handler:  m,
		State:    state,
		Logger:   cfg.Logger,
		Observer: observer,
	})
	return stage, m
}

// Index returns the interest index.
func (m *Migrator) Index() *InterestIndex {
	return m.index
}

// Consumed returns the consumed set.
func (m *Migrator) Consumed() *ConsumedSet {
	return m.consumed
}

// Prepare builds the interest index. When the stage was interrupted
// earlier it replays the rows already written so their interests are not
// claimed a second time.
func (m *Migrator) Prepare(ctx context.Context, state *entities.StageState) error {
	pairs, err := m.rows.EventLists(ctx)
	if err != nil {
		return fmt.Errorf("list event lists: %w", err)
	}

	index, report := m.builder.Build(ctx, pairs)
	if err := ctx.Err(); err != nil {
		return err
	}
	m.index = index
	m.consumed = NewConsumedSet()
	m.unclaimed = nil
	m.metrics.SetIndexInterests(StageName, index.Size())

	if report.KeyErr != nil {
		m.recordStageError(ctx, report.KeyErr)
	}
	for _, branchErr := range report.BranchErrors {
		m.recordStageError(ctx, branchErr)
	}

	return m.replay(ctx, state)
}

func (m *Migrator) replay(ctx context.Context, state *entities.StageState) error {
	var (
		upTo          uint
		claimAllFlags bool
	)
	switch state.Status {
	case entities.StageStatusRunning:
		upTo = state.LastMigratedID
	case entities.StageStatusFinalizing:
		// Every row was processed; some "not selected" rows may already
		// have been inserted as well.
		upTo = math.MaxUint32
		claimAllFlags = true
	default:
		return nil
	}
	if upTo == 0 || !m.index.Populated() {
		return nil
	}

	rows, err := m.rows.UpTo(ctx, upTo)
	if err != nil {
		return fmt.Errorf("replay processed rows: %w", err)
	}

	claimed := 0
	for _, row := range rows {
		if row.ListID == SentinelNoList {
			continue
		}
		tok, err := ParseToken(row.GroupID)
		if err != nil || (!tok.Selected && !claimAllFlags) {
			continue
		}
		if m.index.Claim(row.EventID, row.ListID, tok.InterestID) {
			m.consumed.Add(row.EventID, row.ListID, tok.InterestID)
			claimed++
		}
	}
	m.log.Info("replayed processed rows",
		logger.Int("rows", len(rows)),
		logger.Int("claimed", claimed),
		logger.String("status", string(state.Status)))
	return nil
}

// MigrateRow rewrites one legacy row to the interest it claims.
func (m *Migrator) MigrateRow(ctx context.Context, row entities.EventListGroup) error {
	if row.ListID == SentinelNoList {
		return migration.ErrRowSkipped
	}

	if !m.index.Populated() {
		return errors.Newf("could not get data from MailChimp; not able to migrate the %s table data", row.TableName()).
			Component("listgroup").
			Category(errors.CategoryConfiguration).
			Context("row_id", row.ID).
			Build()
	}

	tok, err := ParseToken(row.GroupID)
	if err != nil {
		return m.mappingError(row, err)
	}

	in, ok := m.index.Pop(row.EventID, row.ListID, tok.Name)
	if !ok {
		return m.mappingError(row, nil)
	}

	claimed := Token{InterestID: in.ID, CategoryID: in.CategoryID, Name: in.Name, Selected: true}
	groupID, err := claimed.Encode()
	if err != nil {
		m.unclaimed = append(m.unclaimed, Entry{EventID: row.EventID, ListID: row.ListID, Interest: in})
		return m.mappingError(row, err)
	}

	if err := m.rows.UpdateGroupID(ctx, row.ID, groupID); err != nil {
		m.unclaimed = append(m.unclaimed, Entry{EventID: row.EventID, ListID: row.ListID, Interest: in})
		return errors.New(fmt.Errorf("could not update line %d, because %w", row.ID, err)).
			Component("listgroup").
			Category(errors.CategoryDatabase).
			Context("row_id", row.ID).
			Build()
	}

	m.consumed.Add(row.EventID, row.ListID, in.ID)
	return nil
}

// Finalize inserts the interests no row claimed, then drops the index.
func (m *Migrator) Finalize(ctx context.Context) error {
	entries := append(m.index.Remaining(), m.unclaimed...)
	inserted, err := m.reconciler.Run(ctx, entries, m.consumed)
	m.metrics.RecordReconciled(inserted)
	if err != nil {
		return err
	}

	m.log.Info("unselected interests inserted",
		logger.Int("inserted", inserted),
		logger.Int("candidates", len(entries)))

	m.index.Reset()
	m.consumed = NewConsumedSet()
	m.unclaimed = nil
	return nil
}

func (m *Migrator) mappingError(row entities.EventListGroup, cause error) error {
	err := fmt.Errorf("could not migrate line %d", row.ID)
	if cause != nil {
		err = fmt.Errorf("could not migrate line %d: %w", row.ID, cause)
	}
	return errors.New(err).
		Component("listgroup").
		Category(errors.CategoryMapping).
		Context("row_id", row.ID).
		Context("event_id", row.EventID).
		Build()
}

func (m *Migrator) recordStageError(ctx context.Context, err error) {
	if recErr := m.errs.RecordError(ctx, StageName, nil, err); recErr != nil {
		m.log.Error("failed to record stage error", logger.Error(recErr))
	}
}
