// Package eventrel copies the pre-2.0 event relation table into the
// list-group table, translating old event IDs to new ones.
package eventrel

import (
	"context"
	"fmt"

	"github.com/tphakala/mcmigrate/internal/datastore/entities"
	"github.com/tphakala/mcmigrate/internal/datastore/repository"
	"github.com/tphakala/mcmigrate/internal/errors"
	"github.com/tphakala/mcmigrate/internal/logger"
	"github.com/tphakala/mcmigrate/internal/migration"
	"github.com/tphakala/mcmigrate/internal/observability/metrics"
)

// StageName identifies the stage in state, logs and metrics.
const StageName = "mailchimp_event_rel"

// ErrorRecorder appends to the stage error log.
type ErrorRecorder interface {
	RecordError(ctx context.Context, stage string, rowID *uint, cause error) error
}

// Config holds the dependencies of the stage.
type Config struct {
	Source   repository.EventRelRepository
	EventMap repository.EventMapRepository
	Target   repository.ListGroupRepository
	Errors   ErrorRecorder
	Logger   logger.Logger
	Metrics  *metrics.MigrationMetrics
}

// Copier is the row handler of the stage.
type Copier struct {
	eventMap repository.EventMapRepository
	target   repository.ListGroupRepository
	errs     ErrorRecorder
	log      logger.Logger
}

// NewStage wires a Copier into a table stage.
func NewStage(cfg Config, state migration.StateStore) *migration.TableStage[entities.LegacyEventRel] {
	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}

	copier := &Copier{
		eventMap: cfg.EventMap,
		target:   cfg.Target,
		errs:     cfg.Errors,
		log:      log.Module("eventrel"),
	}

	var observer migration.Observer
	if cfg.Metrics != nil {
		observer = cfg.Metrics
	}
	return migration.NewTableStage(migration.TableStageConfig[entities.LegacyEventRel]{
		Name:     StageName,
		Source:   cfg.Source,
		Handler:  copier,
		State:    state,
		Logger:   log,
		Observer: observer,
	})
}

// MigrateRow inserts one relation row into the list-group table. A
// missing event mapping is logged and the row is still copied with
// event ID 0, so the list and group survive for manual repair.
func (c *Copier) MigrateRow(ctx context.Context, row entities.LegacyEventRel) error {
	newEventID, ok, err := c.eventMap.Lookup(ctx, row.EventID)
	if err != nil {
		return err
	}
	if !ok {
		mapErr := errors.Newf("no new event ID for old event %d", row.EventID).
			Component("eventrel").
			Category(errors.CategoryMapping).
			Context("row_id", row.ID).
			Build()
		c.log.Warn("event not mapped", logger.Int("old_event_id", row.EventID))
		id := row.ID
		if recErr := c.errs.RecordError(ctx, StageName, &id, mapErr); recErr != nil {
			c.log.Error("failed to record mapping error", logger.Error(recErr))
		}
	}

	target := &entities.EventListGroup{
		EventID: newEventID,
		ListID:  row.ListID,
		GroupID: row.GroupID,
	}
	if err := c.target.Insert(ctx, target); err != nil {
		return errors.New(fmt.Errorf("could not copy relation row %d, because %w", row.ID, err)).
			Component("eventrel").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}
