package listgroup

import (
	"context"
	"fmt"

	"github.com/tphakala/mcmigrate/internal/datastore/entities"
	"github.com/tphakala/mcmigrate/internal/errors"
	"github.com/tphakala/mcmigrate/internal/logger"
)

// Inserter adds list-group rows.
type Inserter interface {
	Insert(ctx context.Context, row *entities.EventListGroup) error
}

// ErrorRecorder appends to the stage error log.
// *datastore.StateManager implements it.
type ErrorRecorder interface {
	RecordError(ctx context.Context, stage string, rowID *uint, cause error) error
}

// Reconciler inserts a "not selected" row for every interest no legacy
// row claimed.
type Reconciler struct {
	rows Inserter
	errs ErrorRecorder
	log  logger.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(rows Inserter, errs ErrorRecorder, log logger.Logger) *Reconciler {
	return &Reconciler{rows: rows, errs: errs, log: log}
}

// Run inserts entries not yet in consumed, in order, and marks each
// inserted one consumed. A failed insert is written to the error log and
// the entry stays unconsumed. Only context cancellation stops the walk.
func (r *Reconciler) Run(ctx context.Context, entries []Entry, consumed *ConsumedSet) (int, error) {
	inserted := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		if consumed.Contains(e.EventID, e.ListID, e.Interest.ID) {
			continue
		}

		if err := r.insert(ctx, e); err != nil {
			if ctx.Err() != nil {
				return inserted, ctx.Err()
			}
			r.log.Warn("could not insert unselected interest",
				logger.String("interest_id", e.Interest.ID),
				logger.Int("event_id", e.EventID),
				logger.Error(err))
			if recErr := r.errs.RecordError(ctx, StageName, nil, err); recErr != nil {
				r.log.Error("failed to record reconcile error", logger.Error(recErr))
			}
			continue
		}
		consumed.Add(e.EventID, e.ListID, e.Interest.ID)
		inserted++
	}
	return inserted, nil
}

func (r *Reconciler) insert(ctx context.Context, e Entry) error {
	tok := Token{
		InterestID: e.Interest.ID,
		CategoryID: e.Interest.CategoryID,
		Name:       e.Interest.Name,
		Selected:   false,
	}
	groupID, err := tok.Encode()
	if err != nil {
		return errors.New(fmt.Errorf("could not insert interest %s for event %d: %w", e.Interest.ID, e.EventID, err)).
			Component("listgroup").
			Category(errors.CategoryMapping).
			Build()
	}

	row := &entities.EventListGroup{EventID: e.EventID, ListID: e.ListID, GroupID: groupID}
	if err := r.rows.Insert(ctx, row); err != nil {
		return errors.New(fmt.Errorf("could not insert interest %s for event %d, because %w", e.Interest.ID, e.EventID, err)).
			Component("listgroup").
			Category(errors.CategoryDatabase).
			Context("list_id", e.ListID).
			Build()
	}
	return nil
}
