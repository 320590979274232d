package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/mcmigrate/internal/datastore/entities"
	"github.com/tphakala/mcmigrate/internal/errors"
	"github.com/tphakala/mcmigrate/internal/observability/metrics"
)

// NoListSentinel is the list ID stored for events without a MailChimp list.
const NoListSentinel = "-1"

// EventList is a distinct (event, list) pair of the list-group table.
type EventList struct {
	EventID int    `gorm:"column:EVT_ID"`
	ListID  string `gorm:"column:AMC_mailchimp_list_id"`
}

// ListGroupRepository reads and writes the event list-group table.
type ListGroupRepository interface {
	// Count returns the number of rows in the table.
	Count(ctx context.Context) (int64, error)
	// After returns up to limit rows with ID > afterID in ID order.
	After(ctx context.Context, afterID uint, limit int) ([]entities.EventListGroup, error)
	// UpTo returns every row with ID <= maxID in ID order.
	UpTo(ctx context.Context, maxID uint) ([]entities.EventListGroup, error)
	// EventLists returns the distinct (event, list) pairs, excluding the
	// no-list sentinel, ordered by event then list.
	EventLists(ctx context.Context) ([]EventList, error)
	// UpdateGroupID rewrites the group token of one row.
	UpdateGroupID(ctx context.Context, id uint, groupID string) error
	// Insert adds a row and sets its ID.
	Insert(ctx context.Context, row *entities.EventListGroup) error
}

type listGroupRepository struct {
	db       *gorm.DB
	recorder metrics.Recorder
}

// NewListGroupRepository creates a list-group repository. recorder may be nil.
func NewListGroupRepository(db *gorm.DB, recorder metrics.Recorder) ListGroupRepository {
	return &listGroupRepository{db: db, recorder: recorderOrNop(recorder)}
}

func (r *listGroupRepository) table() string {
	return entities.EventListGroup{}.TableName()
}

func (r *listGroupRepository) Count(ctx context.Context) (count int64, err error) {
	defer func(start time.Time) { track(r.recorder, metrics.OpCount, start, err) }(time.Now())

	if err = r.db.WithContext(ctx).Model(&entities.EventListGroup{}).Count(&count).Error; err != nil {
		return 0, dbError(err, r.table(), metrics.OpCount)
	}
	return count, nil
}

func (r *listGroupRepository) After(ctx context.Context, afterID uint, limit int) (rows []entities.EventListGroup, err error) {
	defer func(start time.Time) { track(r.recorder, metrics.OpSelect, start, err) }(time.Now())

	err = r.db.WithContext(ctx).
		Where("EMC_ID > ?", afterID).
		Order("EMC_ID").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, dbError(err, r.table(), metrics.OpSelect)
	}
	return rows, nil
}

func (r *listGroupRepository) UpTo(ctx context.Context, maxID uint) (rows []entities.EventListGroup, err error) {
	defer func(start time.Time) { track(r.recorder, metrics.OpSelect, start, err) }(time.Now())

	err = r.db.WithContext(ctx).
		Where("EMC_ID <= ?", maxID).
		Order("EMC_ID").
		Find(&rows).Error
	if err != nil {
		return nil, dbError(err, r.table(), metrics.OpSelect)
	}
	return rows, nil
}

func (r *listGroupRepository) EventLists(ctx context.Context) (pairs []EventList, err error) {
	defer func(start time.Time) { track(r.recorder, metrics.OpSelect, start, err) }(time.Now())

	err = r.db.WithContext(ctx).
		Model(&entities.EventListGroup{}).
		Distinct("EVT_ID", "AMC_mailchimp_list_id").
		Where("AMC_mailchimp_list_id <> ?", NoListSentinel).
		Order("EVT_ID").
		Order("AMC_mailchimp_list_id").
		Scan(&pairs).Error
	if err != nil {
		return nil, dbError(err, r.table(), metrics.OpSelect)
	}
	return pairs, nil
}

func (r *listGroupRepository) UpdateGroupID(ctx context.Context, id uint, groupID string) (err error) {
	defer func(start time.Time) { track(r.recorder, metrics.OpUpdate, start, err) }(time.Now())

	result := r.db.WithContext(ctx).
		Model(&entities.EventListGroup{}).
		Where("EMC_ID = ?", id).
		Update("AMC_mailchimp_group_id", groupID)
	if result.Error != nil {
		return dbError(result.Error, r.table(), metrics.OpUpdate)
	}
	if result.RowsAffected == 0 {
		return errors.New(fmt.Errorf("%w: EMC_ID %d", ErrRowNotFound, id)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("table", r.table()).
			Build()
	}
	return nil
}

func (r *listGroupRepository) Insert(ctx context.Context, row *entities.EventListGroup) (err error) {
	defer func(start time.Time) { track(r.recorder, metrics.OpInsert, start, err) }(time.Now())

	if err = r.db.WithContext(ctx).Create(row).Error; err != nil {
		return dbError(err, r.table(), metrics.OpInsert)
	}
	return nil
}
