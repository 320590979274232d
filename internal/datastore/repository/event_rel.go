package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/mcmigrate/internal/datastore/entities"
	"github.com/tphakala/mcmigrate/internal/errors"
	"github.com/tphakala/mcmigrate/internal/observability/metrics"
)

// EventRelRepository reads the pre-2.0 event relation table.
type EventRelRepository interface {
	Count(ctx context.Context) (int64, error)
	After(ctx context.Context, afterID uint, limit int) ([]entities.LegacyEventRel, error)
}

type eventRelRepository struct {
	db       *gorm.DB
	recorder metrics.Recorder
}

// NewEventRelRepository creates an event relation repository.
func NewEventRelRepository(db *gorm.DB, recorder metrics.Recorder) EventRelRepository {
	return &eventRelRepository{db: db, recorder: recorderOrNop(recorder)}
}

func (r *eventRelRepository) Count(ctx context.Context) (count int64, err error) {
	defer func(start time.Time) { track(r.recorder, metrics.OpCount, start, err) }(time.Now())

	if err = r.db.WithContext(ctx).Model(&entities.LegacyEventRel{}).Count(&count).Error; err != nil {
		return 0, dbError(err, entities.LegacyEventRel{}.TableName(), metrics.OpCount)
	}
	return count, nil
}

func (r *eventRelRepository) After(ctx context.Context, afterID uint, limit int) (rows []entities.LegacyEventRel, err error) {
	defer func(start time.Time) { track(r.recorder, metrics.OpSelect, start, err) }(time.Now())

	err = r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, dbError(err, entities.LegacyEventRel{}.TableName(), metrics.OpSelect)
	}
	return rows, nil
}

// EventMapRepository resolves old event IDs to new ones.
type EventMapRepository interface {
	// Lookup returns the new ID for oldID; ok is false when unmapped.
	Lookup(ctx context.Context, oldID int) (newID int, ok bool, err error)
	// Put stores or replaces a mapping.
	Put(ctx context.Context, oldID, newID int) error
}

type eventMapRepository struct {
	db       *gorm.DB
	recorder metrics.Recorder
}

// NewEventMapRepository creates an event map repository.
func NewEventMapRepository(db *gorm.DB, recorder metrics.Recorder) EventMapRepository {
	return &eventMapRepository{db: db, recorder: recorderOrNop(recorder)}
}

func (r *eventMapRepository) Lookup(ctx context.Context, oldID int) (newID int, ok bool, err error) {
	defer func(start time.Time) { track(r.recorder, metrics.OpSelect, start, err) }(time.Now())

	var m entities.EventIDMapping
	err = r.db.WithContext(ctx).Where("old_event_id = ?", oldID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, dbError(err, m.TableName(), metrics.OpSelect)
	}
	return m.NewEventID, true, nil
}

func (r *eventMapRepository) Put(ctx context.Context, oldID, newID int) (err error) {
	defer func(start time.Time) { track(r.recorder, metrics.OpInsert, start, err) }(time.Now())

	m := entities.EventIDMapping{OldEventID: oldID, NewEventID: newID}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "old_event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"new_event_id"}),
		}).
		Create(&m).Error
	if err != nil {
		return dbError(err, m.TableName(), metrics.OpInsert)
	}
	return nil
}
