// Package repository provides context-aware access to the legacy tables.
package repository

import (
	"time"

	"github.com/tphakala/mcmigrate/internal/errors"
	"github.com/tphakala/mcmigrate/internal/observability/metrics"
)

// ErrRowNotFound is returned when an update matches no row.
var ErrRowNotFound = errors.NewStd("row not found")

// dbError wraps a gorm error as a database category error.
func dbError(err error, table, op string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("table", table).
		Context("operation", op).
		Build()
}

// track records the outcome and duration of one operation.
func track(r metrics.Recorder, op string, start time.Time, err error) {
	r.RecordDuration(op, time.Since(start).Seconds())
	if err != nil {
		r.RecordOperation(op, metrics.StatusError)
		r.RecordError(op, string(errors.CategoryOf(err)))
		return
	}
	r.RecordOperation(op, metrics.StatusSuccess)
}

func recorderOrNop(r metrics.Recorder) metrics.Recorder {
	if r == nil {
		return metrics.NopRecorder{}
	}
	return r
}
