// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Row result label values.
const (
	ResultMigrated = "migrated"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
)

// Operation status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Datastore operation label values.
const (
	OpCount  = "count"
	OpSelect = "select"
	OpUpdate = "update"
	OpInsert = "insert"
	OpState  = "state"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms.
	BucketStart10ms = 0.01

	// BucketFactor2 is the common exponential growth factor.
	BucketFactor2 = 2

	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)

// ShutdownTimeout bounds graceful shutdown of the metrics server.
const ShutdownTimeout = 5 * time.Second
