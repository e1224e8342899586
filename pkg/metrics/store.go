package metrics

import "time"

// StoreMetrics observes storage backend calls.
type StoreMetrics interface {
	// ObserveOperation records one backend call and whether it failed.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes counts payload bytes; operation is "read" or "append".
	RecordBytes(operation string, bytes int)
}

// NewNoopStoreMetrics returns a StoreMetrics that discards everything.
func NewNoopStoreMetrics() StoreMetrics {
	return noopStoreMetrics{}
}

type noopStoreMetrics struct{}

func (noopStoreMetrics) ObserveOperation(operation string, duration time.Duration, err error) {}
func (noopStoreMetrics) RecordBytes(operation string, bytes int)                              {}
