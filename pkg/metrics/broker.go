package metrics

import "time"

// BrokerMetrics observes the request path of the broker adapter.
//
// Implementations must be safe for concurrent use. Pass nil to the adapter
// to disable collection.
type BrokerMetrics interface {
	// RecordRequest records a completed request. code is the response code
	// name ("OK", "FILE_NOT_FOUND", ...).
	RecordRequest(operation string, code string, duration time.Duration)

	// RecordRequestStart increments the in-flight gauge of operation.
	RecordRequestStart(operation string)

	// RecordRequestEnd decrements the in-flight gauge of operation.
	RecordRequestEnd(operation string)

	// RecordRejected counts a request answered without reaching the broker.
	// reason is "pool_full", "rate_limited", "read_only" or "shutting_down".
	RecordRejected(operation string, reason string)

	// RecordBytesTransferred counts frame bytes; direction is "in" or "out".
	RecordBytesTransferred(direction string, bytes uint64)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// SetOpenFiles updates the number of open descriptors.
	SetOpenFiles(count int)

	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
}

// NewNoopBrokerMetrics returns a BrokerMetrics that discards everything.
func NewNoopBrokerMetrics() BrokerMetrics {
	return noopBrokerMetrics{}
}

type noopBrokerMetrics struct{}

func (noopBrokerMetrics) RecordRequest(operation string, code string, duration time.Duration) {}
func (noopBrokerMetrics) RecordRequestStart(operation string)                                 {}
func (noopBrokerMetrics) RecordRequestEnd(operation string)                                   {}
func (noopBrokerMetrics) RecordRejected(operation string, reason string)                      {}
func (noopBrokerMetrics) RecordBytesTransferred(direction string, bytes uint64)               {}
func (noopBrokerMetrics) SetActiveConnections(count int32)                                    {}
func (noopBrokerMetrics) SetOpenFiles(count int)                                              {}
func (noopBrokerMetrics) RecordConnectionAccepted()                                           {}
func (noopBrokerMetrics) RecordConnectionClosed()                                             {}
func (noopBrokerMetrics) RecordConnectionForceClosed()                                        {}
