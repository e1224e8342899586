package adapter

import (
	"context"
)

// Adapter is a protocol server managed by pkg/server.
//
// Lifecycle:
//  1. Creation with protocol-specific configuration and its broker
//  2. Serve starts accepting connections and blocks until shutdown
//  3. Stop initiates graceful shutdown bounded by its context
//
// Stop may be called concurrently with Serve and more than once.
type Adapter interface {
	// Serve accepts connections until ctx is cancelled or an unrecoverable
	// error occurs. On cancellation it stops accepting, drains in-flight
	// requests up to the shutdown timeout and returns nil or the timeout
	// error.
	//
	// A Serve that returns before ctx is cancelled is treated as fatal by
	// the server.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown and waits until it completes or ctx
	// ends.
	Stop(ctx context.Context) error

	// Protocol names the adapter in logs and metrics.
	Protocol() string

	// Port returns the bound TCP port, or the configured one before Serve
	// has bound the listener.
	Port() int
}
