// Package handlers contains one dispatch unit per broker operation.
//
// A dispatch unit decodes the versioned request envelope of an inbound
// event, rejects malformed input with PROTOCOL_ERROR before any broker
// call, and otherwise hands the decoded arguments to the Broker together
// with a ResponseChannel. The Broker completes the channel; the dispatch
// unit never waits for it.
package handlers

import (
	"context"
	"time"

	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/comm"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

// Event is one inbound request frame.
//
// The Payload is borrowed from the connection's buffer pool for the lifetime
// of the dispatch unit. Decoders copy everything they return, so nothing
// handed to the Broker aliases Payload.
type Event struct {
	Header  comm.Header
	Payload []byte

	// ConnID identifies the connection the frame arrived on.
	ConnID string

	// ClientAddr is the remote address in "IP:port" form.
	ClientAddr string

	// Received is when the frame was fully read.
	Received time.Time
}

// Command returns the operation the event carries.
func (e *Event) Command() types.Command {
	return e.Header.Cmd()
}

// Handler is the entry point of a dispatch unit.
//
// A Handler must complete rc exactly once on decode failure, and must not
// complete it on success (the Broker owns completion from then on).
type Handler func(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker)
