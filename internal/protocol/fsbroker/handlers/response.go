package handlers

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/comm"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

// ErrChannelCompleted is returned when a ResponseChannel is completed twice.
// The second response is never sent.
var ErrChannelCompleted = errors.New("response channel already completed")

// Sender writes one response frame back to the client connection.
// Implementations must be safe for concurrent use.
type Sender interface {
	Send(header comm.Header, payload []byte) error
}

// CompletionFunc observes every completed request.
type CompletionFunc func(cmd types.Command, code types.Code, elapsed time.Duration)

// ============================================================================
// Response Channel
// ============================================================================

// ResponseChannel is the one-shot reply path bound to a single inbound event.
//
// Response payload layout:
//
//	success: [OK:i32][operation result]
//	error:   [code:i32][message:vstr]
//
// Exactly one completion is accepted. Completion is safe from any goroutine.
// If the request asked for no response, completion is recorded but nothing
// is written.
type ResponseChannel struct {
	header     comm.Header
	connID     string
	clientAddr string
	received   time.Time

	sender     Sender
	onComplete CompletionFunc
	completed  atomic.Bool
}

// NewResponseChannel binds a channel to ev. onComplete may be nil.
func NewResponseChannel(ev *Event, sender Sender, onComplete CompletionFunc) *ResponseChannel {
	received := ev.Received
	if received.IsZero() {
		received = time.Now()
	}
	return &ResponseChannel{
		header:     ev.Header,
		connID:     ev.ConnID,
		clientAddr: ev.ClientAddr,
		received:   received,
		sender:     sender,
		onComplete: onComplete,
	}
}

// ConnID identifies the connection the request arrived on.
func (rc *ResponseChannel) ConnID() string { return rc.connID }

// ClientAddr is the remote address of the requesting client.
func (rc *ResponseChannel) ClientAddr() string { return rc.clientAddr }

// Command is the operation being answered.
func (rc *ResponseChannel) Command() types.Command { return rc.header.Cmd() }

// Completed reports whether a response has already been produced.
func (rc *ResponseChannel) Completed() bool { return rc.completed.Load() }

// OK completes the request with an empty success result.
func (rc *ResponseChannel) OK() error {
	return rc.complete(types.OK, nil)
}

// Success completes the request with a pre-encoded operation result.
func (rc *ResponseChannel) Success(result []byte) error {
	return rc.complete(types.OK, func(e *serial.Encoder) {
		e.EncodeRaw(result)
	})
}

// Error completes the request with a failure code and message.
func (rc *ResponseChannel) Error(code types.Code, message string) error {
	if code == types.OK {
		return fmt.Errorf("error response with OK code: %s", message)
	}
	return rc.complete(code, func(e *serial.Encoder) {
		e.EncodeVStr(message)
	})
}

// Opened answers OPEN and CREATE with the new file descriptor.
func (rc *ResponseChannel) Opened(fd uint32) error {
	return rc.complete(types.OK, func(e *serial.Encoder) {
		e.EncodeI32(fd)
	})
}

// Data answers READ and PREAD with the offset the data was read from.
func (rc *ResponseChannel) Data(offset uint64, data []byte) error {
	return rc.complete(types.OK, func(e *serial.Encoder) {
		e.EncodeI64(offset)
		e.EncodeBytes(data)
	})
}

// Appended answers APPEND with the offset the data was written at.
func (rc *ResponseChannel) Appended(offset uint64, amount uint32) error {
	return rc.complete(types.OK, func(e *serial.Encoder) {
		e.EncodeI64(offset)
		e.EncodeI32(amount)
	})
}

// Length answers LENGTH.
func (rc *ResponseChannel) Length(length uint64) error {
	return rc.complete(types.OK, func(e *serial.Encoder) {
		e.EncodeI64(length)
	})
}

// Listing answers READDIR.
func (rc *ResponseChannel) Listing(names []string) error {
	return rc.complete(types.OK, func(e *serial.Encoder) {
		e.EncodeVInt32(uint32(len(names)))
		for _, name := range names {
			e.EncodeVStr(name)
		}
	})
}

// Exists answers EXISTS.
func (rc *ResponseChannel) Exists(exists bool) error {
	return rc.complete(types.OK, func(e *serial.Encoder) {
		e.EncodeBool(exists)
	})
}

// Status answers STATUS with the broker's health code and description.
func (rc *ResponseChannel) Status(code types.Code, text string) error {
	return rc.complete(types.OK, func(e *serial.Encoder) {
		e.EncodeI32(uint32(code))
		e.EncodeVStr(text)
	})
}

func (rc *ResponseChannel) complete(code types.Code, body func(e *serial.Encoder)) error {
	if !rc.completed.CompareAndSwap(false, true) {
		logger.Error("%s: second response for request id=%d from %s dropped (code=%s)",
			rc.header.Cmd(), rc.header.ID, rc.clientAddr, code)
		return ErrChannelCompleted
	}

	if rc.onComplete != nil {
		defer rc.onComplete(rc.header.Cmd(), code, time.Since(rc.received))
	}

	if rc.header.IgnoreResponse() {
		return nil
	}

	e := serial.NewEncoder(64)
	e.EncodeI32(uint32(code))
	if body != nil {
		body(e)
	}

	if err := rc.sender.Send(comm.ResponseTo(rc.header, e.Len()), e.Bytes()); err != nil {
		return fmt.Errorf("send %s response: %w", rc.header.Cmd(), err)
	}
	return nil
}
