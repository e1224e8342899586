package handlers

import (
	"errors"
	"fmt"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

// ============================================================================
// Request Envelope
// ============================================================================
//
// Every request payload is wrapped in a versioned envelope:
//
//	[version:u8][encoding_length:vint32][fields: encoding_length bytes][...]
//
// Fields are decoded in version-defined order. A newer client may append
// fields this broker does not know; they are skipped by jumping to the
// declared end of the envelope. Anything after the envelope is ignored.

// msgTruncated is the client-visible message for any short input.
const msgTruncated = "Truncated message"

// ProtocolError is a malformed-request failure. Its message is sent to the
// client verbatim with the PROTOCOL_ERROR code.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	return e.Msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// FieldDecoder decodes an operation's fields from a cursor that is bounded
// to the declared encoding length.
type FieldDecoder func(c *serial.Cursor) error

// DecodeEnvelope validates the envelope of payload and runs fields over it.
//
// Validation order:
//  1. fewer than 2 bytes        → "Truncated message"
//  2. version byte != version   → "<Op> parameters version mismatch, expected X, got Y"
//  3. encoding length overruns  → "Truncated message: ..."
//  4. any field decode failure  → the field's ProtocolError, or "Truncated message"
//
// On success the returned cursor sits at the end of the envelope, never
// before it, whatever the field decoder consumed.
func DecodeEnvelope(payload []byte, opName string, version uint8, fields FieldDecoder) (*serial.Cursor, error) {
	c := serial.NewCursor(payload)
	if c.Remaining() < 2 {
		return nil, &ProtocolError{Msg: msgTruncated}
	}

	got, err := c.DecodeByte()
	if err != nil {
		return nil, &ProtocolError{Msg: msgTruncated, Err: err}
	}
	if got != version {
		return nil, &ProtocolError{
			Msg: fmt.Sprintf("%s parameters version mismatch, expected %d, got %d", opName, version, got),
		}
	}

	length, err := c.DecodeVInt32()
	if err != nil {
		return nil, asProtocolError(err)
	}

	start := c.Position()
	if uint64(length) > uint64(c.Remaining()) {
		return nil, &ProtocolError{
			Msg: fmt.Sprintf("%s: encoding length %d exceeds %d remaining bytes", msgTruncated, length, c.Remaining()),
			Err: serial.ErrTruncated,
		}
	}

	body, err := c.Sub(int(length))
	if err != nil {
		return nil, asProtocolError(err)
	}
	if err := fields(body); err != nil {
		return nil, asProtocolError(err)
	}

	if consumed := body.Position(); consumed < int(length) {
		logger.Debug("%s: skipping %d unknown trailing field bytes", opName, int(length)-consumed)
	}
	if err := c.SkipTo(start + int(length)); err != nil {
		return nil, asProtocolError(err)
	}
	return c, nil
}

// EncodeEnvelope wraps the fields written by fields in a version envelope.
func EncodeEnvelope(version uint8, fields func(e *serial.Encoder)) []byte {
	body := serial.NewEncoder(32)
	if fields != nil {
		fields(body)
	}

	e := serial.NewEncoder(1 + serial.MaxVInt32Len + body.Len())
	e.EncodeByte(version)
	e.EncodeVInt32(uint32(body.Len()))
	e.EncodeRaw(body.Bytes())
	return e.Bytes()
}

func asProtocolError(err error) error {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, serial.ErrTruncated) {
		return &ProtocolError{Msg: msgTruncated, Err: err}
	}
	return &ProtocolError{Msg: fmt.Sprintf("Malformed request: %v", err), Err: err}
}

// ============================================================================
// Field Helpers
// ============================================================================

// decodeName reads a required vstr. The "no value" sentinel is a protocol
// error: a missing name is never treated as an empty one.
func decodeName(c *serial.Cursor, what string) (string, error) {
	s, ok, err := c.DecodeVStr()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &ProtocolError{Msg: fmt.Sprintf("%s not properly encoded in request packet", what)}
	}
	return s, nil
}

// replyProtocolError completes rc with PROTOCOL_ERROR for a request that
// failed to decode. A failed send is logged and otherwise ignored.
func replyProtocolError(rc *ResponseChannel, cmd types.Command, err error) {
	logger.Error("Protocol error (%s) - %s", cmd, err)
	if sendErr := rc.Error(types.ProtocolError, err.Error()); sendErr != nil {
		logger.Error("Problem sending (%s) error back to client - %v", cmd, sendErr)
	}
}
