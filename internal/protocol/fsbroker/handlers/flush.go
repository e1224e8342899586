package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const flushVersion uint8 = 1

// FlushRequest makes appended data durable.
//
// Version 1 fields: [fd:i32]
type FlushRequest struct {
	FD uint32
}

func DecodeFlushRequest(payload []byte) (*FlushRequest, error) {
	req := &FlushRequest{}
	_, err := DecodeEnvelope(payload, "Flush", flushVersion, func(c *serial.Cursor) error {
		var err error
		req.FD, err = c.DecodeI32()
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *FlushRequest) Encode() []byte {
	return EncodeEnvelope(flushVersion, func(e *serial.Encoder) {
		e.EncodeI32(r.FD)
	})
}

func HandleFlush(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodeFlushRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdFlush, err)
		return
	}

	logger.Debug("FLUSH: fd=%d client=%s", req.FD, ev.ClientAddr)
	broker.Flush(ctx, rc, req.FD)
}
