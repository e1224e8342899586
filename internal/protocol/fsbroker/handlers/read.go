package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const readVersion uint8 = 1

// ReadRequest reads from the current offset of a descriptor and advances it.
//
// Version 1 fields: [fd:i32][amount:i32]
//
// Success result: [offset:i64][data:bytes]
type ReadRequest struct {
	FD     uint32
	Amount uint32
}

func DecodeReadRequest(payload []byte) (*ReadRequest, error) {
	req := &ReadRequest{}
	_, err := DecodeEnvelope(payload, "Read", readVersion, func(c *serial.Cursor) error {
		var err error
		if req.FD, err = c.DecodeI32(); err != nil {
			return err
		}
		req.Amount, err = c.DecodeI32()
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *ReadRequest) Encode() []byte {
	return EncodeEnvelope(readVersion, func(e *serial.Encoder) {
		e.EncodeI32(r.FD)
		e.EncodeI32(r.Amount)
	})
}

func HandleRead(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodeReadRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdRead, err)
		return
	}

	logger.Debug("READ: fd=%d amount=%d client=%s", req.FD, req.Amount, ev.ClientAddr)
	broker.Read(ctx, rc, req.FD, req.Amount)
}
