package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const appendVersion uint8 = 1

// AppendRequest appends data to a descriptor opened by CREATE.
//
// Version 1 fields: [fd:i32][flush:bool][data:bytes]
//
// Success result: [offset:i64][amount:i32]
type AppendRequest struct {
	FD    uint32
	Flush bool
	Data  []byte
}

func DecodeAppendRequest(payload []byte) (*AppendRequest, error) {
	req := &AppendRequest{}
	_, err := DecodeEnvelope(payload, "Append", appendVersion, func(c *serial.Cursor) error {
		var err error
		if req.FD, err = c.DecodeI32(); err != nil {
			return err
		}
		if req.Flush, err = c.DecodeBool(); err != nil {
			return err
		}
		req.Data, err = c.DecodeBytes()
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *AppendRequest) Encode() []byte {
	return EncodeEnvelope(appendVersion, func(e *serial.Encoder) {
		e.EncodeI32(r.FD)
		e.EncodeBool(r.Flush)
		e.EncodeBytes(r.Data)
	})
}

func HandleAppend(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodeAppendRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdAppend, err)
		return
	}

	logger.Debug("APPEND: fd=%d amount=%d flush=%v client=%s", req.FD, len(req.Data), req.Flush, ev.ClientAddr)
	broker.Append(ctx, rc, req.FD, req.Data, req.Flush)
}
