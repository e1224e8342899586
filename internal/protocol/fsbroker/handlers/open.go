package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const openVersion uint8 = 1

// OpenRequest opens an existing file for reading.
//
// Version 1 fields:
//
//	[name:vstr][flags:i32][buffer_size:i32]
//
// Success result: [fd:i32]
type OpenRequest struct {
	Name       string
	Flags      uint32
	BufferSize uint32
}

func DecodeOpenRequest(payload []byte) (*OpenRequest, error) {
	req := &OpenRequest{}
	_, err := DecodeEnvelope(payload, "Open", openVersion, func(c *serial.Cursor) error {
		var err error
		if req.Name, err = decodeName(c, "Filename"); err != nil {
			return err
		}
		if req.Flags, err = c.DecodeI32(); err != nil {
			return err
		}
		req.BufferSize, err = c.DecodeI32()
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *OpenRequest) Encode() []byte {
	return EncodeEnvelope(openVersion, func(e *serial.Encoder) {
		e.EncodeVStr(r.Name)
		e.EncodeI32(r.Flags)
		e.EncodeI32(r.BufferSize)
	})
}

func HandleOpen(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodeOpenRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdOpen, err)
		return
	}

	logger.Debug("OPEN: path=%s flags=0x%x bufsz=%d client=%s", req.Name, req.Flags, req.BufferSize, ev.ClientAddr)
	broker.Open(ctx, rc, req.Name, req.Flags, req.BufferSize)
}
