package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const seekVersion uint8 = 1

// SeekRequest moves the read offset of a descriptor.
//
// Version 1 fields: [fd:i32][offset:i64]
type SeekRequest struct {
	FD     uint32
	Offset uint64
}

func DecodeSeekRequest(payload []byte) (*SeekRequest, error) {
	req := &SeekRequest{}
	_, err := DecodeEnvelope(payload, "Seek", seekVersion, func(c *serial.Cursor) error {
		var err error
		if req.FD, err = c.DecodeI32(); err != nil {
			return err
		}
		req.Offset, err = c.DecodeI64()
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *SeekRequest) Encode() []byte {
	return EncodeEnvelope(seekVersion, func(e *serial.Encoder) {
		e.EncodeI32(r.FD)
		e.EncodeI64(r.Offset)
	})
}

func HandleSeek(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodeSeekRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdSeek, err)
		return
	}

	logger.Debug("SEEK: fd=%d offset=%d client=%s", req.FD, req.Offset, ev.ClientAddr)
	broker.Seek(ctx, rc, req.FD, req.Offset)
}
