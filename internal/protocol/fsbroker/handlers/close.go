package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const closeVersion uint8 = 1

// CloseRequest releases a file descriptor.
//
// Version 1 fields: [fd:i32]
type CloseRequest struct {
	FD uint32
}

func DecodeCloseRequest(payload []byte) (*CloseRequest, error) {
	req := &CloseRequest{}
	_, err := DecodeEnvelope(payload, "Close", closeVersion, func(c *serial.Cursor) error {
		var err error
		req.FD, err = c.DecodeI32()
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *CloseRequest) Encode() []byte {
	return EncodeEnvelope(closeVersion, func(e *serial.Encoder) {
		e.EncodeI32(r.FD)
	})
}

func HandleClose(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodeCloseRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdClose, err)
		return
	}

	logger.Debug("CLOSE: fd=%d client=%s", req.FD, ev.ClientAddr)
	broker.Close(ctx, rc, req.FD)
}
