package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const shutdownVersion uint8 = 1

// ShutdownRequest asks the broker process to stop.
//
// Version 1 fields: [flags:i16]
type ShutdownRequest struct {
	Flags uint16
}

func DecodeShutdownRequest(payload []byte) (*ShutdownRequest, error) {
	req := &ShutdownRequest{}
	_, err := DecodeEnvelope(payload, "Shutdown", shutdownVersion, func(c *serial.Cursor) error {
		var err error
		req.Flags, err = c.DecodeI16()
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *ShutdownRequest) Encode() []byte {
	return EncodeEnvelope(shutdownVersion, func(e *serial.Encoder) {
		e.EncodeI16(r.Flags)
	})
}

func HandleShutdown(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodeShutdownRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdShutdown, err)
		return
	}

	logger.Info("SHUTDOWN: flags=0x%x client=%s", req.Flags, ev.ClientAddr)
	broker.Shutdown(ctx, rc, req.Flags)
}
