package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const statusVersion uint8 = 1

// StatusRequest probes broker health. Version 1 has no fields, but the
// envelope is still required.
//
// Success result: [status:i32][text:vstr]
type StatusRequest struct{}

func DecodeStatusRequest(payload []byte) (*StatusRequest, error) {
	_, err := DecodeEnvelope(payload, "Status", statusVersion, func(c *serial.Cursor) error {
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &StatusRequest{}, nil
}

func (r *StatusRequest) Encode() []byte {
	return EncodeEnvelope(statusVersion, nil)
}

func HandleStatus(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	if _, err := DecodeStatusRequest(ev.Payload); err != nil {
		replyProtocolError(rc, types.CmdStatus, err)
		return
	}

	logger.Debug("STATUS: client=%s", ev.ClientAddr)
	broker.Status(ctx, rc)
}
