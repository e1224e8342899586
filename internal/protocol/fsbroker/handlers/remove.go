package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const removeVersion uint8 = 1

// RemoveRequest deletes a regular file.
//
// Version 1 fields: [name:vstr]
type RemoveRequest struct {
	Name string
}

func DecodeRemoveRequest(payload []byte) (*RemoveRequest, error) {
	req := &RemoveRequest{}
	_, err := DecodeEnvelope(payload, "Remove", removeVersion, func(c *serial.Cursor) error {
		name, err := decodeName(c, "Filename")
		req.Name = name
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *RemoveRequest) Encode() []byte {
	return EncodeEnvelope(removeVersion, func(e *serial.Encoder) {
		e.EncodeVStr(r.Name)
	})
}

func HandleRemove(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodeRemoveRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdRemove, err)
		return
	}

	logger.Debug("REMOVE: path=%s client=%s", req.Name, ev.ClientAddr)
	broker.Remove(ctx, rc, req.Name)
}
