package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const existsVersion uint8 = 1

// ExistsRequest checks whether a file or directory exists.
//
// Version 1 fields: [name:vstr]
//
// Success result: [exists:bool]
type ExistsRequest struct {
	Name string
}

func DecodeExistsRequest(payload []byte) (*ExistsRequest, error) {
	req := &ExistsRequest{}
	_, err := DecodeEnvelope(payload, "Exists", existsVersion, func(c *serial.Cursor) error {
		name, err := decodeName(c, "Filename")
		req.Name = name
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *ExistsRequest) Encode() []byte {
	return EncodeEnvelope(existsVersion, func(e *serial.Encoder) {
		e.EncodeVStr(r.Name)
	})
}

func HandleExists(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodeExistsRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdExists, err)
		return
	}

	logger.Debug("EXISTS: path=%s client=%s", req.Name, ev.ClientAddr)
	broker.Exists(ctx, rc, req.Name)
}
