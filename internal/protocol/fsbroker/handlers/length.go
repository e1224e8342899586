package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const lengthVersion uint8 = 1

// LengthRequest returns the size of a file.
//
// Version 1 fields: [name:vstr][accurate:bool]
//
// Success result: [length:i64]
type LengthRequest struct {
	Name     string
	Accurate bool
}

func DecodeLengthRequest(payload []byte) (*LengthRequest, error) {
	req := &LengthRequest{}
	_, err := DecodeEnvelope(payload, "Length", lengthVersion, func(c *serial.Cursor) error {
		var err error
		if req.Name, err = decodeName(c, "Filename"); err != nil {
			return err
		}
		req.Accurate, err = c.DecodeBool()
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *LengthRequest) Encode() []byte {
	return EncodeEnvelope(lengthVersion, func(e *serial.Encoder) {
		e.EncodeVStr(r.Name)
		e.EncodeBool(r.Accurate)
	})
}

func HandleLength(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodeLengthRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdLength, err)
		return
	}

	logger.Debug("LENGTH: path=%s accurate=%v client=%s", req.Name, req.Accurate, ev.ClientAddr)
	broker.Length(ctx, rc, req.Name, req.Accurate)
}
