package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const mkdirsVersion uint8 = 1

// MkdirsRequest asks the broker to create a directory and any missing parents.
//
// Version 1 fields:
//
//	[name:vstr]
type MkdirsRequest struct {
	Name string
}

// DecodeMkdirsRequest decodes a MKDIRS payload.
//
// Example (the path "/tmp"):
//
//	0x01                           version
//	0x06                           encoding length
//	0x05 '/' 't' 'm' 'p' 0x00      name
func DecodeMkdirsRequest(payload []byte) (*MkdirsRequest, error) {
	req := &MkdirsRequest{}
	_, err := DecodeEnvelope(payload, "Mkdirs", mkdirsVersion, func(c *serial.Cursor) error {
		name, err := decodeName(c, "Filename")
		req.Name = name
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Encode produces the wire form of the request.
func (r *MkdirsRequest) Encode() []byte {
	return EncodeEnvelope(mkdirsVersion, func(e *serial.Encoder) {
		e.EncodeVStr(r.Name)
	})
}

// HandleMkdirs is the MKDIRS dispatch unit.
//
// A payload that fails validation is answered with PROTOCOL_ERROR and the
// broker is never called. Otherwise the broker receives the path and owns
// the response from then on.
func HandleMkdirs(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodeMkdirsRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdMkdirs, err)
		return
	}

	logger.Debug("MKDIRS: path=%s client=%s", req.Name, ev.ClientAddr)
	broker.Mkdirs(ctx, rc, req.Name)
}
