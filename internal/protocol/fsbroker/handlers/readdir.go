package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const readdirVersion uint8 = 1

// ReaddirRequest lists the entries of a directory.
//
// Version 1 fields: [name:vstr]
//
// Success result: [count:vint32][count × name:vstr]
type ReaddirRequest struct {
	Name string
}

func DecodeReaddirRequest(payload []byte) (*ReaddirRequest, error) {
	req := &ReaddirRequest{}
	_, err := DecodeEnvelope(payload, "Readdir", readdirVersion, func(c *serial.Cursor) error {
		name, err := decodeName(c, "Directory name")
		req.Name = name
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *ReaddirRequest) Encode() []byte {
	return EncodeEnvelope(readdirVersion, func(e *serial.Encoder) {
		e.EncodeVStr(r.Name)
	})
}

func HandleReaddir(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodeReaddirRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdReaddir, err)
		return
	}

	logger.Debug("READDIR: path=%s client=%s", req.Name, ev.ClientAddr)
	broker.Readdir(ctx, rc, req.Name)
}
