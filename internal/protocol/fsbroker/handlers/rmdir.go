package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const rmdirVersion uint8 = 1

// RmdirRequest removes a directory and everything below it.
//
// Version 1 fields: [name:vstr]
type RmdirRequest struct {
	Name string
}

func DecodeRmdirRequest(payload []byte) (*RmdirRequest, error) {
	req := &RmdirRequest{}
	_, err := DecodeEnvelope(payload, "Rmdir", rmdirVersion, func(c *serial.Cursor) error {
		name, err := decodeName(c, "Directory name")
		req.Name = name
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *RmdirRequest) Encode() []byte {
	return EncodeEnvelope(rmdirVersion, func(e *serial.Encoder) {
		e.EncodeVStr(r.Name)
	})
}

func HandleRmdir(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodeRmdirRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdRmdir, err)
		return
	}

	logger.Debug("RMDIR: path=%s client=%s", req.Name, ev.ClientAddr)
	broker.Rmdir(ctx, rc, req.Name)
}
