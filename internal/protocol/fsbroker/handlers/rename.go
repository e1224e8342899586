package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const renameVersion uint8 = 1

// RenameRequest moves a file or directory.
//
// Version 1 fields: [src:vstr][dst:vstr]
type RenameRequest struct {
	From string
	To   string
}

func DecodeRenameRequest(payload []byte) (*RenameRequest, error) {
	req := &RenameRequest{}
	_, err := DecodeEnvelope(payload, "Rename", renameVersion, func(c *serial.Cursor) error {
		var err error
		if req.From, err = decodeName(c, "Source filename"); err != nil {
			return err
		}
		req.To, err = decodeName(c, "Destination filename")
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *RenameRequest) Encode() []byte {
	return EncodeEnvelope(renameVersion, func(e *serial.Encoder) {
		e.EncodeVStr(r.From)
		e.EncodeVStr(r.To)
	})
}

func HandleRename(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodeRenameRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdRename, err)
		return
	}

	logger.Debug("RENAME: from=%s to=%s client=%s", req.From, req.To, ev.ClientAddr)
	broker.Rename(ctx, rc, req.From, req.To)
}
