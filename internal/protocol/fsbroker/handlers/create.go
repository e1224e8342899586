package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const createVersion uint8 = 1

// CreateRequest creates a file and opens it for appending.
//
// Version 1 fields:
//
//	[name:vstr][flags:i32][buffer_size:i32][replication:i16][block_size:i64]
//
// types.OpenFlagOverwrite in Flags truncates an existing file; without it
// the new descriptor appends to whatever is there.
//
// Success result: [fd:i32]
type CreateRequest struct {
	Name        string
	Flags       uint32
	BufferSize  uint32
	Replication uint16
	BlockSize   uint64
}

func DecodeCreateRequest(payload []byte) (*CreateRequest, error) {
	req := &CreateRequest{}
	_, err := DecodeEnvelope(payload, "Create", createVersion, func(c *serial.Cursor) error {
		var err error
		if req.Name, err = decodeName(c, "Filename"); err != nil {
			return err
		}
		if req.Flags, err = c.DecodeI32(); err != nil {
			return err
		}
		if req.BufferSize, err = c.DecodeI32(); err != nil {
			return err
		}
		if req.Replication, err = c.DecodeI16(); err != nil {
			return err
		}
		req.BlockSize, err = c.DecodeI64()
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *CreateRequest) Encode() []byte {
	return EncodeEnvelope(createVersion, func(e *serial.Encoder) {
		e.EncodeVStr(r.Name)
		e.EncodeI32(r.Flags)
		e.EncodeI32(r.BufferSize)
		e.EncodeI16(r.Replication)
		e.EncodeI64(r.BlockSize)
	})
}

func HandleCreate(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodeCreateRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdCreate, err)
		return
	}

	logger.Debug("CREATE: path=%s flags=0x%x bufsz=%d replication=%d blksz=%d client=%s",
		req.Name, req.Flags, req.BufferSize, req.Replication, req.BlockSize, ev.ClientAddr)
	broker.Create(ctx, rc, req.Name, req.Flags, req.BufferSize, req.Replication, req.BlockSize)
}
