package handlers

import (
	"context"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const preadVersion uint8 = 1

// PreadRequest reads at an absolute offset without moving the descriptor.
//
// Version 1 fields: [fd:i32][offset:i64][amount:i32][verify_checksum:bool]
//
// Success result: [offset:i64][data:bytes]
type PreadRequest struct {
	FD             uint32
	Offset         uint64
	Amount         uint32
	VerifyChecksum bool
}

func DecodePreadRequest(payload []byte) (*PreadRequest, error) {
	req := &PreadRequest{}
	_, err := DecodeEnvelope(payload, "Pread", preadVersion, func(c *serial.Cursor) error {
		var err error
		if req.FD, err = c.DecodeI32(); err != nil {
			return err
		}
		if req.Offset, err = c.DecodeI64(); err != nil {
			return err
		}
		if req.Amount, err = c.DecodeI32(); err != nil {
			return err
		}
		req.VerifyChecksum, err = c.DecodeBool()
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *PreadRequest) Encode() []byte {
	return EncodeEnvelope(preadVersion, func(e *serial.Encoder) {
		e.EncodeI32(r.FD)
		e.EncodeI64(r.Offset)
		e.EncodeI32(r.Amount)
		e.EncodeBool(r.VerifyChecksum)
	})
}

func HandlePread(ctx context.Context, ev *Event, rc *ResponseChannel, broker Broker) {
	req, err := DecodePreadRequest(ev.Payload)
	if err != nil {
		replyProtocolError(rc, types.CmdPread, err)
		return
	}

	logger.Debug("PREAD: fd=%d offset=%d amount=%d client=%s", req.FD, req.Offset, req.Amount, ev.ClientAddr)
	broker.Pread(ctx, rc, req.FD, req.Offset, req.Amount, req.VerifyChecksum)
}
