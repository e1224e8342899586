// Package comm implements the frame layer of the broker protocol: the fixed
// header that precedes every request and response payload on a connection.
package comm

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

const (
	// Magic is "FSBK" in ASCII.
	Magic uint32 = 0x46534B42

	// HeaderVersion is the only header layout this package understands.
	HeaderVersion uint32 = 1

	// HeaderSize is the encoded header length: six XDR uint32 fields.
	HeaderSize = 24

	// DefaultMaxPayloadSize caps payloads when the caller does not configure a limit.
	DefaultMaxPayloadSize = 16 << 20
)

// Header flags.
const (
	// FlagResponse marks a frame travelling from broker to client.
	FlagResponse uint32 = 1 << 0

	// FlagIgnoreResponse asks the broker not to send a response.
	FlagIgnoreResponse uint32 = 1 << 1
)

var (
	ErrBadMagic        = errors.New("bad frame magic")
	ErrBadVersion      = errors.New("unsupported frame header version")
	ErrPayloadTooLarge = errors.New("frame payload too large")
)

// Header is the fixed frame header.
//
// Wire format (XDR, big-endian):
//
//	[magic:uint32][version:uint32][flags:uint32][id:uint32][command:uint32][payload_len:uint32]
//
// ID is chosen by the client and echoed unchanged in the response, which is
// how a client matches responses that arrive out of request order.
type Header struct {
	Magic      uint32
	Version    uint32
	Flags      uint32
	ID         uint32
	Command    uint32
	PayloadLen uint32
}

// NewRequestHeader returns a request header for cmd with the given id.
func NewRequestHeader(id uint32, cmd types.Command, payloadLen int) Header {
	return Header{
		Magic:      Magic,
		Version:    HeaderVersion,
		ID:         id,
		Command:    uint32(cmd),
		PayloadLen: uint32(payloadLen),
	}
}

// ResponseTo returns the header of a response to h carrying payloadLen bytes.
func ResponseTo(h Header, payloadLen int) Header {
	return Header{
		Magic:      Magic,
		Version:    HeaderVersion,
		Flags:      FlagResponse,
		ID:         h.ID,
		Command:    h.Command,
		PayloadLen: uint32(payloadLen),
	}
}

func (h Header) IsResponse() bool {
	return h.Flags&FlagResponse != 0
}

func (h Header) IgnoreResponse() bool {
	return h.Flags&FlagIgnoreResponse != 0
}

func (h Header) Cmd() types.Command {
	return types.Command(h.Command)
}

// Encode serializes the header to its 24-byte wire form.
func (h Header) Encode() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	if _, err := xdr.Marshal(buf, &h); err != nil {
		return nil, fmt.Errorf("marshal frame header: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeHeader parses and validates a 24-byte header.
func DecodeHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, fmt.Errorf("frame header: need %d bytes, have %d: %w", HeaderSize, len(data), io.ErrUnexpectedEOF)
	}
	if _, err := xdr.Unmarshal(bytes.NewReader(data[:HeaderSize]), &h); err != nil {
		return h, fmt.Errorf("unmarshal frame header: %w", err)
	}
	if h.Magic != Magic {
		return h, fmt.Errorf("%w: 0x%08x", ErrBadMagic, h.Magic)
	}
	if h.Version != HeaderVersion {
		return h, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	return h, nil
}

// ReadHeader reads one header from r and checks its payload length
// against maxPayload. A maxPayload of zero means DefaultMaxPayloadSize.
func ReadHeader(r io.Reader, maxPayload uint32) (Header, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Header{}, err
	}

	h, err := DecodeHeader(raw[:])
	if err != nil {
		return h, err
	}

	if maxPayload == 0 {
		maxPayload = DefaultMaxPayloadSize
	}
	if h.PayloadLen > maxPayload {
		return h, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, h.PayloadLen, maxPayload)
	}
	return h, nil
}

// EncodeFrame returns header and payload as one contiguous buffer so the
// frame can be written with a single Write call.
func EncodeFrame(h Header, payload []byte) ([]byte, error) {
	h.PayloadLen = uint32(len(payload))
	hdr, err := h.Encode()
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(hdr)+len(payload))
	frame = append(frame, hdr...)
	frame = append(frame, payload...)
	return frame, nil
}
