package comm

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

func TestHeaderWireLayout(t *testing.T) {
	h := NewRequestHeader(7, types.CmdMkdirs, 8)
	raw, err := h.Encode()
	require.NoError(t, err)
	require.Len(t, raw, HeaderSize)

	assert.Equal(t, Magic, binary.BigEndian.Uint32(raw[0:4]))
	assert.Equal(t, HeaderVersion, binary.BigEndian.Uint32(raw[4:8]))
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(raw[8:12]))
	assert.Equal(t, uint32(7), binary.BigEndian.Uint32(raw[12:16]))
	assert.Equal(t, uint32(types.CmdMkdirs), binary.BigEndian.Uint32(raw[16:20]))
	assert.Equal(t, uint32(8), binary.BigEndian.Uint32(raw[20:24]))
}

func TestFrameRoundTrip(t *testing.T) {
	req := NewRequestHeader(42, types.CmdExists, 0)
	frame, err := EncodeFrame(req, []byte{1, 2, 3})
	require.NoError(t, err)

	r := bytes.NewReader(frame)
	h, err := ReadHeader(r, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), h.ID)
	assert.Equal(t, types.CmdExists, h.Cmd())
	assert.Equal(t, uint32(3), h.PayloadLen)
	assert.False(t, h.IsResponse())

	payload := make([]byte, h.PayloadLen)
	_, err = io.ReadFull(r, payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, payload)

	resp := ResponseTo(h, 4)
	assert.True(t, resp.IsResponse())
	assert.Equal(t, h.ID, resp.ID)
	assert.Equal(t, h.Command, resp.Command)
}

func TestReadHeaderErrors(t *testing.T) {
	t.Run("BadMagic", func(t *testing.T) {
		raw, err := Header{Magic: 1, Version: HeaderVersion}.Encode()
		require.NoError(t, err)
		_, err = ReadHeader(bytes.NewReader(raw), 0)
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("BadVersion", func(t *testing.T) {
		raw, err := Header{Magic: Magic, Version: 9}.Encode()
		require.NoError(t, err)
		_, err = ReadHeader(bytes.NewReader(raw), 0)
		assert.ErrorIs(t, err, ErrBadVersion)
	})

	t.Run("PayloadTooLarge", func(t *testing.T) {
		raw, err := NewRequestHeader(1, types.CmdRead, 2048).Encode()
		require.NoError(t, err)
		_, err = ReadHeader(bytes.NewReader(raw), 1024)
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
	})

	t.Run("ShortHeader", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader([]byte{1, 2, 3}), 0)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("IgnoreResponseFlag", func(t *testing.T) {
		h := NewRequestHeader(1, types.CmdFlush, 0)
		h.Flags |= FlagIgnoreResponse
		assert.True(t, h.IgnoreResponse())
	})
}
