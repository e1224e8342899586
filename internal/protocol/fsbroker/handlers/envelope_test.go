package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
)

func TestDecodeEnvelopeCursorPosition(t *testing.T) {
	t.Run("AdvancesToDeclaredEnd", func(t *testing.T) {
		payload := []byte{0x01, 0x04, 0x0A, 0x0B, 0x0C, 0x0D, 0xEE}
		c, err := DecodeEnvelope(payload, "Test", 1, func(c *serial.Cursor) error {
			_, err := c.DecodeByte()
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 6, c.Position())
		assert.Equal(t, 1, c.Remaining())
	})

	t.Run("ExactConsumption", func(t *testing.T) {
		payload := []byte{0x01, 0x02, 0x0A, 0x0B}
		c, err := DecodeEnvelope(payload, "Test", 1, func(c *serial.Cursor) error {
			_, err := c.DecodeI16()
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, len(payload), c.Position())
	})

	t.Run("ZeroLengthBody", func(t *testing.T) {
		c, err := DecodeEnvelope([]byte{0x01, 0x00}, "Test", 1, func(c *serial.Cursor) error {
			assert.Equal(t, 0, c.Remaining())
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, c.Position())
	})
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	noFields := func(c *serial.Cursor) error { return nil }

	t.Run("FieldDecoderNotCalledOnVersionMismatch", func(t *testing.T) {
		called := false
		_, err := DecodeEnvelope([]byte{0x03, 0x00}, "Test", 1, func(c *serial.Cursor) error {
			called = true
			return nil
		})
		require.Error(t, err)
		assert.False(t, called)
	})

	t.Run("ProtocolErrorFromFieldsKept", func(t *testing.T) {
		want := &ProtocolError{Msg: "bad field"}
		_, err := DecodeEnvelope([]byte{0x01, 0x00}, "Test", 1, func(c *serial.Cursor) error {
			return want
		})
		var pe *ProtocolError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "bad field", pe.Msg)
	})

	t.Run("TruncationUnwraps", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte{0x01, 0x05, 0x00}, "Test", 1, noFields)
		assert.ErrorIs(t, err, serial.ErrTruncated)
	})

	t.Run("OverflowingEncodingLength", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x1F}, "Test", 1, noFields)
		var pe *ProtocolError
		require.True(t, errors.As(err, &pe))
		assert.ErrorIs(t, err, serial.ErrVarintOverflow)
	})
}

func TestEncodeEnvelope(t *testing.T) {
	payload := EncodeEnvelope(3, func(e *serial.Encoder) {
		e.EncodeVStr("ab")
	})
	assert.Equal(t, []byte{0x03, 0x04, 0x03, 'a', 'b', 0x00}, payload)

	assert.Equal(t, []byte{0x01, 0x00}, EncodeEnvelope(1, nil))
}
