package serial

import (
	"encoding/binary"
	"fmt"
)

// ============================================================================
// Cursor - Wire Format → Go Values
// ============================================================================

// Cursor reads primitive values from a byte slice.
//
// The position only moves forward. Every decoder either consumes exactly the
// bytes of the value it returns or fails without consuming anything useful;
// callers are expected to abandon the cursor after the first error.
//
// Strings and byte fields returned by a Cursor never alias the underlying
// buffer, so the buffer can be recycled once decoding is done.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor returns a cursor positioned at the first byte of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Position returns the number of bytes consumed so far.
func (c *Cursor) Position() int {
	return c.pos
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) error {
	if n < 0 {
		return fmt.Errorf("skip %d bytes: negative count", n)
	}
	if n > c.Remaining() {
		return fmt.Errorf("skip %d bytes with %d remaining: %w", n, c.Remaining(), ErrTruncated)
	}
	c.pos += n
	return nil
}

// SkipTo moves the cursor forward to absolute position pos.
// A position behind the cursor is left alone: the cursor never rewinds.
func (c *Cursor) SkipTo(pos int) error {
	if pos <= c.pos {
		return nil
	}
	return c.Skip(pos - c.pos)
}

// Sub returns a cursor over the next n bytes without advancing c.
// Reads through the returned cursor can never go past those n bytes.
func (c *Cursor) Sub(n int) (*Cursor, error) {
	if n < 0 || n > c.Remaining() {
		return nil, fmt.Errorf("sub-range of %d bytes with %d remaining: %w", n, c.Remaining(), ErrTruncated)
	}
	return &Cursor{buf: c.buf[c.pos : c.pos+n]}, nil
}

func (c *Cursor) take(n int) ([]byte, error) {
	if n > c.Remaining() {
		return nil, fmt.Errorf("need %d bytes, have %d: %w", n, c.Remaining(), ErrTruncated)
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// DecodeByte reads a single byte.
func (c *Cursor) DecodeByte() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, fmt.Errorf("decode byte: %w", err)
	}
	return b[0], nil
}

// DecodeBool reads a single byte; any non-zero value is true.
func (c *Cursor) DecodeBool() (bool, error) {
	b, err := c.take(1)
	if err != nil {
		return false, fmt.Errorf("decode bool: %w", err)
	}
	return b[0] != 0, nil
}

// DecodeI16 reads a little-endian 16-bit integer.
func (c *Cursor) DecodeI16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, fmt.Errorf("decode i16: %w", err)
	}
	return binary.LittleEndian.Uint16(b), nil
}

// DecodeI32 reads a little-endian 32-bit integer.
func (c *Cursor) DecodeI32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, fmt.Errorf("decode i32: %w", err)
	}
	return binary.LittleEndian.Uint32(b), nil
}

// DecodeI64 reads a little-endian 64-bit integer.
func (c *Cursor) DecodeI64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, fmt.Errorf("decode i64: %w", err)
	}
	return binary.LittleEndian.Uint64(b), nil
}

// DecodeVInt32 reads a variable-length unsigned 32-bit integer.
//
// Format: 7 value bits per byte, least-significant group first. The high
// bit (0x80) of each byte is set when another byte follows. A 32-bit value
// needs at most MaxVInt32Len bytes.
func (c *Cursor) DecodeVInt32() (uint32, error) {
	v, err := c.decodeVarint(MaxVInt32Len, 32)
	if err != nil {
		return 0, fmt.Errorf("decode vint32: %w", err)
	}
	return uint32(v), nil
}

// DecodeVInt64 reads a variable-length unsigned 64-bit integer.
func (c *Cursor) DecodeVInt64() (uint64, error) {
	v, err := c.decodeVarint(MaxVInt64Len, 64)
	if err != nil {
		return 0, fmt.Errorf("decode vint64: %w", err)
	}
	return v, nil
}

func (c *Cursor) decodeVarint(maxLen int, bits uint) (uint64, error) {
	var v uint64
	for i := 0; i < maxLen; i++ {
		if c.pos >= len(c.buf) {
			return 0, ErrTruncated
		}
		b := c.buf[c.pos]
		c.pos++

		shift := uint(7 * i)
		group := uint64(b & 0x7f)
		// The last group may only carry the bits that still fit.
		if i == maxLen-1 {
			if b&0x80 != 0 || (bits-shift < 7 && group>>(bits-shift) != 0) {
				return 0, ErrVarintOverflow
			}
		}
		v |= group << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, ErrVarintOverflow
}

// DecodeVStr reads a length-prefixed, NUL-terminated string.
//
// Format: [n:vint32][n bytes], where the last of the n bytes is 0x00 and is
// not part of the value. n == 0 is the "no value" sentinel: ok is false and
// err is nil. The empty string is encoded with n == 1.
func (c *Cursor) DecodeVStr() (s string, ok bool, err error) {
	n, err := c.DecodeVInt32()
	if err != nil {
		return "", false, fmt.Errorf("decode vstr length: %w", err)
	}
	if n == 0 {
		return "", false, nil
	}

	b, err := c.take(int(n))
	if err != nil {
		return "", false, fmt.Errorf("decode vstr body: %w", err)
	}
	if b[n-1] != 0 {
		return "", false, fmt.Errorf("decode vstr body: %w", ErrMissingTerminator)
	}
	return string(b[:n-1]), true, nil
}

// DecodeBytes reads a vint32 length followed by that many raw bytes.
// The returned slice is a copy.
func (c *Cursor) DecodeBytes() ([]byte, error) {
	n, err := c.DecodeVInt32()
	if err != nil {
		return nil, fmt.Errorf("decode bytes length: %w", err)
	}
	b, err := c.take(int(n))
	if err != nil {
		return nil, fmt.Errorf("decode bytes body: %w", err)
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}
