package serial

import "encoding/binary"

// ============================================================================
// Encoder - Go Values → Wire Format
// ============================================================================

// Encoder appends wire-format values to a growing buffer.
// Every Encode method is the exact inverse of the matching Cursor decoder.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder with room for capacity bytes.
func NewEncoder(capacity int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded bytes. The slice is shared with the encoder.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes encoded so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Reset discards encoded bytes but keeps the allocated capacity.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

func (e *Encoder) EncodeByte(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) EncodeBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
		return
	}
	e.buf = append(e.buf, 0)
}

func (e *Encoder) EncodeI16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) EncodeI32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) EncodeI64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) EncodeVInt32(v uint32) {
	e.EncodeVInt64(uint64(v))
}

func (e *Encoder) EncodeVInt64(v uint64) {
	for v >= 0x80 {
		e.buf = append(e.buf, byte(v)|0x80)
		v >>= 7
	}
	e.buf = append(e.buf, byte(v))
}

// EncodeVStr writes s as [len(s)+1:vint32][s][0x00].
func (e *Encoder) EncodeVStr(s string) {
	e.EncodeVInt32(uint32(len(s) + 1))
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
}

// EncodeNullVStr writes the "no value" string sentinel.
func (e *Encoder) EncodeNullVStr() {
	e.buf = append(e.buf, 0)
}

// EncodeBytes writes b as [len(b):vint32][b].
func (e *Encoder) EncodeBytes(b []byte) {
	e.EncodeVInt32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// EncodeRaw appends b without a length prefix.
func (e *Encoder) EncodeRaw(b []byte) {
	e.buf = append(e.buf, b...)
}

// VInt32Len returns the number of bytes EncodeVInt32 writes for v.
func VInt32Len(v uint32) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// VStrLen returns the number of bytes EncodeVStr writes for s.
func VStrLen(s string) int {
	return VInt32Len(uint32(len(s)+1)) + len(s) + 1
}
