// Package serial implements the primitive encodings used in broker request
// and response payloads: fixed-width little-endian integers, variable-length
// integers, length-prefixed strings and byte blobs.
package serial

import "errors"

const (
	// MaxVInt32Len is the longest encoding of a 32-bit varint.
	MaxVInt32Len = 5

	// MaxVInt64Len is the longest encoding of a 64-bit varint.
	MaxVInt64Len = 10
)

var (
	// ErrTruncated is returned when a value extends past the available input.
	ErrTruncated = errors.New("input truncated")

	// ErrVarintOverflow is returned when a varint does not fit its target width.
	ErrVarintOverflow = errors.New("varint overflows target width")

	// ErrMissingTerminator is returned when a string body does not end in NUL.
	ErrMissingTerminator = errors.New("string is not NUL terminated")
)
