package client

import (
	"errors"
	"fmt"

	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

// Error is a non-OK response from the broker.
type Error struct {
	Op      types.Command
	Code    types.Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
}

// CodeOf returns the broker code carried by err, or OK when err is not an
// *Error.
func CodeOf(err error) types.Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return types.OK
}

// IsNotFound reports whether the broker answered FILE_NOT_FOUND.
func IsNotFound(err error) bool {
	return CodeOf(err) == types.FileNotFound
}
