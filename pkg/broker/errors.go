package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/handlers"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
	"github.com/marmos91/fsbroker/pkg/store"
)

// codeForError maps a store error to the response code sent to the client.
//
// Mapping:
//   - ErrNotFound                  → FILE_NOT_FOUND
//   - ErrInvalidPath, ErrNotDir    → BAD_FILENAME
//   - ErrPermission                → PERMISSION_DENIED
//   - ErrExists                    → FILE_EXISTS
//   - ErrNotEmpty                  → DIRECTORY_NOT_EMPTY
//   - ErrIsDir                     → INVALID_ARGUMENT
//   - context deadline exceeded    → REQUEST_TIMEOUT
//   - anything else                → IO_ERROR
func codeForError(err error) types.Code {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return types.FileNotFound
	case errors.Is(err, store.ErrInvalidPath), errors.Is(err, store.ErrNotDir):
		return types.BadFilename
	case errors.Is(err, store.ErrPermission):
		return types.PermissionDenied
	case errors.Is(err, store.ErrExists):
		return types.FileExists
	case errors.Is(err, store.ErrNotEmpty):
		return types.DirectoryNotEmpty
	case errors.Is(err, store.ErrIsDir):
		return types.InvalidArgument
	case errors.Is(err, context.DeadlineExceeded):
		return types.RequestTimeout
	default:
		return types.IOError
	}
}

// reportError logs a failed operation and answers rc with the mapped code.
func reportError(rc *handlers.ResponseChannel, op string, err error) {
	code := codeForError(err)
	logger.Error("%s failed: %v (code=%s client=%s)", op, err, code, rc.ClientAddr())
	if sendErr := rc.Error(code, err.Error()); sendErr != nil {
		logger.Warn("%s: failed to send error response: %v", op, sendErr)
	}
}

// reportBadHandle answers rc with BAD_FILE_HANDLE; the message is the
// descriptor number.
func reportBadHandle(rc *handlers.ResponseChannel, fd uint32) {
	logger.Debug("%s: unknown fd=%d client=%s", rc.Command(), fd, rc.ClientAddr())
	if err := rc.Error(types.BadFileHandle, fmt.Sprintf("%d", fd)); err != nil {
		logger.Warn("%s: failed to send error response: %v", rc.Command(), err)
	}
}

// reply logs a failure to deliver a success response.
func reply(rc *handlers.ResponseChannel, err error) {
	if err != nil {
		logger.Warn("%s: failed to send response to %s: %v", rc.Command(), rc.ClientAddr(), err)
	}
}
