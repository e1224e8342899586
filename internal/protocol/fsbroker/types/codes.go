// Package types holds the numeric constants of the broker wire protocol:
// command codes, response codes and open/create flags.
package types

import "fmt"

// Code is a response code carried in the first four bytes of every
// response payload. OK is zero; all other values are failures.
type Code uint32

// ============================================================================
// Response Codes
// ============================================================================
//
// The numeric values are part of the wire contract. Never renumber them.

const (
	OK                Code = 0
	ProtocolError     Code = 1
	RequestTruncated  Code = 2
	ResponseTruncated Code = 3
	RequestTimeout    Code = 4
	LocalIOError      Code = 5
	ServerBusy        Code = 6
	ServerShutdown    Code = 7

	CommNotConnected     Code = 0x00010001
	CommBrokenConnection Code = 0x00010002
	CommSendError        Code = 0x00010003

	BadFileHandle     Code = 0x00020001
	IOError           Code = 0x00020002
	FileNotFound      Code = 0x00020003
	BadFilename       Code = 0x00020004
	PermissionDenied  Code = 0x00020005
	InvalidArgument   Code = 0x00020006
	InvalidConfig     Code = 0x00020007
	EOF               Code = 0x00020008
	FileExists        Code = 0x00020009
	DirectoryNotEmpty Code = 0x0002000A
)

var codeNames = map[Code]string{
	OK:                   "OK",
	ProtocolError:        "PROTOCOL_ERROR",
	RequestTruncated:     "REQUEST_TRUNCATED",
	ResponseTruncated:    "RESPONSE_TRUNCATED",
	RequestTimeout:       "REQUEST_TIMEOUT",
	LocalIOError:         "LOCAL_IO_ERROR",
	ServerBusy:           "SERVER_BUSY",
	ServerShutdown:       "SERVER_SHUTTING_DOWN",
	CommNotConnected:     "COMM_NOT_CONNECTED",
	CommBrokenConnection: "COMM_BROKEN_CONNECTION",
	CommSendError:        "COMM_SEND_ERROR",
	BadFileHandle:        "FSBROKER_BAD_FILE_HANDLE",
	IOError:              "FSBROKER_IO_ERROR",
	FileNotFound:         "FSBROKER_FILE_NOT_FOUND",
	BadFilename:          "FSBROKER_BAD_FILENAME",
	PermissionDenied:     "FSBROKER_PERMISSION_DENIED",
	InvalidArgument:      "FSBROKER_INVALID_ARGUMENT",
	InvalidConfig:        "FSBROKER_INVALID_CONFIG",
	EOF:                  "FSBROKER_EOF",
	FileExists:           "FSBROKER_FILE_EXISTS",
	DirectoryNotEmpty:    "FSBROKER_DIRECTORY_NOT_EMPTY",
}

var codeText = map[Code]string{
	OK:                   "ok",
	ProtocolError:        "protocol error",
	RequestTruncated:     "request truncated",
	ResponseTruncated:    "response truncated",
	RequestTimeout:       "request timeout",
	LocalIOError:         "local i/o error",
	ServerBusy:           "server busy",
	ServerShutdown:       "server shutting down",
	CommNotConnected:     "COMM not connected",
	CommBrokenConnection: "COMM broken connection",
	CommSendError:        "COMM send error",
	BadFileHandle:        "FS BROKER bad file handle",
	IOError:              "FS BROKER i/o error",
	FileNotFound:         "FS BROKER file not found",
	BadFilename:          "FS BROKER bad filename",
	PermissionDenied:     "FS BROKER permission denied",
	InvalidArgument:      "FS BROKER invalid argument",
	InvalidConfig:        "FS BROKER invalid config value",
	EOF:                  "FS BROKER end of file",
	FileExists:           "FS BROKER file exists",
	DirectoryNotEmpty:    "FS BROKER directory not empty",
}

// String returns the symbolic name, suitable for use as a metric label.
// Unknown codes render as "UNKNOWN_<code>".
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_%d", uint32(c))
}

// Text returns a short human-readable description of the code.
func (c Code) Text() string {
	if text, ok := codeText[c]; ok {
		return text
	}
	return fmt.Sprintf("unknown error code %d", uint32(c))
}
