package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeStrings(t *testing.T) {
	assert.Equal(t, "OK", OK.String())
	assert.Equal(t, "PROTOCOL_ERROR", ProtocolError.String())
	assert.Equal(t, "FSBROKER_FILE_NOT_FOUND", FileNotFound.String())
	assert.Equal(t, "UNKNOWN_999", Code(999).String())

	assert.Equal(t, "protocol error", ProtocolError.Text())
	assert.Equal(t, "unknown error code 999", Code(999).Text())
}

func TestCodeValuesAreStable(t *testing.T) {
	assert.Equal(t, uint32(0), uint32(OK))
	assert.Equal(t, uint32(1), uint32(ProtocolError))
	assert.Equal(t, uint32(0x00020001), uint32(BadFileHandle))
}

func TestEveryCodeHasText(t *testing.T) {
	for code := range codeNames {
		_, ok := codeText[code]
		assert.True(t, ok, "missing text for %s", code)
	}
}

func TestCommandStrings(t *testing.T) {
	assert.Equal(t, "MKDIRS", CmdMkdirs.String())
	assert.Equal(t, "RENAME", CmdRename.String())
	assert.Equal(t, "COMMAND_42", Command(42).String())
}
