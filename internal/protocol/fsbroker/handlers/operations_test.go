package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

// Each dispatch unit must hand exactly the decoded arguments to the broker.
func TestDispatchUnitsForwardArguments(t *testing.T) {
	cases := []struct {
		name    string
		cmd     types.Command
		handler Handler
		payload []byte
		op      string
		args    []any
	}{
		{
			name: "Open", cmd: types.CmdOpen, handler: HandleOpen,
			payload: (&OpenRequest{Name: "/a", Flags: types.OpenFlagVerify, BufferSize: 4096}).Encode(),
			op:      "Open", args: []any{"/a", types.OpenFlagVerify, uint32(4096)},
		},
		{
			name: "Create", cmd: types.CmdCreate, handler: HandleCreate,
			payload: (&CreateRequest{Name: "/a", Flags: types.OpenFlagOverwrite, BufferSize: 1, Replication: 3, BlockSize: 1 << 26}).Encode(),
			op:      "Create", args: []any{"/a", types.OpenFlagOverwrite, uint32(1), uint16(3), uint64(1 << 26)},
		},
		{
			name: "Close", cmd: types.CmdClose, handler: HandleClose,
			payload: (&CloseRequest{FD: 7}).Encode(),
			op:      "Close", args: []any{uint32(7)},
		},
		{
			name: "Read", cmd: types.CmdRead, handler: HandleRead,
			payload: (&ReadRequest{FD: 7, Amount: 512}).Encode(),
			op:      "Read", args: []any{uint32(7), uint32(512)},
		},
		{
			name: "Append", cmd: types.CmdAppend, handler: HandleAppend,
			payload: (&AppendRequest{FD: 7, Flush: true, Data: []byte("hello")}).Encode(),
			op:      "Append", args: []any{uint32(7), []byte("hello"), true},
		},
		{
			name: "Seek", cmd: types.CmdSeek, handler: HandleSeek,
			payload: (&SeekRequest{FD: 7, Offset: 1 << 40}).Encode(),
			op:      "Seek", args: []any{uint32(7), uint64(1 << 40)},
		},
		{
			name: "Remove", cmd: types.CmdRemove, handler: HandleRemove,
			payload: (&RemoveRequest{Name: "/a/b"}).Encode(),
			op:      "Remove", args: []any{"/a/b"},
		},
		{
			name: "Shutdown", cmd: types.CmdShutdown, handler: HandleShutdown,
			payload: (&ShutdownRequest{Flags: types.ShutdownFlagImmediate}).Encode(),
			op:      "Shutdown", args: []any{types.ShutdownFlagImmediate},
		},
		{
			name: "Length", cmd: types.CmdLength, handler: HandleLength,
			payload: (&LengthRequest{Name: "/a", Accurate: true}).Encode(),
			op:      "Length", args: []any{"/a", true},
		},
		{
			name: "Pread", cmd: types.CmdPread, handler: HandlePread,
			payload: (&PreadRequest{FD: 2, Offset: 100, Amount: 50, VerifyChecksum: true}).Encode(),
			op:      "Pread", args: []any{uint32(2), uint64(100), uint32(50), true},
		},
		{
			name: "Status", cmd: types.CmdStatus, handler: HandleStatus,
			payload: (&StatusRequest{}).Encode(),
			op:      "Status", args: nil,
		},
		{
			name: "Flush", cmd: types.CmdFlush, handler: HandleFlush,
			payload: (&FlushRequest{FD: 9}).Encode(),
			op:      "Flush", args: []any{uint32(9)},
		},
		{
			name: "Rmdir", cmd: types.CmdRmdir, handler: HandleRmdir,
			payload: (&RmdirRequest{Name: "/d"}).Encode(),
			op:      "Rmdir", args: []any{"/d"},
		},
		{
			name: "Readdir", cmd: types.CmdReaddir, handler: HandleReaddir,
			payload: (&ReaddirRequest{Name: "/d"}).Encode(),
			op:      "Readdir", args: []any{"/d"},
		},
		{
			name: "Exists", cmd: types.CmdExists, handler: HandleExists,
			payload: (&ExistsRequest{Name: "/d"}).Encode(),
			op:      "Exists", args: []any{"/d"},
		},
		{
			name: "Rename", cmd: types.CmdRename, handler: HandleRename,
			payload: (&RenameRequest{From: "/x", To: "/y"}).Encode(),
			op:      "Rename", args: []any{"/x", "/y"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, broker := run(t, tc.handler, tc.cmd, tc.payload)

			calls := broker.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tc.op, calls[0].op)
			if tc.args == nil {
				assert.Empty(t, calls[0].args)
			} else {
				assert.Equal(t, tc.args, calls[0].args)
			}
		})
	}
}

// Every dispatch unit rejects short input before touching the broker.
func TestDispatchUnitsRejectTruncatedInput(t *testing.T) {
	units := map[types.Command]Handler{
		types.CmdOpen: HandleOpen, types.CmdCreate: HandleCreate, types.CmdClose: HandleClose,
		types.CmdRead: HandleRead, types.CmdAppend: HandleAppend, types.CmdSeek: HandleSeek,
		types.CmdRemove: HandleRemove, types.CmdShutdown: HandleShutdown, types.CmdLength: HandleLength,
		types.CmdPread: HandlePread, types.CmdMkdirs: HandleMkdirs, types.CmdStatus: HandleStatus,
		types.CmdFlush: HandleFlush, types.CmdRmdir: HandleRmdir, types.CmdReaddir: HandleReaddir,
		types.CmdExists: HandleExists, types.CmdRename: HandleRename,
	}

	for cmd, handler := range units {
		t.Run(cmd.String(), func(t *testing.T) {
			sender, broker := run(t, handler, cmd, []byte{0x01})
			assert.Empty(t, broker.Calls())

			frames := sender.sent()
			require.Len(t, frames, 1)
			resp := decodeResponse(t, frames[0].payload)
			assert.Equal(t, types.ProtocolError, resp.code)
			assert.Equal(t, "Truncated message", resp.message)
		})
	}
}

func TestRenameRejectsNullDestination(t *testing.T) {
	payload := EncodeEnvelope(1, func(e *serial.Encoder) {
		e.EncodeVStr("/src")
		e.EncodeNullVStr()
	})

	sender, broker := run(t, HandleRename, types.CmdRename, payload)
	assert.Empty(t, broker.Calls())

	resp := decodeResponse(t, sender.sent()[0].payload)
	assert.Equal(t, types.ProtocolError, resp.code)
	assert.Equal(t, "Destination filename not properly encoded in request packet", resp.message)
}

func TestAppendDataDoesNotAliasPayload(t *testing.T) {
	payload := (&AppendRequest{FD: 1, Data: []byte("abc")}).Encode()
	req, err := DecodeAppendRequest(payload)
	require.NoError(t, err)

	for i := range payload {
		payload[i] = 0
	}
	assert.Equal(t, []byte("abc"), req.Data)
}
