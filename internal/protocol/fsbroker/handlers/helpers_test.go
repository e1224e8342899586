package handlers

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/comm"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

type sentFrame struct {
	header  comm.Header
	payload []byte
}

type recordingSender struct {
	mu     sync.Mutex
	frames []sentFrame
	err    error
}

func (s *recordingSender) Send(h comm.Header, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, sentFrame{header: h, payload: append([]byte(nil), payload...)})
	return nil
}

func (s *recordingSender) sent() []sentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentFrame(nil), s.frames...)
}

type brokerCall struct {
	op   string
	args []any
}

// recordingBroker records every call and answers OK.
type recordingBroker struct {
	mu    sync.Mutex
	calls []brokerCall
}

func (b *recordingBroker) record(rc *ResponseChannel, op string, args ...any) {
	b.mu.Lock()
	b.calls = append(b.calls, brokerCall{op: op, args: args})
	b.mu.Unlock()
	_ = rc.OK()
}

func (b *recordingBroker) Calls() []brokerCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]brokerCall(nil), b.calls...)
}

func (b *recordingBroker) Open(_ context.Context, rc *ResponseChannel, name string, flags, bufferSize uint32) {
	b.record(rc, "Open", name, flags, bufferSize)
}

func (b *recordingBroker) Create(_ context.Context, rc *ResponseChannel, name string, flags, bufferSize uint32, replication uint16, blockSize uint64) {
	b.record(rc, "Create", name, flags, bufferSize, replication, blockSize)
}

func (b *recordingBroker) Close(_ context.Context, rc *ResponseChannel, fd uint32) {
	b.record(rc, "Close", fd)
}

func (b *recordingBroker) Read(_ context.Context, rc *ResponseChannel, fd, amount uint32) {
	b.record(rc, "Read", fd, amount)
}

func (b *recordingBroker) Append(_ context.Context, rc *ResponseChannel, fd uint32, data []byte, flush bool) {
	b.record(rc, "Append", fd, data, flush)
}

func (b *recordingBroker) Seek(_ context.Context, rc *ResponseChannel, fd uint32, offset uint64) {
	b.record(rc, "Seek", fd, offset)
}

func (b *recordingBroker) Remove(_ context.Context, rc *ResponseChannel, name string) {
	b.record(rc, "Remove", name)
}

func (b *recordingBroker) Length(_ context.Context, rc *ResponseChannel, name string, accurate bool) {
	b.record(rc, "Length", name, accurate)
}

func (b *recordingBroker) Pread(_ context.Context, rc *ResponseChannel, fd uint32, offset uint64, amount uint32, verify bool) {
	b.record(rc, "Pread", fd, offset, amount, verify)
}

func (b *recordingBroker) Mkdirs(_ context.Context, rc *ResponseChannel, name string) {
	b.record(rc, "Mkdirs", name)
}

func (b *recordingBroker) Rmdir(_ context.Context, rc *ResponseChannel, name string) {
	b.record(rc, "Rmdir", name)
}

func (b *recordingBroker) Readdir(_ context.Context, rc *ResponseChannel, name string) {
	b.record(rc, "Readdir", name)
}

func (b *recordingBroker) Flush(_ context.Context, rc *ResponseChannel, fd uint32) {
	b.record(rc, "Flush", fd)
}

func (b *recordingBroker) Status(_ context.Context, rc *ResponseChannel) {
	b.record(rc, "Status")
}

func (b *recordingBroker) Shutdown(_ context.Context, rc *ResponseChannel, flags uint16) {
	b.record(rc, "Shutdown", flags)
}

func (b *recordingBroker) Exists(_ context.Context, rc *ResponseChannel, name string) {
	b.record(rc, "Exists", name)
}

func (b *recordingBroker) Rename(_ context.Context, rc *ResponseChannel, src, dst string) {
	b.record(rc, "Rename", src, dst)
}

func newEvent(cmd types.Command, payload []byte) *Event {
	return &Event{
		Header:     comm.NewRequestHeader(1, cmd, len(payload)),
		Payload:    payload,
		ConnID:     "conn-1",
		ClientAddr: "127.0.0.1:40000",
	}
}

// run executes handler against payload and returns what was sent and called.
// captureLog sends log output to the returned buffer until the test ends.
// Handlers run synchronously under run, so the buffer needs no locking.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })
	return &buf
}

func run(t *testing.T, handler Handler, cmd types.Command, payload []byte) (*recordingSender, *recordingBroker) {
	t.Helper()
	sender := &recordingSender{}
	broker := &recordingBroker{}
	ev := newEvent(cmd, payload)
	handler(context.Background(), ev, NewResponseChannel(ev, sender, nil), broker)
	return sender, broker
}

type decodedResponse struct {
	code    types.Code
	message string
	rest    *serial.Cursor
}

func decodeResponse(t *testing.T, payload []byte) decodedResponse {
	t.Helper()
	c := serial.NewCursor(payload)
	code, err := c.DecodeI32()
	require.NoError(t, err)

	resp := decodedResponse{code: types.Code(code), rest: c}
	if resp.code != types.OK {
		msg, ok, err := c.DecodeVStr()
		require.NoError(t, err)
		require.True(t, ok)
		resp.message = msg
	}
	return resp
}

var errSendFailed = errors.New("connection reset")
