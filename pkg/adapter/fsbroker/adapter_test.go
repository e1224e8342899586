package fsbroker

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/comm"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/handlers"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
	"github.com/marmos91/fsbroker/pkg/broker"
	"github.com/marmos91/fsbroker/pkg/store"
	"github.com/marmos91/fsbroker/pkg/store/memory"
)

// ============================================================================
// Test Helpers
// ============================================================================

// blockingBroker parks MKDIRS of blockPath until release is closed and
// serves everything else from the embedded broker.
type blockingBroker struct {
	*broker.Broker
	blockPath string
	entered   chan struct{}
	release   chan struct{}
}

func newBlockingBroker(st store.Store, blockPath string) *blockingBroker {
	return &blockingBroker{
		Broker:    broker.New(st, broker.Config{}),
		blockPath: blockPath,
		entered:   make(chan struct{}, 16),
		release:   make(chan struct{}),
	}
}

func (b *blockingBroker) Mkdirs(ctx context.Context, rc *handlers.ResponseChannel, name string) {
	if name == b.blockPath {
		b.entered <- struct{}{}
		<-b.release
	}
	b.Broker.Mkdirs(ctx, rc, name)
}

type response struct {
	header comm.Header
	code   types.Code
	body   *serial.Cursor
}

func startAdapter(t *testing.T, cfg Config, b handlers.Broker) (*BrokerAdapter, string, context.CancelFunc, <-chan error) {
	t.Helper()

	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}

	a, err := New(cfg, b, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		done <- a.Serve(ctx)
		close(stopped)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	addr, err := a.Addr(waitCtx)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			t.Error("adapter did not stop")
		}
	})
	return a, addr.String(), cancel, done
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn net.Conn, id uint32, cmd types.Command, payload []byte) {
	t.Helper()
	sendFlags(t, conn, id, cmd, 0, payload)
}

func sendFlags(t *testing.T, conn net.Conn, id uint32, cmd types.Command, flags uint32, payload []byte) {
	t.Helper()
	h := comm.NewRequestHeader(id, cmd, len(payload))
	h.Flags = flags
	frame, err := comm.EncodeFrame(h, payload)
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)
}

func receive(t *testing.T, conn net.Conn) response {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	h, err := comm.ReadHeader(conn, 0)
	require.NoError(t, err)
	require.True(t, h.IsResponse())

	payload := make([]byte, h.PayloadLen)
	_, err = io.ReadFull(conn, payload)
	require.NoError(t, err)

	c := serial.NewCursor(payload)
	code, err := c.DecodeI32()
	require.NoError(t, err)
	return response{header: h, code: types.Code(code), body: c}
}

func (r response) message(t *testing.T) string {
	t.Helper()
	msg, ok, err := r.body.DecodeVStr()
	require.NoError(t, err)
	require.True(t, ok)
	return msg
}

func mkdirs(path string) []byte {
	return (&handlers.MkdirsRequest{Name: path}).Encode()
}

func exists(path string) []byte {
	return (&handlers.ExistsRequest{Name: path}).Encode()
}

func requireClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := conn.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
}

// ============================================================================
// Request Path
// ============================================================================

func TestMkdirsWireVector(t *testing.T) {
	st := memory.New()
	_, addr, _, _ := startAdapter(t, Config{}, broker.New(st, broker.Config{}))
	conn := dial(t, addr)

	send(t, conn, 42, types.CmdMkdirs, []byte{0x01, 0x06, 0x05, '/', 't', 'm', 'p', 0x00})

	resp := receive(t, conn)
	assert.Equal(t, uint32(42), resp.header.ID)
	assert.Equal(t, types.CmdMkdirs, resp.header.Cmd())
	assert.Equal(t, types.OK, resp.code)
	assert.Zero(t, resp.body.Remaining())

	ok, err := st.Exists(context.Background(), "/tmp")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTruncatedRequestIsProtocolError(t *testing.T) {
	_, addr, _, _ := startAdapter(t, Config{}, broker.New(memory.New(), broker.Config{}))
	conn := dial(t, addr)

	send(t, conn, 1, types.CmdMkdirs, []byte{0x01})

	resp := receive(t, conn)
	assert.Equal(t, types.ProtocolError, resp.code)
	assert.Equal(t, "Truncated message", resp.message(t))
}

func TestUnknownCommand(t *testing.T) {
	_, addr, _, _ := startAdapter(t, Config{}, broker.New(memory.New(), broker.Config{}))
	conn := dial(t, addr)

	send(t, conn, 9, types.Command(99), nil)

	resp := receive(t, conn)
	assert.Equal(t, uint32(9), resp.header.ID)
	assert.Equal(t, types.ProtocolError, resp.code)
	assert.Equal(t, "Command code 99 not implemented", resp.message(t))
}

func TestIgnoreResponseFlag(t *testing.T) {
	st := memory.New()
	_, addr, _, _ := startAdapter(t, Config{}, broker.New(st, broker.Config{}))
	conn := dial(t, addr)

	sendFlags(t, conn, 1, types.CmdMkdirs, comm.FlagIgnoreResponse, mkdirs("/quiet"))
	send(t, conn, 2, types.CmdStatus, handlers.EncodeEnvelope(1, nil))

	resp := receive(t, conn)
	assert.Equal(t, uint32(2), resp.header.ID, "no frame is written for an ignored response")

	assert.Eventually(t, func() bool {
		ok, _ := st.Exists(context.Background(), "/quiet")
		return ok
	}, 5*time.Second, 10*time.Millisecond)
}

// A request parked in the broker must not delay a later request on the same
// connection: dispatch units run independently and responses carry ids.
func TestBlockedRequestDoesNotDelayOthers(t *testing.T) {
	b := newBlockingBroker(memory.New(), "/block")
	_, addr, _, _ := startAdapter(t, Config{Workers: 4}, b)
	conn := dial(t, addr)

	send(t, conn, 1, types.CmdMkdirs, mkdirs("/block"))
	<-b.entered
	send(t, conn, 2, types.CmdExists, exists("/"))

	first := receive(t, conn)
	assert.Equal(t, uint32(2), first.header.ID)
	assert.Equal(t, types.OK, first.code)

	close(b.release)

	second := receive(t, conn)
	assert.Equal(t, uint32(1), second.header.ID)
	assert.Equal(t, types.OK, second.code)
}

func TestSaturatedPoolAnswersServerBusy(t *testing.T) {
	b := newBlockingBroker(memory.New(), "/block")
	_, addr, _, _ := startAdapter(t, Config{Workers: 1}, b)
	conn := dial(t, addr)

	send(t, conn, 1, types.CmdMkdirs, mkdirs("/block"))
	<-b.entered
	send(t, conn, 2, types.CmdExists, exists("/"))

	busy := receive(t, conn)
	assert.Equal(t, uint32(2), busy.header.ID)
	assert.Equal(t, types.ServerBusy, busy.code)

	close(b.release)
	done := receive(t, conn)
	assert.Equal(t, uint32(1), done.header.ID)
	assert.Equal(t, types.OK, done.code)
}

func TestReadOnlyRejectsMutations(t *testing.T) {
	st := memory.New()
	_, addr, _, _ := startAdapter(t, Config{ReadOnly: true}, broker.New(st, broker.Config{}))
	conn := dial(t, addr)

	send(t, conn, 1, types.CmdMkdirs, mkdirs("/nope"))
	resp := receive(t, conn)
	assert.Equal(t, types.PermissionDenied, resp.code)
	assert.Equal(t, "broker is read-only", resp.message(t))

	send(t, conn, 2, types.CmdExists, exists("/nope"))
	resp = receive(t, conn)
	require.Equal(t, types.OK, resp.code)
	found, err := resp.body.DecodeBool()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRateLimitAnswersServerBusy(t *testing.T) {
	cfg := Config{RateLimit: RateLimitConfig{
		Enabled:                    true,
		PerClientRequestsPerSecond: 1,
		PerClientBurst:             1,
	}}
	_, addr, _, _ := startAdapter(t, cfg, broker.New(memory.New(), broker.Config{}))
	conn := dial(t, addr)

	send(t, conn, 1, types.CmdExists, exists("/"))
	send(t, conn, 2, types.CmdExists, exists("/"))

	codes := make(map[uint32]types.Code)
	for i := 0; i < 2; i++ {
		r := receive(t, conn)
		codes[r.header.ID] = r.code
	}
	assert.Equal(t, types.OK, codes[1])
	assert.Equal(t, types.ServerBusy, codes[2])
}

// ============================================================================
// Connection Lifecycle
// ============================================================================

func TestBadMagicClosesConnection(t *testing.T) {
	_, addr, _, _ := startAdapter(t, Config{}, broker.New(memory.New(), broker.Config{}))
	conn := dial(t, addr)

	_, err := conn.Write(make([]byte, comm.HeaderSize))
	require.NoError(t, err)
	requireClosed(t, conn)
}

func TestOversizedPayloadClosesConnection(t *testing.T) {
	_, addr, _, _ := startAdapter(t, Config{MaxPayloadSize: 16}, broker.New(memory.New(), broker.Config{}))
	conn := dial(t, addr)

	hdr, err := comm.NewRequestHeader(1, types.CmdMkdirs, 1024).Encode()
	require.NoError(t, err)
	_, err = conn.Write(hdr)
	require.NoError(t, err)
	requireClosed(t, conn)
}

func TestLargeReadFitsPayloadLimit(t *testing.T) {
	const limit = 1024

	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.Create(ctx, "/big", false))
	_, err := st.Append(ctx, "/big", make([]byte, 4096))
	require.NoError(t, err)

	_, addr, _, _ := startAdapter(t, Config{MaxPayloadSize: limit}, broker.New(st, broker.Config{}))
	conn := dial(t, addr)

	receiveLimited := func() response {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		h, err := comm.ReadHeader(conn, limit)
		require.NoError(t, err)
		payload := make([]byte, h.PayloadLen)
		_, err = io.ReadFull(conn, payload)
		require.NoError(t, err)
		c := serial.NewCursor(payload)
		code, err := c.DecodeI32()
		require.NoError(t, err)
		return response{header: h, code: types.Code(code), body: c}
	}

	send(t, conn, 1, types.CmdOpen, (&handlers.OpenRequest{Name: "/big"}).Encode())
	resp := receiveLimited()
	require.Equal(t, types.OK, resp.code)
	fd, err := resp.body.DecodeI32()
	require.NoError(t, err)

	send(t, conn, 2, types.CmdRead, (&handlers.ReadRequest{FD: fd, Amount: 4096}).Encode())
	resp = receiveLimited()
	require.Equal(t, types.OK, resp.code)
	assert.LessOrEqual(t, int(resp.header.PayloadLen), limit)
	_, err = resp.body.DecodeI64()
	require.NoError(t, err)
	data, err := resp.body.DecodeBytes()
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Less(t, len(data), 4096)

	// The connection is still usable.
	send(t, conn, 3, types.CmdMkdirs, mkdirs("/after"))
	resp = receiveLimited()
	assert.Equal(t, types.OK, resp.code)
}

func TestResponseFrameFromClientClosesConnection(t *testing.T) {
	_, addr, _, _ := startAdapter(t, Config{}, broker.New(memory.New(), broker.Config{}))
	conn := dial(t, addr)

	sendFlags(t, conn, 1, types.CmdStatus, comm.FlagResponse, nil)
	requireClosed(t, conn)
}

func TestDisconnectReleasesDescriptors(t *testing.T) {
	st := memory.New()
	brk := broker.New(st, broker.Config{})
	a, addr, _, _ := startAdapter(t, Config{}, brk)
	conn := dial(t, addr)

	send(t, conn, 1, types.CmdCreate, (&handlers.CreateRequest{Name: "/f"}).Encode())
	resp := receive(t, conn)
	require.Equal(t, types.OK, resp.code)
	require.Equal(t, 1, brk.OpenFiles())

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return brk.OpenFiles() == 0 && a.ActiveConnections() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestIdleTimeoutClosesConnection(t *testing.T) {
	_, addr, _, _ := startAdapter(t, Config{IdleTimeout: 100 * time.Millisecond}, broker.New(memory.New(), broker.Config{}))
	conn := dial(t, addr)
	requireClosed(t, conn)
}

func TestMaxConnections(t *testing.T) {
	a, addr, _, _ := startAdapter(t, Config{MaxConnections: 1}, broker.New(memory.New(), broker.Config{}))

	first := dial(t, addr)
	send(t, first, 1, types.CmdExists, exists("/"))
	require.Equal(t, types.OK, receive(t, first).code)

	// The second connection completes the TCP handshake in the backlog but
	// is not served until the first goes away.
	second := dial(t, addr)
	send(t, second, 2, types.CmdExists, exists("/"))
	require.NoError(t, second.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err := comm.ReadHeader(second, 0)
	require.Error(t, err)
	assert.Equal(t, int32(1), a.ActiveConnections())

	require.NoError(t, first.Close())
	resp := receive(t, second)
	assert.Equal(t, uint32(2), resp.header.ID)
}

// ============================================================================
// Shutdown
// ============================================================================

func TestGracefulShutdownInterruptsIdleConnections(t *testing.T) {
	_, addr, cancel, done := startAdapter(t, Config{}, broker.New(memory.New(), broker.Config{}))
	conn := dial(t, addr)

	send(t, conn, 1, types.CmdExists, exists("/"))
	require.Equal(t, types.OK, receive(t, conn).code)

	start := time.Now()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Less(t, time.Since(start), time.Second, "idle reads are interrupted without waiting for the timeout")
	requireClosed(t, conn)
}

func TestShutdownDeliversInFlightResponses(t *testing.T) {
	b := newBlockingBroker(memory.New(), "/block")
	_, addr, cancel, done := startAdapter(t, Config{ShutdownTimeout: 5 * time.Second}, b)
	conn := dial(t, addr)

	send(t, conn, 1, types.CmdMkdirs, mkdirs("/block"))
	<-b.entered

	cancel()
	time.AfterFunc(100*time.Millisecond, func() { close(b.release) })

	resp := receive(t, conn)
	assert.Equal(t, uint32(1), resp.header.ID)
	assert.Equal(t, types.OK, resp.code)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestShutdownTimeoutForceCloses(t *testing.T) {
	b := newBlockingBroker(memory.New(), "/block")
	_, addr, cancel, done := startAdapter(t, Config{ShutdownTimeout: 200 * time.Millisecond}, b)
	conn := dial(t, addr)

	send(t, conn, 1, types.CmdMkdirs, mkdirs("/block"))
	<-b.entered

	cancel()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	close(b.release)
}

func TestStopIsIdempotent(t *testing.T) {
	a, _, _, done := startAdapter(t, Config{}, broker.New(memory.New(), broker.Config{}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))
	require.NoError(t, a.Stop(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}

// ============================================================================
// Configuration and Metrics
// ============================================================================

func TestNewValidatesConfig(t *testing.T) {
	brk := broker.New(memory.New(), broker.Config{})

	_, err := New(Config{Port: -1}, brk, nil)
	assert.Error(t, err)

	_, err = New(Config{MaxConnections: -1}, brk, nil)
	assert.Error(t, err)

	_, err = New(Config{}, nil, nil)
	assert.Error(t, err)

	a, err := New(Config{Port: 7010}, brk, nil)
	require.NoError(t, err)
	assert.Equal(t, 7010, a.Port())
	assert.Equal(t, "FSBROKER", a.Protocol())
	assert.Equal(t, 30*time.Second, a.config.ShutdownTimeout)
	assert.Positive(t, a.config.Workers)
}

type recordingMetrics struct {
	mu        sync.Mutex
	requests  map[string]int
	rejected  map[string]int
	openFiles int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{requests: make(map[string]int), rejected: make(map[string]int)}
}

func (m *recordingMetrics) RecordRequest(operation string, code string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[operation+"/"+code]++
}

func (m *recordingMetrics) RecordRejected(operation string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[operation+"/"+reason]++
}

func (m *recordingMetrics) SetOpenFiles(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openFiles = count
}

func (m *recordingMetrics) get(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[key]
}

func (m *recordingMetrics) RecordRequestStart(operation string)                   {}
func (m *recordingMetrics) RecordRequestEnd(operation string)                     {}
func (m *recordingMetrics) RecordBytesTransferred(direction string, bytes uint64) {}
func (m *recordingMetrics) SetActiveConnections(count int32)                      {}
func (m *recordingMetrics) RecordConnectionAccepted()                             {}
func (m *recordingMetrics) RecordConnectionClosed()                               {}
func (m *recordingMetrics) RecordConnectionForceClosed()                          {}

func TestCompletionFeedsMetrics(t *testing.T) {
	m := newRecordingMetrics()
	a, err := New(Config{Host: "127.0.0.1", ReadOnly: true}, broker.New(memory.New(), broker.Config{}), m)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	addr, err := a.Addr(waitCtx)
	require.NoError(t, err)
	conn := dial(t, addr.String())

	send(t, conn, 1, types.CmdExists, exists("/"))
	receive(t, conn)
	send(t, conn, 2, types.CmdMkdirs, mkdirs("/x"))
	receive(t, conn)

	assert.Eventually(t, func() bool {
		return m.get("EXISTS/OK") == 1 && m.get("MKDIRS/FSBROKER_PERMISSION_DENIED") == 1
	}, 5*time.Second, 10*time.Millisecond)

	m.mu.Lock()
	assert.Equal(t, 1, m.rejected["MKDIRS/read_only"])
	m.mu.Unlock()
}
