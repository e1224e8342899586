package fsbroker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/marmos91/fsbroker/internal/logger"
	proto "github.com/marmos91/fsbroker/internal/protocol/fsbroker"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/comm"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/handlers"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

var errResponseFrame = errors.New("client sent a response frame")

// connection is one client connection. It owns the read loop and is the
// handlers.Sender every response of the connection is written through.
type connection struct {
	server     *BrokerAdapter
	conn       net.Conn
	id         string
	clientAddr string

	// writeMu keeps response frames from interleaving on the socket.
	writeMu sync.Mutex

	// deadlineMu orders read deadline updates against the shutdown
	// interrupt, so the interrupt is never overwritten.
	deadlineMu sync.Mutex

	// inflight counts dispatch units submitted by this connection.
	inflight sync.WaitGroup
}

var _ handlers.Sender = (*connection)(nil)

func newConnection(server *BrokerAdapter, conn net.Conn) *connection {
	return &connection{
		server:     server,
		conn:       conn,
		id:         uuid.NewString(),
		clientAddr: conn.RemoteAddr().String(),
	}
}

// Serve reads frames until the client disconnects, a frame is malformed, a
// timeout fires or ctx is cancelled. Before returning it waits (bounded by
// the shutdown timeout) for the connection's dispatch units. On shutdown
// the socket stays open while they drain so their responses are delivered.
func (c *connection) Serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in connection handler from %s: %v", c.clientAddr, r)
		}
		if ctx.Err() != nil {
			c.drain()
			_ = c.conn.Close()
			return
		}
		_ = c.conn.Close()
		c.drain()
	}()

	// Cancellation interrupts a read blocked between frames.
	stop := context.AfterFunc(ctx, func() {
		c.deadlineMu.Lock()
		defer c.deadlineMu.Unlock()
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		if err := c.handleFrame(ctx); err != nil {
			c.logExit(ctx, err)
			return
		}
	}
}

func (c *connection) logExit(ctx context.Context, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("Connection %s from %s closed by client", c.id, c.clientAddr)
	case ctx.Err() != nil:
		logger.Debug("Connection %s from %s closed due to server shutdown", c.id, c.clientAddr)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("Connection %s from %s timed out: %v", c.id, c.clientAddr, err)
	case errors.Is(err, comm.ErrBadMagic), errors.Is(err, comm.ErrBadVersion),
		errors.Is(err, comm.ErrPayloadTooLarge), errors.Is(err, errResponseFrame):
		logger.Warn("Closing connection %s from %s: %v", c.id, c.clientAddr, err)
	default:
		logger.Debug("Error reading from %s: %v", c.clientAddr, err)
	}
}

func (c *connection) setReadDeadline(ctx context.Context, d time.Duration) error {
	c.deadlineMu.Lock()
	defer c.deadlineMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	var deadline time.Time
	if d > 0 {
		deadline = time.Now().Add(d)
	}
	return c.conn.SetReadDeadline(deadline)
}

// handleFrame reads one request frame and hands it to the worker pool.
func (c *connection) handleFrame(ctx context.Context) error {
	cfg := &c.server.config

	if err := c.setReadDeadline(ctx, cfg.IdleTimeout); err != nil {
		return err
	}
	header, err := comm.ReadHeader(c.conn, cfg.MaxPayloadSize)
	if err != nil {
		return err
	}
	if header.IsResponse() {
		return errResponseFrame
	}

	if err := c.setReadDeadline(ctx, cfg.ReadTimeout); err != nil {
		return err
	}
	payload := proto.GetBuffer(header.PayloadLen)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		proto.PutBuffer(payload)
		return fmt.Errorf("read %s payload: %w", header.Cmd(), err)
	}
	c.server.metrics.RecordBytesTransferred("in", uint64(comm.HeaderSize)+uint64(header.PayloadLen))

	logger.Debug("Frame from %s: id=%d cmd=%s len=%d", c.clientAddr, header.ID, header.Cmd(), header.PayloadLen)

	c.submit(&handlers.Event{
		Header:     header,
		Payload:    payload,
		ConnID:     c.id,
		ClientAddr: c.clientAddr,
		Received:   time.Now(),
	})
	return nil
}

// submit runs the event's dispatch unit on the worker pool, or answers it
// immediately when the request is not admitted. It never blocks.
func (c *connection) submit(ev *handlers.Event) {
	s := c.server
	rc := handlers.NewResponseChannel(ev, c, s.onComplete)
	name := operationName(ev.Command())

	if reason, code, msg := s.admit(c.id, ev); reason != "" {
		proto.PutBuffer(ev.Payload)
		c.reject(rc, name, reason, code, msg)
		return
	}

	c.inflight.Add(1)
	s.metrics.RecordRequestStart(name)
	err := s.pool.Submit(func() {
		defer c.inflight.Done()
		defer s.metrics.RecordRequestEnd(name)
		defer proto.PutBuffer(ev.Payload)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic in %s dispatch unit from %s: %v", name, c.clientAddr, r)
				if !rc.Completed() {
					_ = rc.Error(types.IOError, "internal broker error")
				}
			}
		}()

		proto.Dispatch(s.requestCtx, ev, rc, s.broker)
	})
	if err == nil {
		return
	}

	c.inflight.Done()
	s.metrics.RecordRequestEnd(name)
	proto.PutBuffer(ev.Payload)

	if errors.Is(err, ants.ErrPoolOverload) {
		c.reject(rc, name, "pool_full", types.ServerBusy, "worker pool saturated")
		return
	}
	c.reject(rc, name, "shutting_down", types.ServerShutdown, "broker is shutting down")
}

func (c *connection) reject(rc *handlers.ResponseChannel, name, reason string, code types.Code, msg string) {
	logger.Debug("%s from %s rejected: %s", name, c.clientAddr, reason)
	c.server.metrics.RecordRejected(name, reason)
	if err := rc.Error(code, msg); err != nil {
		logger.Debug("Problem sending (%s) rejection back to client - %v", name, err)
	}
}

// Send writes one response frame. Safe for concurrent use.
func (c *connection) Send(header comm.Header, payload []byte) error {
	frame, err := comm.EncodeFrame(header, payload)
	if err != nil {
		return fmt.Errorf("encode response frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if wt := c.server.config.WriteTimeout; wt > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(wt)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("write response: %w", err)
	}

	c.server.metrics.RecordBytesTransferred("out", uint64(len(frame)))
	logger.Debug("Sent %s response id=%d to %s (%d bytes)", header.Cmd(), header.ID, c.clientAddr, len(frame))
	return nil
}

// drain waits for this connection's dispatch units, at most the shutdown
// timeout, so their broker side effects (such as new descriptors) land
// before the connection is released.
func (c *connection) drain() {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(c.server.config.ShutdownTimeout):
		logger.Warn("Connection %s from %s: dispatch units still running after %v",
			c.id, c.clientAddr, c.server.config.ShutdownTimeout)
	}
}

// admit decides whether ev may reach the broker. A non-empty reason means
// the request is answered with code and msg instead.
func (s *BrokerAdapter) admit(connID string, ev *handlers.Event) (reason string, code types.Code, msg string) {
	if s.config.ReadOnly {
		if op, ok := proto.Lookup(ev.Command()); ok && op.Mutating {
			return "read_only", types.PermissionDenied, "broker is read-only"
		}
	}
	if s.limiter != nil && !s.limiter.Allow(connID) {
		return "rate_limited", types.ServerBusy, "rate limit exceeded"
	}
	return "", types.OK, ""
}

// onComplete feeds every completed request into the broker metrics.
func (s *BrokerAdapter) onComplete(cmd types.Command, code types.Code, elapsed time.Duration) {
	s.metrics.RecordRequest(operationName(cmd), code.String(), elapsed)

	switch cmd {
	case types.CmdOpen, types.CmdCreate, types.CmdClose:
		if counter, ok := s.broker.(openFilesCounter); ok {
			s.metrics.SetOpenFiles(counter.OpenFiles())
		}
	}
}

func operationName(cmd types.Command) string {
	if op, ok := proto.Lookup(cmd); ok {
		return op.Name
	}
	return "UNKNOWN"
}
