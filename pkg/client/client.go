// Package client is a Go client for the fsbroker protocol.
//
// A Client owns one TCP connection and multiplexes concurrent calls over it.
// Every request carries a fresh id; a single receive loop routes response
// frames back to the waiting caller by id, so responses may arrive in any
// order.
//
//	c, err := client.Dial(ctx, "localhost:9093", client.Options{})
//	fd, err := c.Create(ctx, "/logs/a", types.OpenFlagOverwrite)
//	off, err := c.Append(ctx, fd, data, false)
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/comm"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

// ErrClosed is returned by calls on a closed client or after the connection
// has failed.
var ErrClosed = errors.New("client: connection closed")

// Options configures Dial.
type Options struct {
	// DialTimeout bounds establishing the connection. Zero means 10s.
	DialTimeout time.Duration

	// WriteTimeout bounds writing one request frame. Zero disables it.
	WriteTimeout time.Duration

	// MaxPayloadSize caps accepted response payloads. Zero selects
	// comm.DefaultMaxPayloadSize.
	MaxPayloadSize uint32
}

type result struct {
	header  comm.Header
	payload []byte
	err     error
}

// Client is safe for concurrent use.
type Client struct {
	conn net.Conn
	opts Options

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint32
	pending map[uint32]chan result
	err     error

	done chan struct{}
}

// Dial connects to the broker at addr.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	timeout := opts.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return New(conn, opts), nil
}

// New wraps an established connection. The Client takes ownership of conn.
func New(conn net.Conn, opts Options) *Client {
	if opts.MaxPayloadSize == 0 {
		opts.MaxPayloadSize = comm.DefaultMaxPayloadSize
	}
	c := &Client{
		conn:    conn,
		opts:    opts,
		pending: make(map[uint32]chan result),
		done:    make(chan struct{}),
	}
	go c.recvLoop()
	return c
}

// Close closes the connection. Calls still waiting fail with ErrClosed.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// RemoteAddr returns the broker address.
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// register reserves an id and the channel its response is delivered on.
func (c *Client) register() (uint32, chan result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return 0, nil, c.err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan result, 1)
	c.pending[id] = ch
	return id, ch, nil
}

func (c *Client) unregister(id uint32) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) write(h comm.Header, payload []byte) error {
	frame, err := comm.EncodeFrame(h, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	_, err = c.conn.Write(frame)
	return err
}

// call sends one request and waits for its response. A non-OK code is
// returned as *Error; on success the cursor is positioned after the code.
func (c *Client) call(ctx context.Context, cmd types.Command, payload []byte) (*serial.Cursor, error) {
	id, ch, err := c.register()
	if err != nil {
		return nil, err
	}

	if err := c.write(comm.NewRequestHeader(id, cmd, len(payload)), payload); err != nil {
		c.unregister(id)
		return nil, fmt.Errorf("client: send %s: %w", cmd, err)
	}

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		c.unregister(id)
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	cur := serial.NewCursor(res.payload)
	raw, err := cur.DecodeI32()
	if err != nil {
		return nil, fmt.Errorf("client: %s response: %w", cmd, err)
	}
	code := types.Code(raw)
	if code != types.OK {
		msg, _, err := cur.DecodeVStr()
		if err != nil {
			msg = code.Text()
		}
		return nil, &Error{Op: cmd, Code: code, Message: msg}
	}
	return cur, nil
}

// notify sends a request with the ignore-response flag. The broker runs it
// but never answers.
func (c *Client) notify(cmd types.Command, payload []byte) error {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return c.err
	}
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	h := comm.NewRequestHeader(id, cmd, len(payload))
	h.Flags |= comm.FlagIgnoreResponse
	if err := c.write(h, payload); err != nil {
		return fmt.Errorf("client: send %s: %w", cmd, err)
	}
	return nil
}

func (c *Client) recvLoop() {
	defer close(c.done)

	for {
		h, err := comm.ReadHeader(c.conn, c.opts.MaxPayloadSize)
		if err == nil && !h.IsResponse() {
			err = fmt.Errorf("unexpected request frame id=%d from broker", h.ID)
		}
		var payload []byte
		if err == nil {
			payload = make([]byte, h.PayloadLen)
			_, err = io.ReadFull(c.conn, payload)
		}
		if err != nil {
			c.fail(err)
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[h.ID]
		delete(c.pending, h.ID)
		c.mu.Unlock()

		if !ok {
			logger.Debug("client: dropping response id=%d cmd=%s with no waiter", h.ID, h.Cmd())
			continue
		}
		ch <- result{header: h, payload: payload}
	}
}

// fail marks the client broken and releases every waiting call.
func (c *Client) fail(cause error) {
	err := ErrClosed
	if !errors.Is(cause, net.ErrClosed) && !errors.Is(cause, io.EOF) {
		err = fmt.Errorf("%w: %v", ErrClosed, cause)
	}

	c.mu.Lock()
	c.err = err
	pending := c.pending
	c.pending = make(map[uint32]chan result)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- result{err: err}
	}
	_ = c.conn.Close()
}
