package client

import (
	"context"
	"fmt"

	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/handlers"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/serial"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

// Status is the broker health reported by STATUS.
type Status struct {
	Code types.Code
	Text string
}

func decodeErr(cmd types.Command, err error) error {
	return fmt.Errorf("client: %s response: %w", cmd, err)
}

func (c *Client) callOK(ctx context.Context, cmd types.Command, payload []byte) error {
	_, err := c.call(ctx, cmd, payload)
	return err
}

func (c *Client) callFD(ctx context.Context, cmd types.Command, payload []byte) (uint32, error) {
	cur, err := c.call(ctx, cmd, payload)
	if err != nil {
		return 0, err
	}
	fd, err := cur.DecodeI32()
	if err != nil {
		return 0, decodeErr(cmd, err)
	}
	return fd, nil
}

func (c *Client) callData(ctx context.Context, cmd types.Command, payload []byte) (uint64, []byte, error) {
	cur, err := c.call(ctx, cmd, payload)
	if err != nil {
		return 0, nil, err
	}
	offset, err := cur.DecodeI64()
	if err != nil {
		return 0, nil, decodeErr(cmd, err)
	}
	data, err := cur.DecodeBytes()
	if err != nil {
		return 0, nil, decodeErr(cmd, err)
	}
	return offset, data, nil
}

// Open opens an existing file for reading and returns its descriptor.
func (c *Client) Open(ctx context.Context, name string, flags uint32) (uint32, error) {
	req := &handlers.OpenRequest{Name: name, Flags: flags}
	return c.callFD(ctx, types.CmdOpen, req.Encode())
}

// Create creates name (or reopens it for appending) and returns its
// descriptor. types.OpenFlagOverwrite truncates an existing file.
func (c *Client) Create(ctx context.Context, name string, flags uint32) (uint32, error) {
	req := &handlers.CreateRequest{Name: name, Flags: flags}
	return c.callFD(ctx, types.CmdCreate, req.Encode())
}

// CloseFile releases a descriptor.
func (c *Client) CloseFile(ctx context.Context, fd uint32) error {
	req := &handlers.CloseRequest{FD: fd}
	return c.callOK(ctx, types.CmdClose, req.Encode())
}

// Read reads up to amount bytes at the descriptor offset and advances it.
// It returns the offset the data starts at; empty data means end of file.
func (c *Client) Read(ctx context.Context, fd, amount uint32) (uint64, []byte, error) {
	req := &handlers.ReadRequest{FD: fd, Amount: amount}
	return c.callData(ctx, types.CmdRead, req.Encode())
}

// Pread reads up to amount bytes at offset without moving the descriptor.
func (c *Client) Pread(ctx context.Context, fd uint32, offset uint64, amount uint32) ([]byte, error) {
	req := &handlers.PreadRequest{FD: fd, Offset: offset, Amount: amount}
	_, data, err := c.callData(ctx, types.CmdPread, req.Encode())
	return data, err
}

// Append writes data at the end of the file and returns the offset it was
// written at.
func (c *Client) Append(ctx context.Context, fd uint32, data []byte, flush bool) (uint64, error) {
	req := &handlers.AppendRequest{FD: fd, Flush: flush, Data: data}
	cur, err := c.call(ctx, types.CmdAppend, req.Encode())
	if err != nil {
		return 0, err
	}
	offset, err := cur.DecodeI64()
	if err != nil {
		return 0, decodeErr(types.CmdAppend, err)
	}
	return offset, nil
}

// Seek sets the read offset of a descriptor.
func (c *Client) Seek(ctx context.Context, fd uint32, offset uint64) error {
	req := &handlers.SeekRequest{FD: fd, Offset: offset}
	return c.callOK(ctx, types.CmdSeek, req.Encode())
}

// Flush makes appended data durable.
func (c *Client) Flush(ctx context.Context, fd uint32) error {
	req := &handlers.FlushRequest{FD: fd}
	return c.callOK(ctx, types.CmdFlush, req.Encode())
}

func (c *Client) Remove(ctx context.Context, name string) error {
	req := &handlers.RemoveRequest{Name: name}
	return c.callOK(ctx, types.CmdRemove, req.Encode())
}

// Length returns the size of name in bytes.
func (c *Client) Length(ctx context.Context, name string) (uint64, error) {
	req := &handlers.LengthRequest{Name: name, Accurate: true}
	cur, err := c.call(ctx, types.CmdLength, req.Encode())
	if err != nil {
		return 0, err
	}
	n, err := cur.DecodeI64()
	if err != nil {
		return 0, decodeErr(types.CmdLength, err)
	}
	return n, nil
}

func (c *Client) Mkdirs(ctx context.Context, name string) error {
	req := &handlers.MkdirsRequest{Name: name}
	return c.callOK(ctx, types.CmdMkdirs, req.Encode())
}

// Rmdir removes a directory tree.
func (c *Client) Rmdir(ctx context.Context, name string) error {
	req := &handlers.RmdirRequest{Name: name}
	return c.callOK(ctx, types.CmdRmdir, req.Encode())
}

// Readdir lists the entries of a directory.
func (c *Client) Readdir(ctx context.Context, name string) ([]string, error) {
	req := &handlers.ReaddirRequest{Name: name}
	cur, err := c.call(ctx, types.CmdReaddir, req.Encode())
	if err != nil {
		return nil, err
	}
	return decodeListing(cur)
}

func decodeListing(cur *serial.Cursor) ([]string, error) {
	n, err := cur.DecodeVInt32()
	if err != nil {
		return nil, decodeErr(types.CmdReaddir, err)
	}
	// Each entry takes at least one byte.
	if int(n) > cur.Remaining() {
		return nil, decodeErr(types.CmdReaddir, serial.ErrTruncated)
	}
	names := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		name, _, err := cur.DecodeVStr()
		if err != nil {
			return nil, decodeErr(types.CmdReaddir, err)
		}
		names = append(names, name)
	}
	return names, nil
}

func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	req := &handlers.ExistsRequest{Name: name}
	cur, err := c.call(ctx, types.CmdExists, req.Encode())
	if err != nil {
		return false, err
	}
	ok, err := cur.DecodeBool()
	if err != nil {
		return false, decodeErr(types.CmdExists, err)
	}
	return ok, nil
}

func (c *Client) Rename(ctx context.Context, from, to string) error {
	req := &handlers.RenameRequest{From: from, To: to}
	return c.callOK(ctx, types.CmdRename, req.Encode())
}

// Status asks the broker for its health.
func (c *Client) Status(ctx context.Context) (Status, error) {
	req := &handlers.StatusRequest{}
	cur, err := c.call(ctx, types.CmdStatus, req.Encode())
	if err != nil {
		return Status{}, err
	}
	code, err := cur.DecodeI32()
	if err != nil {
		return Status{}, decodeErr(types.CmdStatus, err)
	}
	text, _, err := cur.DecodeVStr()
	if err != nil {
		return Status{}, decodeErr(types.CmdStatus, err)
	}
	return Status{Code: types.Code(code), Text: text}, nil
}

// Shutdown asks the broker to stop. It returns once the broker has
// acknowledged the request.
func (c *Client) Shutdown(ctx context.Context, immediate bool) error {
	var flags uint16
	if immediate {
		flags |= types.ShutdownFlagImmediate
	}
	req := &handlers.ShutdownRequest{Flags: flags}
	return c.callOK(ctx, types.CmdShutdown, req.Encode())
}

// MkdirsAsync sends MKDIRS without waiting for, or receiving, a response.
func (c *Client) MkdirsAsync(name string) error {
	req := &handlers.MkdirsRequest{Name: name}
	return c.notify(types.CmdMkdirs, req.Encode())
}
