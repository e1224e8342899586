// Package broker implements handlers.Broker on top of a store.Store.
//
// The broker owns the open-file table: OPEN and CREATE hand out descriptors,
// READ/APPEND/SEEK/PREAD/FLUSH/CLOSE resolve them, and every other operation
// works on names. Names are cleaned with store.CleanPath, so relative names
// resolve against the store root and ".." cannot escape it.
//
// A descriptor remembers the name it was opened with, not the file behind it.
// Once that name is renamed or removed, operations on the descriptor fail with
// FILE_NOT_FOUND, and if a new file later takes the name they act on it.
package broker

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/comm"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/handlers"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
	"github.com/marmos91/fsbroker/pkg/store"
)

// Config configures a Broker.
type Config struct {
	// Verbose logs every operation at INFO level.
	Verbose bool `mapstructure:"verbose"`
}

// dataResponseOverhead is the part of a READ/PREAD response that is not
// file data: code (i32), offset (i64) and the varuint length of the data.
const dataResponseOverhead = 4 + 8 + 5

// ShutdownFunc is called after a SHUTDOWN request has been acknowledged.
type ShutdownFunc func(immediate bool)

// Broker serves filesystem operations from a store.
type Broker struct {
	store   store.Store
	files   *fileTable
	verbose bool

	// maxRead caps the data returned by one READ/PREAD so the response
	// fits in a frame the client accepts.
	maxRead atomic.Uint32

	shuttingDown atomic.Bool
	onShutdown   atomic.Pointer[ShutdownFunc]
}

var _ handlers.Broker = (*Broker)(nil)

// New creates a broker serving st.
func New(st store.Store, cfg Config) *Broker {
	b := &Broker{
		store:   st,
		files:   newFileTable(),
		verbose: cfg.Verbose,
	}
	b.SetMaxPayloadSize(comm.DefaultMaxPayloadSize)
	return b
}

// SetMaxPayloadSize sets the frame payload limit responses must respect.
// READ and PREAD return at most n minus the response overhead bytes; zero
// selects comm.DefaultMaxPayloadSize. The adapter calls it with its own
// limit.
func (b *Broker) SetMaxPayloadSize(n uint32) {
	if n == 0 {
		n = comm.DefaultMaxPayloadSize
	}
	if n <= dataResponseOverhead {
		n = dataResponseOverhead + 1
	}
	b.maxRead.Store(n - dataResponseOverhead)
}

// clampRead limits amount to what fits in one response frame.
func (b *Broker) clampRead(amount uint32) uint32 {
	return min(amount, b.maxRead.Load())
}

// SetShutdownHook installs the function run after SHUTDOWN is acknowledged.
// It runs on its own goroutine so it may stop the server that is still
// finishing the SHUTDOWN request.
func (b *Broker) SetShutdownHook(fn ShutdownFunc) {
	b.onShutdown.Store(&fn)
}

// OpenFiles returns the number of open descriptors.
func (b *Broker) OpenFiles() int {
	return b.files.len()
}

// ReleaseConnection closes every descriptor opened through connID. The
// adapter calls it when a connection goes away.
func (b *Broker) ReleaseConnection(connID string) int {
	n := b.files.removeConn(connID)
	if n > 0 {
		logger.Debug("Released %d open files of connection %s", n, connID)
	}
	return n
}

// ShuttingDown reports whether a SHUTDOWN request has been accepted.
func (b *Broker) ShuttingDown() bool {
	return b.shuttingDown.Load()
}

func (b *Broker) logf(format string, args ...any) {
	if b.verbose {
		logger.Info(format, args...)
	}
}

// resolve cleans name, answering rc with BAD_FILENAME when it is unusable.
func resolve(rc *handlers.ResponseChannel, op, name string) (string, bool) {
	p, err := store.CleanPath(name)
	if err != nil {
		reportError(rc, op, err)
		return "", false
	}
	return p, true
}

// ============================================================================
// Descriptor operations
// ============================================================================

func (b *Broker) Open(ctx context.Context, rc *handlers.ResponseChannel, name string, flags, bufferSize uint32) {
	b.logf("open file='%s' flags=0x%x bufsz=%d", name, flags, bufferSize)

	p, ok := resolve(rc, "open", name)
	if !ok {
		return
	}
	info, err := b.store.Stat(ctx, p)
	if err != nil {
		reportError(rc, "open", err)
		return
	}
	if info.IsDir {
		reportError(rc, "open", fmt.Errorf("open %s: %w", p, store.ErrIsDir))
		return
	}

	fd := b.files.add(&openFile{
		path:       p,
		connID:     rc.ConnID(),
		clientAddr: rc.ClientAddr(),
	})
	reply(rc, rc.Opened(fd))
}

// Create opens name for appending. With types.OpenFlagOverwrite an existing
// file is truncated; otherwise new data goes after what is there.
func (b *Broker) Create(ctx context.Context, rc *handlers.ResponseChannel, name string, flags, bufferSize uint32, replication uint16, blockSize uint64) {
	overwrite := flags&types.OpenFlagOverwrite != 0
	b.logf("create file='%s' overwrite=%t bufsz=%d replication=%d blksz=%d",
		name, overwrite, bufferSize, replication, blockSize)

	p, ok := resolve(rc, "create", name)
	if !ok {
		return
	}
	if err := b.store.Create(ctx, p, overwrite); err != nil {
		reportError(rc, "create", err)
		return
	}

	fd := b.files.add(&openFile{
		path:       p,
		writable:   true,
		connID:     rc.ConnID(),
		clientAddr: rc.ClientAddr(),
	})
	reply(rc, rc.Opened(fd))
}

func (b *Broker) Close(ctx context.Context, rc *handlers.ResponseChannel, fd uint32) {
	b.logf("close fd=%d", fd)

	if !b.files.remove(fd) {
		reportBadHandle(rc, fd)
		return
	}
	reply(rc, rc.OK())
}

// Read returns up to amount bytes from the descriptor offset and advances it
// by the number of bytes returned. An empty result means end of file. An
// amount too large for one response frame is cut down, so clients read in a
// loop until they get an empty result.
func (b *Broker) Read(ctx context.Context, rc *handlers.ResponseChannel, fd, amount uint32) {
	b.logf("read fd=%d amount=%d", fd, amount)

	f, ok := b.files.get(fd)
	if !ok || f.writable {
		reportBadHandle(rc, fd)
		return
	}

	f.mu.Lock()
	offset := f.offset
	data, err := b.store.ReadAt(ctx, f.path, offset, b.clampRead(amount))
	if err == nil {
		f.offset += uint64(len(data))
	}
	f.mu.Unlock()

	if err != nil {
		reportError(rc, "read", err)
		return
	}
	reply(rc, rc.Data(offset, data))
}

func (b *Broker) Append(ctx context.Context, rc *handlers.ResponseChannel, fd uint32, data []byte, flush bool) {
	b.logf("append fd=%d amount=%d flush=%t", fd, len(data), flush)

	f, ok := b.files.get(fd)
	if !ok || !f.writable {
		reportBadHandle(rc, fd)
		return
	}

	offset, err := b.store.Append(ctx, f.path, data)
	if err != nil {
		reportError(rc, "append", err)
		return
	}
	if flush {
		if err := b.store.Sync(ctx, f.path); err != nil {
			reportError(rc, "append", err)
			return
		}
	}
	reply(rc, rc.Appended(offset, uint32(len(data))))
}

// Seek moves the read offset of a descriptor. Descriptors from CREATE always
// append, so seeking them is rejected.
func (b *Broker) Seek(ctx context.Context, rc *handlers.ResponseChannel, fd uint32, offset uint64) {
	b.logf("seek fd=%d offset=%d", fd, offset)

	f, ok := b.files.get(fd)
	if !ok {
		reportBadHandle(rc, fd)
		return
	}
	if f.writable {
		reply(rc, rc.Error(types.InvalidArgument, "cannot seek a descriptor opened for append"))
		return
	}

	f.mu.Lock()
	f.offset = offset
	f.mu.Unlock()
	reply(rc, rc.OK())
}

// Pread reads at an absolute offset without moving the descriptor offset.
// Checksum verification is not supported by any store and verify is ignored.
func (b *Broker) Pread(ctx context.Context, rc *handlers.ResponseChannel, fd uint32, offset uint64, amount uint32, verify bool) {
	b.logf("pread fd=%d offset=%d amount=%d verify=%t", fd, offset, amount, verify)

	f, ok := b.files.get(fd)
	if !ok || f.writable {
		reportBadHandle(rc, fd)
		return
	}

	data, err := b.store.ReadAt(ctx, f.path, offset, b.clampRead(amount))
	if err != nil {
		reportError(rc, "pread", err)
		return
	}
	reply(rc, rc.Data(offset, data))
}

func (b *Broker) Flush(ctx context.Context, rc *handlers.ResponseChannel, fd uint32) {
	b.logf("flush fd=%d", fd)

	f, ok := b.files.get(fd)
	if !ok {
		reportBadHandle(rc, fd)
		return
	}
	if f.writable {
		if err := b.store.Sync(ctx, f.path); err != nil {
			reportError(rc, "flush", err)
			return
		}
	}
	reply(rc, rc.OK())
}

// ============================================================================
// Name operations
// ============================================================================

func (b *Broker) Remove(ctx context.Context, rc *handlers.ResponseChannel, name string) {
	b.logf("remove file='%s'", name)

	p, ok := resolve(rc, "remove", name)
	if !ok {
		return
	}
	if err := b.store.Remove(ctx, p); err != nil {
		reportError(rc, "remove", err)
		return
	}
	reply(rc, rc.OK())
}

// Length reports the size of name. Stores always know the exact size, so
// accurate makes no difference.
func (b *Broker) Length(ctx context.Context, rc *handlers.ResponseChannel, name string, accurate bool) {
	b.logf("length file='%s' accurate=%t", name, accurate)

	p, ok := resolve(rc, "length", name)
	if !ok {
		return
	}
	info, err := b.store.Stat(ctx, p)
	if err != nil {
		reportError(rc, "length", err)
		return
	}
	reply(rc, rc.Length(info.Size))
}

func (b *Broker) Mkdirs(ctx context.Context, rc *handlers.ResponseChannel, name string) {
	b.logf("mkdirs dir='%s'", name)

	p, ok := resolve(rc, "mkdirs", name)
	if !ok {
		return
	}
	if err := b.store.Mkdirs(ctx, p); err != nil {
		reportError(rc, "mkdirs", err)
		return
	}
	reply(rc, rc.OK())
}

// Rmdir removes a directory and everything below it. Removing a missing
// directory succeeds.
func (b *Broker) Rmdir(ctx context.Context, rc *handlers.ResponseChannel, name string) {
	b.logf("rmdir dir='%s'", name)

	p, ok := resolve(rc, "rmdir", name)
	if !ok {
		return
	}
	if err := b.store.Rmdir(ctx, p); err != nil {
		reportError(rc, "rmdir", err)
		return
	}
	reply(rc, rc.OK())
}

// Readdir lists name, leaving out entries whose name starts with a dot.
func (b *Broker) Readdir(ctx context.Context, rc *handlers.ResponseChannel, name string) {
	b.logf("readdir dir='%s'", name)

	p, ok := resolve(rc, "readdir", name)
	if !ok {
		return
	}
	names, err := b.store.Readdir(ctx, p)
	if err != nil {
		reportError(rc, "readdir", err)
		return
	}

	listing := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" && !strings.HasPrefix(n, ".") {
			listing = append(listing, n)
		}
	}
	logger.Debug("readdir dir='%s': sending back %d listings", p, len(listing))
	reply(rc, rc.Listing(listing))
}

func (b *Broker) Exists(ctx context.Context, rc *handlers.ResponseChannel, name string) {
	b.logf("exists file='%s'", name)

	p, ok := resolve(rc, "exists", name)
	if !ok {
		return
	}
	exists, err := b.store.Exists(ctx, p)
	if err != nil {
		reportError(rc, "exists", err)
		return
	}
	reply(rc, rc.Exists(exists))
}

func (b *Broker) Rename(ctx context.Context, rc *handlers.ResponseChannel, src, dst string) {
	b.logf("rename %s -> %s", src, dst)

	srcPath, ok := resolve(rc, "rename", src)
	if !ok {
		return
	}
	dstPath, ok := resolve(rc, "rename", dst)
	if !ok {
		return
	}
	if err := b.store.Rename(ctx, srcPath, dstPath); err != nil {
		reportError(rc, "rename", err)
		return
	}
	reply(rc, rc.OK())
}

// ============================================================================
// Broker control
// ============================================================================

func (b *Broker) Status(ctx context.Context, rc *handlers.ResponseChannel) {
	if b.shuttingDown.Load() {
		reply(rc, rc.Status(types.ServerShutdown, types.ServerShutdown.Text()))
		return
	}
	reply(rc, rc.Status(types.OK, types.OK.Text()))
}

// Shutdown drops every open descriptor, acknowledges the request and then
// runs the shutdown hook.
func (b *Broker) Shutdown(ctx context.Context, rc *handlers.ResponseChannel, flags uint16) {
	immediate := flags&types.ShutdownFlagImmediate != 0
	b.shuttingDown.Store(true)

	n := b.files.removeAll()
	logger.Info("Shutdown requested by %s (immediate=%t), closed %d open files", rc.ClientAddr(), immediate, n)

	reply(rc, rc.OK())

	if hook := b.onShutdown.Load(); hook != nil && *hook != nil {
		go (*hook)(immediate)
	}
}
