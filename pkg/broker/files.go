package broker

import (
	"sync"
	"sync/atomic"
)

// openFile is one entry of the open-file table. A descriptor never owns an
// OS handle: it is a store path plus the read offset of the descriptor.
type openFile struct {
	fd         uint32
	path       string
	writable   bool
	connID     string
	clientAddr string

	// mu serializes READ/SEEK on the descriptor so reads observe and advance
	// offset one at a time.
	mu     sync.Mutex
	offset uint64
}

// fileTable maps descriptors to open files.
type fileTable struct {
	next  atomic.Uint32
	mu    sync.RWMutex
	files map[uint32]*openFile
}

func newFileTable() *fileTable {
	return &fileTable{files: make(map[uint32]*openFile)}
}

// add registers f under a fresh descriptor and returns it. Descriptors
// start at 1 and are never reused while the broker runs.
func (t *fileTable) add(f *openFile) uint32 {
	fd := t.next.Add(1)
	if fd == 0 {
		// Wrapped around after 2^32 opens.
		fd = t.next.Add(1)
	}
	f.fd = fd

	t.mu.Lock()
	t.files[fd] = f
	t.mu.Unlock()
	return fd
}

func (t *fileTable) get(fd uint32) (*openFile, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.files[fd]
	return f, ok
}

func (t *fileTable) remove(fd uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.files[fd]; !ok {
		return false
	}
	delete(t.files, fd)
	return true
}

// removeConn drops every descriptor opened through connID.
func (t *fileTable) removeConn(connID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for fd, f := range t.files {
		if f.connID == connID {
			delete(t.files, fd)
			n++
		}
	}
	return n
}

func (t *fileTable) removeAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.files)
	t.files = make(map[uint32]*openFile)
	return n
}

func (t *fileTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.files)
}
