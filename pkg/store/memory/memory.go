// Package memory implements an in-process store. Contents are lost when
// the process exits; it is intended for tests and ephemeral brokers.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/fsbroker/pkg/store"
)

type entry struct {
	isDir    bool
	data     []byte
	modTime  time.Time
	children map[string]struct{}
}

// MemoryStore keeps every file and directory in a map keyed by path,
// guarded by a single RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	closed  atomic.Bool
}

var _ store.Store = (*MemoryStore)(nil)

// New returns an empty store containing only the root directory.
func New() *MemoryStore {
	return &MemoryStore{
		entries: map[string]*entry{
			"/": newDir(),
		},
	}
}

func newDir() *entry {
	return &entry{isDir: true, modTime: time.Now(), children: make(map[string]struct{})}
}

func (s *MemoryStore) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return fmt.Errorf("memory store is closed")
	}
	return nil
}

func (s *MemoryStore) link(p string, e *entry) {
	s.entries[p] = e
	parent := s.entries[store.Parent(p)]
	parent.children[store.Base(p)] = struct{}{}
	parent.modTime = e.modTime
}

func (s *MemoryStore) unlink(p string) {
	delete(s.entries, p)
	if parent, ok := s.entries[store.Parent(p)]; ok {
		delete(parent.children, store.Base(p))
		parent.modTime = time.Now()
	}
}

func (s *MemoryStore) Mkdirs(ctx context.Context, path string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dir := range store.Ancestors(path) {
		e, ok := s.entries[dir]
		if !ok {
			s.link(dir, newDir())
			continue
		}
		if !e.isDir {
			return fmt.Errorf("mkdirs %s: %s: %w", path, dir, store.ErrNotDir)
		}
	}
	return nil
}

func (s *MemoryStore) Rmdir(ctx context.Context, path string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if path == "/" {
		return fmt.Errorf("rmdir %s: %w", path, store.ErrInvalidPath)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[path]
	if !ok {
		return nil
	}
	if !e.isDir {
		return fmt.Errorf("rmdir %s: %w", path, store.ErrNotDir)
	}

	for p := range s.entries {
		if strings.HasPrefix(p, path+"/") {
			delete(s.entries, p)
		}
	}
	s.unlink(path)
	return nil
}

func (s *MemoryStore) Readdir(ctx context.Context, path string) ([]string, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[path]
	if !ok {
		return nil, fmt.Errorf("readdir %s: %w", path, store.ErrNotFound)
	}
	if !e.isDir {
		return nil, fmt.Errorf("readdir %s: %w", path, store.ErrNotDir)
	}

	names := make([]string, 0, len(e.children))
	for name := range e.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Stat(ctx context.Context, path string) (*store.FileInfo, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[path]
	if !ok {
		return nil, fmt.Errorf("stat %s: %w", path, store.ErrNotFound)
	}
	return &store.FileInfo{
		Name:    store.Base(path),
		Size:    uint64(len(e.data)),
		IsDir:   e.isDir,
		ModTime: e.modTime,
	}, nil
}

func (s *MemoryStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := s.checkOpen(ctx); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[path]
	return ok, nil
}

func (s *MemoryStore) Remove(ctx context.Context, path string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[path]
	if !ok {
		return fmt.Errorf("remove %s: %w", path, store.ErrNotFound)
	}
	if e.isDir {
		return fmt.Errorf("remove %s: %w", path, store.ErrIsDir)
	}
	s.unlink(path)
	return nil
}

func (s *MemoryStore) Rename(ctx context.Context, src, dst string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if src == "/" || dst == "/" || (src != dst && store.IsWithin(dst, src)) {
		return fmt.Errorf("rename %s to %s: %w", src, dst, store.ErrInvalidPath)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[src]
	if !ok {
		return fmt.Errorf("rename %s: %w", src, store.ErrNotFound)
	}
	if src == dst {
		return nil
	}
	parent, ok := s.entries[store.Parent(dst)]
	if !ok || !parent.isDir {
		return fmt.Errorf("rename to %s: parent: %w", dst, store.ErrNotFound)
	}
	if existing, ok := s.entries[dst]; ok {
		if existing.isDir || e.isDir {
			return fmt.Errorf("rename to %s: %w", dst, store.ErrExists)
		}
		s.unlink(dst)
	}

	if e.isDir {
		moved := make(map[string]*entry)
		for p, child := range s.entries {
			if strings.HasPrefix(p, src+"/") {
				moved[dst+strings.TrimPrefix(p, src)] = child
				delete(s.entries, p)
			}
		}
		for p, child := range moved {
			s.entries[p] = child
		}
	}
	s.unlink(src)
	e.modTime = time.Now()
	s.link(dst, e)
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, path string, truncate bool) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[path]; ok {
		if e.isDir {
			return fmt.Errorf("create %s: %w", path, store.ErrIsDir)
		}
		if truncate {
			e.data = nil
			e.modTime = time.Now()
		}
		return nil
	}

	parent, ok := s.entries[store.Parent(path)]
	if !ok {
		return fmt.Errorf("create %s: parent: %w", path, store.ErrNotFound)
	}
	if !parent.isDir {
		return fmt.Errorf("create %s: parent: %w", path, store.ErrNotDir)
	}
	s.link(path, &entry{modTime: time.Now()})
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, path string, data []byte) (uint64, error) {
	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.file(path)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", path, err)
	}
	offset := uint64(len(e.data))
	e.data = append(e.data, data...)
	e.modTime = time.Now()
	return offset, nil
}

func (s *MemoryStore) ReadAt(ctx context.Context, path string, offset uint64, n uint32) ([]byte, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := s.file(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	size := uint64(len(e.data))
	if offset >= size {
		return []byte{}, nil
	}
	end := min(offset+uint64(n), size)
	out := make([]byte, end-offset)
	copy(out, e.data[offset:end])
	return out, nil
}

func (s *MemoryStore) Sync(ctx context.Context, path string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.file(path); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *MemoryStore) file(path string) (*entry, error) {
	e, ok := s.entries[path]
	if !ok {
		return nil, store.ErrNotFound
	}
	if e.isDir {
		return nil, store.ErrIsDir
	}
	return e, nil
}
