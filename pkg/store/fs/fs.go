// Package fs implements a store backed by a directory on the local
// filesystem. Store paths map one to one onto paths below the root.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/pkg/store"
)

// Config configures a FSStore.
type Config struct {
	// Root is the directory that holds the store contents. It is created
	// if it does not exist.
	Root string

	// MaxOpenFiles bounds the number of cached append handles.
	// Zero selects 256.
	MaxOpenFiles int
}

// FSStore stores files and directories under a root directory.
//
// Appends go through cached O_APPEND handles. appendMu serializes every
// operation that uses or invalidates a cached handle, which makes Append
// atomic with respect to other Appends.
type FSStore struct {
	root     string
	appendMu sync.Mutex
	handles  *fdCache
	closed   atomic.Bool
}

var _ store.Store = (*FSStore)(nil)

// New creates a FSStore rooted at cfg.Root.
func New(ctx context.Context, cfg Config) (*FSStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("fs store: root directory is required")
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("fs store: resolve root: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("fs store: create root %s: %w", root, err)
	}

	handles, err := newFDCache(cfg.MaxOpenFiles)
	if err != nil {
		return nil, fmt.Errorf("fs store: create handle cache: %w", err)
	}

	logger.Debug("fs store: rooted at %s", root)
	return &FSStore{root: root, handles: handles}, nil
}

// Root returns the absolute root directory.
func (s *FSStore) Root() string {
	return s.root
}

func (s *FSStore) resolve(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(p))
}

func (s *FSStore) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return fmt.Errorf("fs store is closed")
	}
	return nil
}

// ============================================================================
// Directories
// ============================================================================

func (s *FSStore) Mkdirs(ctx context.Context, path string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(s.resolve(path), 0755); err != nil {
		return wrapErr("mkdirs", path, err)
	}
	return nil
}

func (s *FSStore) Rmdir(ctx context.Context, path string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if path == "/" {
		return fmt.Errorf("rmdir %s: %w", path, store.ErrInvalidPath)
	}

	full := s.resolve(path)
	info, err := os.Lstat(full)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil
		}
		return wrapErr("rmdir", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("rmdir %s: %w", path, store.ErrNotDir)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	s.handles.drop(path)

	if err := os.RemoveAll(full); err != nil {
		return wrapErr("rmdir", path, err)
	}
	return nil
}

func (s *FSStore) Readdir(ctx context.Context, path string) ([]string, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	full := s.resolve(path)
	info, err := os.Stat(full)
	if err != nil {
		return nil, wrapErr("readdir", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("readdir %s: %w", path, store.ErrNotDir)
	}

	// os.ReadDir sorts by name.
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, wrapErr("readdir", path, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// ============================================================================
// Entries
// ============================================================================

func (s *FSStore) Stat(ctx context.Context, path string) (*store.FileInfo, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	info, err := os.Stat(s.resolve(path))
	if err != nil {
		return nil, wrapErr("stat", path, err)
	}
	fi := &store.FileInfo{
		Name:    store.Base(path),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
	}
	if !info.IsDir() {
		fi.Size = uint64(info.Size())
	}
	return fi, nil
}

func (s *FSStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := s.checkOpen(ctx); err != nil {
		return false, err
	}
	_, err := os.Lstat(s.resolve(path))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, iofs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return false, nil
	default:
		return false, wrapErr("exists", path, err)
	}
}

func (s *FSStore) Remove(ctx context.Context, path string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	full := s.resolve(path)
	info, err := os.Lstat(full)
	if err != nil {
		return wrapErr("remove", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("remove %s: %w", path, store.ErrIsDir)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	s.handles.drop(path)

	if err := os.Remove(full); err != nil {
		return wrapErr("remove", path, err)
	}
	return nil
}

func (s *FSStore) Rename(ctx context.Context, src, dst string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if src == "/" || dst == "/" || (src != dst && store.IsWithin(dst, src)) {
		return fmt.Errorf("rename %s to %s: %w", src, dst, store.ErrInvalidPath)
	}

	srcInfo, err := os.Lstat(s.resolve(src))
	if err != nil {
		return wrapErr("rename", src, err)
	}
	if src == dst {
		return nil
	}

	parent, err := os.Stat(s.resolve(store.Parent(dst)))
	if err != nil || !parent.IsDir() {
		return fmt.Errorf("rename to %s: parent: %w", dst, store.ErrNotFound)
	}
	if dstInfo, err := os.Lstat(s.resolve(dst)); err == nil {
		if dstInfo.IsDir() || srcInfo.IsDir() {
			return fmt.Errorf("rename to %s: %w", dst, store.ErrExists)
		}
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	s.handles.drop(src)
	s.handles.drop(dst)

	if err := os.Rename(s.resolve(src), s.resolve(dst)); err != nil {
		return wrapErr("rename", src, err)
	}
	return nil
}

// ============================================================================
// File contents
// ============================================================================

func (s *FSStore) Create(ctx context.Context, path string, truncate bool) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	full := s.resolve(path)
	if info, err := os.Lstat(full); err == nil && info.IsDir() {
		return fmt.Errorf("create %s: %w", path, store.ErrIsDir)
	}

	flags := os.O_WRONLY | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(full, flags, 0644)
	if err != nil {
		return wrapErr("create", path, err)
	}
	return f.Close()
}

func (s *FSStore) Append(ctx context.Context, path string, data []byte) (uint64, error) {
	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	f, err := s.appendHandle(path)
	if err != nil {
		return 0, err
	}

	info, err := f.Stat()
	if err != nil {
		s.handles.drop(path)
		return 0, wrapErr("append", path, err)
	}
	offset := uint64(info.Size())

	if _, err := f.Write(data); err != nil {
		s.handles.drop(path)
		return 0, wrapErr("append", path, err)
	}
	return offset, nil
}

// appendHandle returns the cached handle of path, opening one on a miss.
// The caller holds appendMu.
func (s *FSStore) appendHandle(path string) (*os.File, error) {
	if f, ok := s.handles.get(path); ok {
		return f, nil
	}

	full := s.resolve(path)
	info, err := os.Lstat(full)
	if err != nil {
		return nil, wrapErr("append", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("append %s: %w", path, store.ErrIsDir)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return nil, wrapErr("append", path, err)
	}
	s.handles.put(path, f)
	return f, nil
}

func (s *FSStore) ReadAt(ctx context.Context, path string, offset uint64, n uint32) ([]byte, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	f, err := os.Open(s.resolve(path))
	if err != nil {
		return nil, wrapErr("read", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, wrapErr("read", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("read %s: %w", path, store.ErrIsDir)
	}

	size := uint64(info.Size())
	if offset >= size || n == 0 {
		return []byte{}, nil
	}
	want := min(uint64(n), size-offset)

	buf := make([]byte, want)
	read, err := f.ReadAt(buf, int64(offset))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, wrapErr("read", path, err)
	}
	return buf[:read], nil
}

func (s *FSStore) Sync(ctx context.Context, path string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	if f, ok := s.handles.get(path); ok {
		if err := f.Sync(); err != nil {
			return wrapErr("sync", path, err)
		}
		return nil
	}

	f, err := os.Open(s.resolve(path))
	if err != nil {
		return wrapErr("sync", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return wrapErr("sync", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("sync %s: %w", path, store.ErrIsDir)
	}
	if err := f.Sync(); err != nil {
		return wrapErr("sync", path, err)
	}
	return nil
}

// Close closes every cached handle. The files on disk are left in place.
func (s *FSStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	s.handles.close()
	return nil
}

// ============================================================================
// Error mapping
// ============================================================================

// wrapErr attaches op and path to err, adding the matching store sentinel so
// callers can test with errors.Is.
func wrapErr(op, path string, err error) error {
	if sentinel := storeError(err); sentinel != nil {
		return fmt.Errorf("%s %s: %w: %w", op, path, sentinel, err)
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}

func storeError(err error) error {
	switch {
	case errors.Is(err, iofs.ErrNotExist):
		return store.ErrNotFound
	case errors.Is(err, iofs.ErrExist):
		return store.ErrExists
	case errors.Is(err, iofs.ErrPermission):
		return store.ErrPermission
	case errors.Is(err, syscall.ENOTDIR):
		return store.ErrNotDir
	case errors.Is(err, syscall.EISDIR):
		return store.ErrIsDir
	case errors.Is(err, syscall.ENOTEMPTY):
		return store.ErrNotEmpty
	case errors.Is(err, syscall.ENAMETOOLONG), errors.Is(err, syscall.EINVAL):
		return store.ErrInvalidPath
	}
	return nil
}
