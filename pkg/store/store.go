package store

import (
	"context"
	"time"
)

// ============================================================================
// Store Interface
// ============================================================================

// Store is the storage backend behind the broker.
//
// Paths are slash-separated and rooted at "/". Callers pass paths through
// CleanPath first; implementations may assume cleaned input.
//
// The broker keeps no data of its own: open descriptors are (path, offset)
// pairs and every read or append goes straight to the Store. Implementations
// must therefore be safe for concurrent use, and Append must be atomic with
// respect to other Appends on the same path.
type Store interface {
	// Mkdirs creates path and any missing parents. Creating an existing
	// directory succeeds. Returns ErrNotDir if any component is a file.
	Mkdirs(ctx context.Context, path string) error

	// Rmdir removes path and everything below it. A missing directory is
	// not an error. Returns ErrNotDir if path is a file and ErrInvalidPath
	// for the root.
	Rmdir(ctx context.Context, path string) error

	// Readdir returns the sorted names of the direct children of path.
	Readdir(ctx context.Context, path string) ([]string, error)

	// Stat describes path. Returns ErrNotFound if it does not exist.
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// Exists reports whether path names a file or directory.
	Exists(ctx context.Context, path string) (bool, error)

	// Remove deletes a regular file. Returns ErrIsDir for directories.
	Remove(ctx context.Context, path string) error

	// Rename moves a file or directory tree. An existing destination file
	// is replaced; an existing destination directory yields ErrExists.
	Rename(ctx context.Context, src, dst string) error

	// Create makes an empty regular file, or truncates an existing one when
	// truncate is set. The parent directory must exist.
	Create(ctx context.Context, path string, truncate bool) error

	// Append adds data to the end of an existing file and returns the
	// offset the data was written at.
	Append(ctx context.Context, path string, data []byte) (uint64, error)

	// ReadAt returns up to n bytes starting at offset. Reads at or past the
	// end of the file return an empty slice and no error.
	ReadAt(ctx context.Context, path string, offset uint64, n uint32) ([]byte, error)

	// Sync makes previously appended data of path durable.
	Sync(ctx context.Context, path string) error

	// Close releases backend resources.
	Close() error
}

// FileInfo describes one entry of the store.
type FileInfo struct {
	Name    string
	Size    uint64
	IsDir   bool
	ModTime time.Time
}
