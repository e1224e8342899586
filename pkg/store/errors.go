package store

import "errors"

// ============================================================================
// Standard Store Errors
// ============================================================================

// Implementations wrap these with context:
//
//	return fmt.Errorf("readdir %s: %w", path, store.ErrNotFound)
//
// The broker maps them to response codes with errors.Is.

var (
	// ErrNotFound indicates the path, or a parent it requires, does not exist.
	ErrNotFound = errors.New("no such file or directory")

	// ErrExists indicates the destination of an operation already exists.
	ErrExists = errors.New("file exists")

	// ErrNotDir indicates a directory was required but a file was found.
	ErrNotDir = errors.New("not a directory")

	// ErrIsDir indicates a file was required but a directory was found.
	ErrIsDir = errors.New("is a directory")

	// ErrNotEmpty indicates a directory still has children.
	ErrNotEmpty = errors.New("directory not empty")

	// ErrInvalidPath indicates a path that cannot be used for the operation.
	ErrInvalidPath = errors.New("invalid path")

	// ErrPermission indicates the backend refused access.
	ErrPermission = errors.New("permission denied")
)
