package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/fsbroker/pkg/store"
)

func (s *BadgerStore) Mkdirs(ctx context.Context, path string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		for _, dir := range store.Ancestors(path) {
			e, err := getEntry(txn, dir)
			if errors.Is(err, store.ErrNotFound) {
				if err := putEntry(txn, dir, newEntry(true)); err != nil {
					return err
				}
				if err := touchParent(txn, dir); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return fmt.Errorf("mkdirs %s: %w", path, err)
			}
			if !e.Dir {
				return fmt.Errorf("mkdirs %s: %s: %w", path, dir, store.ErrNotDir)
			}
		}
		return nil
	})
}

func (s *BadgerStore) Rmdir(ctx context.Context, path string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if path == "/" {
		return fmt.Errorf("rmdir %s: %w", path, store.ErrInvalidPath)
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		e, err := getEntry(txn, path)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("rmdir %s: %w", path, err)
		}
		if !e.Dir {
			return fmt.Errorf("rmdir %s: %w", path, store.ErrNotDir)
		}

		if err := deletePrefix(txn, keyEntryChildren(path)); err != nil {
			return fmt.Errorf("rmdir %s: %w", path, err)
		}
		if err := deletePrefix(txn, keyChunkDescendants(path)); err != nil {
			return fmt.Errorf("rmdir %s: %w", path, err)
		}
		if err := txn.Delete(keyEntry(path)); err != nil {
			return fmt.Errorf("rmdir %s: %w", path, err)
		}
		return touchParent(txn, path)
	})
}

func (s *BadgerStore) Readdir(ctx context.Context, path string) ([]string, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		e, err := getEntry(txn, path)
		if err != nil {
			return err
		}
		if !e.Dir {
			return store.ErrNotDir
		}

		prefix := keyEntryChildren(path)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		// Keys iterate in byte order, which is also the order of the names.
		names = make([]string, 0)
		for it.Rewind(); it.Valid(); it.Next() {
			if name, ok := childName(it.Item().Key(), prefix); ok {
				names = append(names, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", path, err)
	}
	return names, nil
}

func (s *BadgerStore) Stat(ctx context.Context, path string) (*store.FileInfo, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	var e *entry
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		e, err = getEntry(txn, path)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &store.FileInfo{
		Name:    store.Base(path),
		Size:    e.Size,
		IsDir:   e.Dir,
		ModTime: time.Unix(0, e.ModTime),
	}, nil
}

func (s *BadgerStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := s.checkOpen(ctx); err != nil {
		return false, err
	}

	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(keyEntry(path))
		switch {
		case err == nil:
			found = true
		case errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", path, err)
	}
	return found, nil
}

func (s *BadgerStore) Rename(ctx context.Context, src, dst string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if src == "/" || dst == "/" || (src != dst && store.IsWithin(dst, src)) {
		return fmt.Errorf("rename %s to %s: %w", src, dst, store.ErrInvalidPath)
	}

	return s.update(ctx, func(txn *badger.Txn) error {
		e, err := getEntry(txn, src)
		if err != nil {
			return fmt.Errorf("rename %s: %w", src, err)
		}
		if src == dst {
			return nil
		}

		parent, err := getEntry(txn, store.Parent(dst))
		if err != nil || !parent.Dir {
			return fmt.Errorf("rename to %s: parent: %w", dst, store.ErrNotFound)
		}

		existing, err := getEntry(txn, dst)
		switch {
		case err == nil:
			if existing.Dir || e.Dir {
				return fmt.Errorf("rename to %s: %w", dst, store.ErrExists)
			}
			if err := deletePrefix(txn, keyChunkPrefix(dst)); err != nil {
				return err
			}
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("rename to %s: %w", dst, err)
		}

		if e.Dir {
			if err := movePrefix(txn, keyEntryChildren(src), keyEntryChildren(dst)); err != nil {
				return fmt.Errorf("rename %s: %w", src, err)
			}
			if err := movePrefix(txn, keyChunkDescendants(src), keyChunkDescendants(dst)); err != nil {
				return fmt.Errorf("rename %s: %w", src, err)
			}
		} else if err := movePrefix(txn, keyChunkPrefix(src), keyChunkPrefix(dst)); err != nil {
			return fmt.Errorf("rename %s: %w", src, err)
		}

		if err := txn.Delete(keyEntry(src)); err != nil {
			return err
		}
		e.touch()
		if err := putEntry(txn, dst, e); err != nil {
			return err
		}
		if err := touchParent(txn, src); err != nil {
			return err
		}
		return touchParent(txn, dst)
	})
}
