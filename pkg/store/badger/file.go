package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/fsbroker/pkg/store"
)

func (s *BadgerStore) Remove(ctx context.Context, path string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		if _, err := getFile(txn, path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		if err := deletePrefix(txn, keyChunkPrefix(path)); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		if err := txn.Delete(keyEntry(path)); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		return touchParent(txn, path)
	})
}

func (s *BadgerStore) Create(ctx context.Context, path string, truncate bool) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		e, err := getEntry(txn, path)
		if err == nil {
			if e.Dir {
				return fmt.Errorf("create %s: %w", path, store.ErrIsDir)
			}
			if !truncate {
				return nil
			}
			if err := deletePrefix(txn, keyChunkPrefix(path)); err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			e.Size = 0
			e.touch()
			return putEntry(txn, path, e)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("create %s: %w", path, err)
		}

		parent, err := getEntry(txn, store.Parent(path))
		if err != nil {
			return fmt.Errorf("create %s: parent: %w", path, err)
		}
		if !parent.Dir {
			return fmt.Errorf("create %s: parent: %w", path, store.ErrNotDir)
		}
		if err := putEntry(txn, path, newEntry(false)); err != nil {
			return err
		}
		return touchParent(txn, path)
	})
}

// Append stores data as a new chunk at the current end of the file. Two
// concurrent Appends to the same file both rewrite its entry, so one of them
// loses the commit and is retried against the new size.
func (s *BadgerStore) Append(ctx context.Context, path string, data []byte) (uint64, error) {
	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}

	var offset uint64
	err := s.update(ctx, func(txn *badger.Txn) error {
		e, err := getFile(txn, path)
		if err != nil {
			return err
		}
		offset = e.Size
		if len(data) > 0 {
			chunk := append([]byte{}, data...)
			if err := txn.Set(keyChunk(path, offset), chunk); err != nil {
				return err
			}
		}
		e.Size += uint64(len(data))
		e.touch()
		return putEntry(txn, path, e)
	})
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", path, err)
	}
	return offset, nil
}

func (s *BadgerStore) ReadAt(ctx context.Context, path string, offset uint64, n uint32) ([]byte, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	out := []byte{}
	err := s.db.View(func(txn *badger.Txn) error {
		e, err := getFile(txn, path)
		if err != nil {
			return err
		}
		if offset >= e.Size || n == 0 {
			return nil
		}
		end := min(offset+uint64(n), e.Size)
		out = make([]byte, 0, end-offset)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyChunkPrefix(path)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			start, err := chunkOffset(item.Key())
			if err != nil {
				return err
			}
			if start >= end {
				break
			}
			err = item.Value(func(val []byte) error {
				chunkEnd := start + uint64(len(val))
				if chunkEnd <= offset {
					return nil
				}
				lo := max(offset, start) - start
				hi := min(end, chunkEnd) - start
				out = append(out, val[lo:hi]...)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// Sync checks that path is a file and flushes Badger's write-ahead log.
func (s *BadgerStore) Sync(ctx context.Context, path string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := getFile(txn, path)
		return err
	})
	if err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return nil
}
