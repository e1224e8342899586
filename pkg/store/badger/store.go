// Package badger implements a persistent store on top of BadgerDB.
//
// Entries and file contents live in separate key namespaces (see keys.go).
// Every operation runs in a single Badger transaction, so a crash never
// leaves a half-renamed tree or an entry whose size disagrees with its
// chunks.
package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/pkg/store"
)

// maxConflictRetries bounds how often a write transaction is retried after
// losing a conflict to a concurrent writer.
const maxConflictRetries = 64

// Config configures a BadgerStore.
type Config struct {
	// DBPath is the directory where Badger keeps its files.
	DBPath string

	// InMemory runs Badger without touching disk. DBPath is ignored.
	InMemory bool

	// SyncWrites makes every commit durable before it returns.
	SyncWrites bool

	// BlockCacheSizeMB is Badger's block cache size (default: 64).
	BlockCacheSizeMB int64

	// IndexCacheSizeMB is Badger's index cache size (default: 32).
	IndexCacheSizeMB int64
}

// BadgerStore stores files and directories in BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	closed atomic.Bool
}

var _ store.Store = (*BadgerStore)(nil)

// New opens (or creates) a Badger database and makes sure the root
// directory exists.
func New(ctx context.Context, cfg Config) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("badger store: db path is required")
		}
		opts = badger.DefaultOptions(cfg.DBPath)
	}

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := cfg.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}

	opts = opts.
		WithLogger(badgerLogger{}).
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None).
		WithSyncWrites(cfg.SyncWrites).
		WithBlockCacheSize(blockCacheMB << 20).
		WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	s := &BadgerStore{db: db}
	if err := s.initializeRoot(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize root: %w", err)
	}
	return s, nil
}

func (s *BadgerStore) initializeRoot() error {
	return s.update(context.Background(), func(txn *badger.Txn) error {
		_, err := getEntry(txn, "/")
		if errors.Is(err, store.ErrNotFound) {
			return putEntry(txn, "/", newEntry(true))
		}
		return err
	})
}

func (s *BadgerStore) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return fmt.Errorf("badger store is closed")
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	logger.Warn("badger store: giving up after %d conflicting attempts", maxConflictRetries)
	return err
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// ============================================================================
// Transaction helpers
// ============================================================================

func getEntry(txn *badger.Txn, p string) (*entry, error) {
	item, err := txn.Get(keyEntry(p))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var e *entry
	err = item.Value(func(val []byte) error {
		e, err = decodeEntry(val)
		return err
	})
	return e, err
}

func putEntry(txn *badger.Txn, p string, e *entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	return txn.Set(keyEntry(p), data)
}

// getFile returns the entry of p, which must be a regular file.
func getFile(txn *badger.Txn, p string) (*entry, error) {
	e, err := getEntry(txn, p)
	if err != nil {
		return nil, err
	}
	if e.Dir {
		return nil, store.ErrIsDir
	}
	return e, nil
}

// scanKeys returns copies of every key starting with prefix.
func scanKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	for _, key := range scanKeys(txn, prefix) {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// movePrefix rewrites every key starting with from so that it starts with to.
func movePrefix(txn *badger.Txn, from, to []byte) error {
	for _, key := range scanKeys(txn, from) {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		moved := append(append([]byte{}, to...), key[len(from):]...)
		if err := txn.Set(moved, val); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// touchParent updates the modification time of the directory holding p.
func touchParent(txn *badger.Txn, p string) error {
	parent := store.Parent(p)
	e, err := getEntry(txn, parent)
	if err != nil {
		return err
	}
	e.touch()
	return putEntry(txn, parent, e)
}

// badgerLogger routes Badger's own log output through the broker logger.
type badgerLogger struct{}

func badgerLine(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}

func (badgerLogger) Errorf(format string, args ...any) {
	logger.Error("badger: %s", badgerLine(format, args))
}

func (badgerLogger) Warningf(format string, args ...any) {
	logger.Warn("badger: %s", badgerLine(format, args))
}

func (badgerLogger) Infof(format string, args ...any) {
	logger.Debug("badger: %s", badgerLine(format, args))
}

func (badgerLogger) Debugf(format string, args ...any) {
	logger.Debug("badger: %s", badgerLine(format, args))
}
