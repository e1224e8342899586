package store

import (
	"context"
	"time"

	"github.com/marmos91/fsbroker/pkg/metrics"
)

// Instrument wraps s so every call is reported to m. A nil m returns s
// unchanged.
func Instrument(s Store, m metrics.StoreMetrics) Store {
	if m == nil {
		return s
	}
	return &instrumented{next: s, m: m}
}

type instrumented struct {
	next Store
	m    metrics.StoreMetrics
}

// track starts timing op; the returned func records the outcome.
func (i *instrumented) track(op string) func(err error) {
	start := time.Now()
	return func(err error) {
		i.m.ObserveOperation(op, time.Since(start), err)
	}
}

func (i *instrumented) Mkdirs(ctx context.Context, path string) error {
	done := i.track("mkdirs")
	err := i.next.Mkdirs(ctx, path)
	done(err)
	return err
}

func (i *instrumented) Rmdir(ctx context.Context, path string) error {
	done := i.track("rmdir")
	err := i.next.Rmdir(ctx, path)
	done(err)
	return err
}

func (i *instrumented) Readdir(ctx context.Context, path string) ([]string, error) {
	done := i.track("readdir")
	names, err := i.next.Readdir(ctx, path)
	done(err)
	return names, err
}

func (i *instrumented) Stat(ctx context.Context, path string) (*FileInfo, error) {
	done := i.track("stat")
	info, err := i.next.Stat(ctx, path)
	done(err)
	return info, err
}

func (i *instrumented) Exists(ctx context.Context, path string) (bool, error) {
	done := i.track("exists")
	ok, err := i.next.Exists(ctx, path)
	done(err)
	return ok, err
}

func (i *instrumented) Remove(ctx context.Context, path string) error {
	done := i.track("remove")
	err := i.next.Remove(ctx, path)
	done(err)
	return err
}

func (i *instrumented) Rename(ctx context.Context, src, dst string) error {
	done := i.track("rename")
	err := i.next.Rename(ctx, src, dst)
	done(err)
	return err
}

func (i *instrumented) Create(ctx context.Context, path string, truncate bool) error {
	done := i.track("create")
	err := i.next.Create(ctx, path, truncate)
	done(err)
	return err
}

func (i *instrumented) Append(ctx context.Context, path string, data []byte) (uint64, error) {
	done := i.track("append")
	off, err := i.next.Append(ctx, path, data)
	done(err)
	if err == nil {
		i.m.RecordBytes("append", len(data))
	}
	return off, err
}

func (i *instrumented) ReadAt(ctx context.Context, path string, offset uint64, n uint32) ([]byte, error) {
	done := i.track("read")
	data, err := i.next.ReadAt(ctx, path, offset, n)
	done(err)
	if err == nil {
		i.m.RecordBytes("read", len(data))
	}
	return data, err
}

func (i *instrumented) Sync(ctx context.Context, path string) error {
	done := i.track("sync")
	err := i.next.Sync(ctx, path)
	done(err)
	return err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
