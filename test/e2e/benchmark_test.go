//go:build e2e

package e2e

import (
	"fmt"
	"sync/atomic"
	"testing"
)

// BenchmarkE2E runs every operation benchmark against the local backends.
func BenchmarkE2E(b *testing.B) {
	for _, cfg := range AllConfigurations() {
		b.Run(cfg.Name, func(b *testing.B) {
			b.Run("Mkdirs", func(b *testing.B) { benchmarkMkdirs(b, cfg) })
			b.Run("CreateClose", func(b *testing.B) { benchmarkCreateClose(b, cfg) })
			b.Run("Append4KB", func(b *testing.B) { benchmarkAppend(b, cfg, 4*1024) })
			b.Run("Append1MB", func(b *testing.B) { benchmarkAppend(b, cfg, 1024*1024) })
			b.Run("Pread64KB", func(b *testing.B) { benchmarkPread(b, cfg, 64*1024) })
			b.Run("ExistsParallel", func(b *testing.B) { benchmarkExistsParallel(b, cfg) })
		})
	}
}

func setupBenchmark(b *testing.B, cfg *TestConfig) *TestContext {
	b.Helper()
	tc := NewTestContext(b, cfg)
	b.Cleanup(tc.Cleanup)
	return tc
}

func benchmarkMkdirs(b *testing.B, cfg *TestConfig) {
	tc := setupBenchmark(b, cfg)
	ctx := tc.Context()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := tc.Client.Mkdirs(ctx, fmt.Sprintf("/bench/d%d/sub", i)); err != nil {
			b.Fatalf("mkdirs: %v", err)
		}
	}
}

func benchmarkCreateClose(b *testing.B, cfg *TestConfig) {
	tc := setupBenchmark(b, cfg)
	ctx := tc.Context()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fd, err := tc.Client.Create(ctx, fmt.Sprintf("/f%d", i), 0)
		if err != nil {
			b.Fatalf("create: %v", err)
		}
		if err := tc.Client.CloseFile(ctx, fd); err != nil {
			b.Fatalf("close: %v", err)
		}
	}
}

func benchmarkAppend(b *testing.B, cfg *TestConfig, size int) {
	tc := setupBenchmark(b, cfg)
	ctx := tc.Context()
	data := randomBytes(b, size)

	fd, err := tc.Client.Create(ctx, "/append", 0)
	if err != nil {
		b.Fatalf("create: %v", err)
	}

	b.SetBytes(int64(size))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tc.Client.Append(ctx, fd, data, false); err != nil {
			b.Fatalf("append: %v", err)
		}
	}
	b.StopTimer()
	_ = tc.Client.CloseFile(ctx, fd)
}

func benchmarkPread(b *testing.B, cfg *TestConfig, size int) {
	tc := setupBenchmark(b, cfg)
	ctx := tc.Context()

	const chunks = 16
	writeFile(b, tc, "/pread", randomBytes(b, size*chunks))

	fd, err := tc.Client.Open(ctx, "/pread", 0)
	if err != nil {
		b.Fatalf("open: %v", err)
	}

	b.SetBytes(int64(size))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		off := uint64((i % chunks) * size)
		if _, err := tc.Client.Pread(ctx, fd, off, uint32(size)); err != nil {
			b.Fatalf("pread: %v", err)
		}
	}
	b.StopTimer()
	_ = tc.Client.CloseFile(ctx, fd)
}

// benchmarkExistsParallel multiplexes concurrent requests over one
// connection.
func benchmarkExistsParallel(b *testing.B, cfg *TestConfig) {
	tc := setupBenchmark(b, cfg)
	ctx := tc.Context()
	writeFile(b, tc, "/present", []byte("x"))

	var failures atomic.Int64
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := tc.Client.Exists(ctx, "/present"); err != nil {
				failures.Add(1)
			}
		}
	})
	if n := failures.Load(); n > 0 {
		b.Fatalf("%d EXISTS requests failed", n)
	}
}
