//go:build e2e

package e2e

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/pkg/adapter/fsbroker"
	"github.com/marmos91/fsbroker/pkg/broker"
	"github.com/marmos91/fsbroker/pkg/client"
	"github.com/marmos91/fsbroker/pkg/metrics"
	"github.com/marmos91/fsbroker/pkg/server"
	"github.com/marmos91/fsbroker/pkg/store"
)

// TestContext provides a complete testing environment with:
// - Running broker server on a free port
// - Connected protocol client
// - Cleanup mechanisms
type TestContext struct {
	T      testing.TB
	Config *TestConfig
	Server *server.BrokerServer
	Broker *broker.Broker
	Store  store.Store
	Client *client.Client
	Addr   string
	Port   int

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	serveErr error
	tempDirs []string
}

// NewTestContext starts a broker with the specified configuration and
// connects a client to it.
func NewTestContext(t testing.TB, config *TestConfig) *TestContext {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	tc := &TestContext{
		T:      t,
		Config: config,
		ctx:    ctx,
		cancel: cancel,
		Port:   findFreePort(t),
	}

	tc.setupStore()
	tc.startServer()
	tc.Client = tc.Dial()

	return tc
}

func (tc *TestContext) setupStore() {
	tc.T.Helper()

	st, err := tc.Config.CreateStore(tc.ctx, tc)
	if err != nil {
		tc.T.Fatalf("Failed to create store: %v", err)
	}
	tc.Store = store.Instrument(st, metrics.NewNoopStoreMetrics())
}

func (tc *TestContext) startServer() {
	tc.T.Helper()

	// Functional tests, keep the output clean.
	logger.SetLevel("ERROR")

	tc.Broker = broker.New(tc.Store, broker.Config{})

	adp, err := fsbroker.New(fsbroker.Config{
		Host:            "127.0.0.1",
		Port:            tc.Port,
		ReadOnly:        tc.Config.ReadOnly,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     5 * time.Minute,
		ShutdownTimeout: 5 * time.Second,
	}, tc.Broker, nil)
	if err != nil {
		tc.T.Fatalf("Failed to create adapter: %v", err)
	}

	tc.Server = server.New(tc.Store, tc.Broker, server.Options{StopTimeout: 10 * time.Second})
	if err := tc.Server.AddAdapter(adp); err != nil {
		tc.T.Fatalf("Failed to add adapter: %v", err)
	}

	tc.wg.Add(1)
	go func() {
		defer tc.wg.Done()
		err := tc.Server.Serve(tc.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			tc.serveErr = err
		}
	}()

	addrCtx, cancel := context.WithTimeout(tc.ctx, 10*time.Second)
	defer cancel()
	addr, err := adp.Addr(addrCtx)
	if err != nil {
		tc.T.Fatalf("Timeout waiting for server to start: %v", err)
	}
	tc.Addr = addr.String()
}

// Dial opens an additional client connection, closed by Cleanup.
func (tc *TestContext) Dial() *client.Client {
	tc.T.Helper()

	ctx, cancel := context.WithTimeout(tc.ctx, 5*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, tc.Addr, client.Options{})
	if err != nil {
		tc.T.Fatalf("Failed to connect to %s: %v", tc.Addr, err)
	}
	tc.T.Cleanup(func() { _ = c.Close() })
	return c
}

// Context returns a context bounded by the lifetime of the test.
func (tc *TestContext) Context() context.Context {
	ctx, cancel := context.WithTimeout(tc.ctx, 30*time.Second)
	tc.T.Cleanup(cancel)
	return ctx
}

// Wait blocks until Serve has returned and reports its error.
func (tc *TestContext) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		tc.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return tc.serveErr
	case <-time.After(timeout):
		return errors.New("server did not stop")
	}
}

// Cleanup stops the server (which closes the store) and removes temporary
// files.
func (tc *TestContext) Cleanup() {
	tc.T.Helper()

	if tc.Client != nil {
		_ = tc.Client.Close()
	}

	if tc.cancel != nil {
		tc.cancel()
	}

	if err := tc.Wait(30 * time.Second); err != nil {
		tc.T.Errorf("Server error: %v", err)
	}

	for _, dir := range tc.tempDirs {
		_ = os.RemoveAll(dir)
	}
}

// CreateTempDir creates a temporary directory and registers it for cleanup
func (tc *TestContext) CreateTempDir(prefix string) string {
	tc.T.Helper()

	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		tc.T.Fatalf("Failed to create temp directory: %v", err)
	}
	tc.tempDirs = append(tc.tempDirs, dir)
	return dir
}

// GetPort returns the server port
func (tc *TestContext) GetPort() int {
	return tc.Port
}

// findFreePort finds an available TCP port
func findFreePort(t testing.TB) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	defer func() { _ = listener.Close() }()

	return listener.Addr().(*net.TCPAddr).Port
}
