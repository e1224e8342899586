package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/pkg/adapter"
	"github.com/marmos91/fsbroker/pkg/broker"
	"github.com/marmos91/fsbroker/pkg/discovery"
	"github.com/marmos91/fsbroker/pkg/metrics"
	"github.com/marmos91/fsbroker/pkg/store"
)

// Registrar publishes the running broker, typically *discovery.Registry.
type Registrar interface {
	Register(ctx context.Context, inst discovery.Instance) error
	Close(ctx context.Context) error
}

// addrReporter is implemented by adapters that can report their bound
// address once listening.
type addrReporter interface {
	Addr(ctx context.Context) (net.Addr, error)
}

// Options configures a BrokerServer.
type Options struct {
	// StopTimeout bounds stopping every adapter. Zero means 30s.
	StopTimeout time.Duration

	// AdvertiseAddr overrides the address registered in discovery.
	AdvertiseAddr string

	// Version is published with the discovery entry.
	Version string
}

// BrokerServer runs the protocol adapters of one broker together with its
// optional metrics endpoint and discovery registration.
//
// Lifecycle:
//  1. Creation: New() with the store and broker the adapters dispatch to
//  2. Registration: AddAdapter(), SetMetricsServer(), SetRegistrar()
//  3. Startup: Serve() starts everything and blocks
//  4. Shutdown: context cancellation or a SHUTDOWN request stops the
//     adapters, deregisters and closes the store
//
// Thread safety:
// AddAdapter() may be called concurrently before Serve(). Serve() may only
// be called once.
type BrokerServer struct {
	store  store.Store
	broker *broker.Broker
	opts   Options

	adapters  []adapter.Adapter
	metrics   *metrics.Server
	registrar Registrar

	// mu protects adapters, metrics and registrar
	mu sync.RWMutex

	served atomic.Bool
}

// New creates a BrokerServer. The server takes ownership of st and closes
// it when Serve returns.
//
// Panics if st or brk is nil (indicates programmer error).
func New(st store.Store, brk *broker.Broker, opts Options) *BrokerServer {
	if st == nil {
		panic("store cannot be nil")
	}
	if brk == nil {
		panic("broker cannot be nil")
	}
	if opts.StopTimeout == 0 {
		opts.StopTimeout = 30 * time.Second
	}

	return &BrokerServer{
		store:    st,
		broker:   brk,
		opts:     opts,
		adapters: make([]adapter.Adapter, 0, 1),
	}
}

// AddAdapter registers a protocol adapter.
//
// Duplicate protocols or ports are rejected. Port 0 (OS-chosen) never
// conflicts.
//
// Panics if adapter is nil or Serve() has already been called.
func (s *BrokerServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}
	if s.served.Load() {
		panic("cannot add adapter after Serve() has been called")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	s.adapters = append(s.adapters, a)
	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// SetMetricsServer runs m alongside the adapters.
func (s *BrokerServer) SetMetricsServer(m *metrics.Server) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
}

// SetRegistrar publishes the broker through r once the first adapter is
// listening.
func (s *BrokerServer) SetRegistrar(r Registrar) {
	s.mu.Lock()
	s.registrar = r
	s.mu.Unlock()
}

// Adapters returns a snapshot of the registered adapters.
func (s *BrokerServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}

// Serve starts all components and blocks until ctx is cancelled, a client
// sends SHUTDOWN, or an adapter fails.
//
// Returns:
//   - nil after a SHUTDOWN request
//   - ctx.Err() after context cancellation
//   - the adapter error if an adapter failed
func (s *BrokerServer) Serve(ctx context.Context) error {
	if !s.served.CompareAndSwap(false, true) {
		return errors.New("server: Serve called more than once")
	}
	defer s.closeStore()

	s.mu.RLock()
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	metricsServer := s.metrics
	registrar := s.registrar
	s.mu.RUnlock()

	if len(adapters) == 0 {
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var shutdownRequested atomic.Bool
	s.broker.SetShutdownHook(func(immediate bool) {
		logger.Info("Stopping broker on client request (immediate=%t)", immediate)
		shutdownRequested.Store(true)
		cancel()
	})
	defer s.broker.SetShutdownHook(nil)

	logger.Info("Starting broker with %d adapter(s)", len(adapters))

	var wg sync.WaitGroup

	if metricsServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsServer.Start(runCtx); err != nil {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
	}

	errChan := make(chan adapterError, len(adapters))
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			err := a.Serve(runCtx)
			switch {
			case err != nil && runCtx.Err() == nil:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			case err != nil:
				logger.Warn("%s adapter stopped with error: %v", protocol, err)
			default:
				logger.Info("%s adapter stopped", protocol)
			}
		}(adp)
	}

	if registrar != nil {
		s.register(runCtx, registrar, adapters[0])
	}

	var serveErr error
	select {
	case <-runCtx.Done():
		if shutdownRequested.Load() {
			logger.Info("Shutdown requested by client")
		} else {
			logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
			serveErr = ctx.Err()
		}
	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		serveErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	// Stop advertising before the listeners go away.
	if registrar != nil {
		s.deregister(registrar)
	}

	cancel()
	s.stopAllAdapters(adapters)

	logger.Debug("Waiting for all components to complete shutdown")
	wg.Wait()

	logger.Info("Broker stopped")
	return serveErr
}

type adapterError struct {
	protocol string
	err      error
}

// register publishes the broker once a has bound its listener.
func (s *BrokerServer) register(ctx context.Context, r Registrar, a adapter.Adapter) {
	addr := s.opts.AdvertiseAddr
	if addr == "" {
		var err error
		if addr, err = advertiseAddr(ctx, a); err != nil {
			logger.Error("Discovery registration skipped: %v", err)
			return
		}
	}

	inst := discovery.Instance{
		Addr:    addr,
		Version: s.opts.Version,
		Started: time.Now().UTC(),
	}
	if err := r.Register(ctx, inst); err != nil {
		logger.Error("Discovery registration failed: %v", err)
	}
}

// advertiseAddr derives a dialable address from the adapter's listener. A
// wildcard bind is advertised with the host name.
func advertiseAddr(ctx context.Context, a adapter.Adapter) (string, error) {
	ar, ok := a.(addrReporter)
	if !ok {
		return "", fmt.Errorf("%s adapter does not report its address; set discovery.advertise_addr", a.Protocol())
	}

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	bound, err := ar.Addr(waitCtx)
	if err != nil {
		return "", fmt.Errorf("wait for %s listener: %w", a.Protocol(), err)
	}

	host, port, err := net.SplitHostPort(bound.String())
	if err != nil {
		return "", err
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		if host, err = os.Hostname(); err != nil {
			return "", fmt.Errorf("resolve host name: %w", err)
		}
	}
	return net.JoinHostPort(host, port), nil
}

func (s *BrokerServer) deregister(r Registrar) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		logger.Warn("Discovery deregistration failed: %v", err)
	}
}

// stopAllAdapters stops adapters in reverse registration order, bounded by
// the stop timeout.
func (s *BrokerServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())
		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		}
	}
}

func (s *BrokerServer) closeStore() {
	if err := s.store.Close(); err != nil {
		logger.Error("Error closing store: %v", err)
	}
}
