package fsbroker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/comm"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/handlers"
	"github.com/marmos91/fsbroker/internal/ratelimiter"
	"github.com/marmos91/fsbroker/pkg/metrics"
)

// BrokerAdapter serves the broker protocol over TCP.
//
// Each accepted connection gets a read loop that decodes frames, builds an
// event per request and submits the event's dispatch unit to a worker pool
// shared by every connection. The read loop never waits for the broker:
// when the pool is saturated the request is answered with SERVER_BUSY on
// the spot. Responses are written through the connection's Sender, so they
// may leave in a different order than the requests arrived.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Read loops interrupted between frames
//  4. In-flight dispatch units drained (up to ShutdownTimeout)
//  5. Remaining connections force-closed after the timeout
type BrokerAdapter struct {
	config Config
	broker handlers.Broker

	metrics metrics.BrokerMetrics
	limiter *ratelimiter.Limiter

	// pool runs dispatch units. It is non-blocking: Submit fails with
	// ants.ErrPoolOverload instead of queueing.
	pool *ants.Pool

	listenerMu sync.Mutex
	listener   net.Listener
	ready      chan struct{}

	activeConns       sync.WaitGroup
	connCount         atomic.Int32
	connSemaphore     chan struct{}
	activeConnections sync.Map // conn id -> *connection

	shutdownOnce   sync.Once
	shutdown       chan struct{}
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// requestCtx is handed to dispatch units. It outlives shutdownCtx and
	// is only cancelled when the drain times out.
	requestCtx     context.Context
	cancelInFlight context.CancelFunc
}

// Config configures the broker adapter.
//
// Default values (applied by New if zero):
//   - Workers: 64 x GOMAXPROCS
//   - MaxPayloadSize: 16 MiB
//   - ReadTimeout: 30s
//   - WriteTimeout: 30s
//   - IdleTimeout: 5m
//   - ShutdownTimeout: 30s
//
// Port 0 lets the OS choose a free port; Port() reports it once bound.
type Config struct {
	// Host is the interface to bind. Empty binds every interface.
	Host string `mapstructure:"host"`

	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// MaxConnections limits concurrent client connections. 0 is unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// Workers is the size of the dispatch worker pool.
	Workers int `mapstructure:"workers" validate:"min=0"`

	// MaxPayloadSize caps the payload of a single request frame. READ and
	// PREAD responses are sized to fit it as well.
	MaxPayloadSize uint32 `mapstructure:"max_payload_size"`

	// ReadOnly rejects mutating operations with PERMISSION_DENIED.
	ReadOnly bool `mapstructure:"read_only"`

	// RateLimit throttles requests. Rejected requests get SERVER_BUSY.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// ReadTimeout bounds reading the payload of a frame whose header has
	// arrived.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing one response frame.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// IdleTimeout closes connections that send no frame for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout bounds the graceful drain before connections are
	// force-closed.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval logs connection and pool counters periodically.
	// 0 disables the log.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"min=0"`
}

// RateLimitConfig mirrors ratelimiter.Config for configuration files.
type RateLimitConfig struct {
	Enabled                    bool `mapstructure:"enabled"`
	RequestsPerSecond          uint `mapstructure:"requests_per_second"`
	Burst                      uint `mapstructure:"burst"`
	PerClientRequestsPerSecond uint `mapstructure:"per_client_requests_per_second"`
	PerClientBurst             uint `mapstructure:"per_client_burst"`
}

func (c *Config) applyDefaults() {
	if c.Workers == 0 {
		c.Workers = 64 * runtime.GOMAXPROCS(0)
	}
	if c.MaxPayloadSize == 0 {
		c.MaxPayloadSize = comm.DefaultMaxPayloadSize
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid Workers %d: must be >= 0", c.Workers)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 || c.ShutdownTimeout < 0 {
		return errors.New("timeouts must be >= 0")
	}
	return nil
}

// connectionReleaser is implemented by brokers that keep per-connection
// state, such as open descriptors.
type connectionReleaser interface {
	ReleaseConnection(connID string) int
}

// openFilesCounter is implemented by brokers that expose their open
// descriptor count.
type openFilesCounter interface {
	OpenFiles() int
}

// payloadLimiter is implemented by brokers that size their responses to
// the frame payload limit.
type payloadLimiter interface {
	SetMaxPayloadSize(n uint32)
}

// New creates a stopped adapter dispatching to broker. m may be nil.
func New(config Config, broker handlers.Broker, m metrics.BrokerMetrics) (*BrokerAdapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid broker adapter config: %w", err)
	}
	if broker == nil {
		return nil, errors.New("broker adapter requires a broker")
	}

	pool, err := ants.NewPool(config.Workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			logger.Error("Panic in dispatch worker: %v", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("Broker connection limit: %d", config.MaxConnections)
	}

	var limiter *ratelimiter.Limiter
	if config.RateLimit.Enabled {
		limiter = ratelimiter.New(ratelimiter.Config{
			RequestsPerSecond:          config.RateLimit.RequestsPerSecond,
			Burst:                      config.RateLimit.Burst,
			PerClientRequestsPerSecond: config.RateLimit.PerClientRequestsPerSecond,
			PerClientBurst:             config.RateLimit.PerClientBurst,
		})
	}

	if m == nil {
		m = metrics.NewNoopBrokerMetrics()
	}

	if pl, ok := broker.(payloadLimiter); ok {
		pl.SetMaxPayloadSize(config.MaxPayloadSize)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())
	requestCtx, cancelInFlight := context.WithCancel(context.Background())

	return &BrokerAdapter{
		config:         config,
		broker:         broker,
		metrics:        m,
		limiter:        limiter,
		pool:           pool,
		ready:          make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
		requestCtx:     requestCtx,
		cancelInFlight: cancelInFlight,
	}, nil
}

// Serve accepts connections until ctx is cancelled, then shuts down
// gracefully.
func (s *BrokerAdapter) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create broker listener on %s: %w", addr, err)
	}

	s.listenerMu.Lock()
	select {
	case <-s.shutdown:
		// Stopped before the listener existed.
		s.listenerMu.Unlock()
		_ = listener.Close()
		return s.gracefulShutdown()
	default:
	}
	s.listener = listener
	close(s.ready)
	s.listenerMu.Unlock()
	logger.Info("Broker listening on %s", listener.Addr())
	logger.Debug("Broker config: workers=%d max_connections=%d max_payload=%d read_only=%v read_timeout=%v write_timeout=%v idle_timeout=%v",
		s.config.Workers, s.config.MaxConnections, s.config.MaxPayloadSize, s.config.ReadOnly,
		s.config.ReadTimeout, s.config.WriteTimeout, s.config.IdleTimeout)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Broker shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(s.shutdownCtx)
	}

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting broker connection: %v", err)
				continue
			}
		}

		s.activeConns.Add(1)
		current := s.connCount.Add(1)
		s.metrics.RecordConnectionAccepted()
		s.metrics.SetActiveConnections(current)

		conn := newConnection(s, tcpConn)
		s.activeConnections.Store(conn.id, conn)
		logger.Debug("Broker connection %s accepted from %s (active: %d)", conn.id, conn.clientAddr, current)

		go func(c *connection) {
			defer func() {
				s.activeConnections.Delete(c.id)
				s.releaseConnection(c)

				s.activeConns.Done()
				current := s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				s.metrics.RecordConnectionClosed()
				s.metrics.SetActiveConnections(current)
				logger.Debug("Broker connection %s from %s closed (active: %d)", c.id, c.clientAddr, current)
			}()

			c.Serve(s.shutdownCtx)
		}(conn)
	}
}

// releaseConnection drops broker state owned by c.
func (s *BrokerAdapter) releaseConnection(c *connection) {
	if r, ok := s.broker.(connectionReleaser); ok {
		r.ReleaseConnection(c.id)
	}
	if counter, ok := s.broker.(openFilesCounter); ok {
		s.metrics.SetOpenFiles(counter.OpenFiles())
	}
	if s.limiter != nil {
		s.limiter.Forget(c.id)
	}
}

// initiateShutdown closes the listener and interrupts every read loop.
// Safe to call more than once.
func (s *BrokerAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Broker shutdown initiated")
		s.listenerMu.Lock()
		close(s.shutdown)
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing broker listener: %v", err)
			}
		}
		s.listenerMu.Unlock()

		s.cancelRequests()
	})
}

// gracefulShutdown waits for connections and dispatch units to finish,
// force-closing connections once ShutdownTimeout has passed.
func (s *BrokerAdapter) gracefulShutdown() error {
	deadline := time.Now().Add(s.config.ShutdownTimeout)
	logger.Info("Broker graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		s.connCount.Load(), s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	var shutdownErr error
	select {
	case <-done:
	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Broker shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)
		s.cancelInFlight()
		s.forceCloseConnections()
		shutdownErr = fmt.Errorf("broker shutdown timeout: %d connections force-closed", remaining)
	}

	wait := time.Until(deadline)
	if wait < 0 {
		wait = 0
	}
	if err := s.pool.ReleaseTimeout(wait); err != nil {
		logger.Warn("Broker worker pool did not drain: %d dispatch unit(s) still running", s.pool.Running())
		if shutdownErr == nil {
			shutdownErr = fmt.Errorf("broker shutdown timeout: %w", err)
		}
	}
	s.cancelInFlight()

	if shutdownErr == nil {
		logger.Info("Broker graceful shutdown complete")
	}
	return shutdownErr
}

func (s *BrokerAdapter) forceCloseConnections() {
	closed := 0
	s.activeConnections.Range(func(key, value any) bool {
		c := value.(*connection)
		if err := c.conn.Close(); err != nil {
			logger.Debug("Error force-closing connection %s: %v", c.id, err)
		} else {
			closed++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})
	if closed > 0 {
		logger.Info("Force-closed %d broker connection(s)", closed)
	}
}

// Stop initiates graceful shutdown and waits until every connection has
// finished or ctx ends.
func (s *BrokerAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warn("Broker stop: %d connection(s) still active: %v", s.connCount.Load(), ctx.Err())
		return ctx.Err()
	}
}

func (s *BrokerAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			openFiles := -1
			if counter, ok := s.broker.(openFilesCounter); ok {
				openFiles = counter.OpenFiles()
				s.metrics.SetOpenFiles(openFiles)
			}
			logger.Info("Broker metrics: active_connections=%d open_files=%d workers_running=%d workers_free=%d",
				s.connCount.Load(), openFiles, s.pool.Running(), s.pool.Free())
		}
	}
}

// Addr waits until Serve has bound the listener and returns its address.
func (s *BrokerAdapter) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.ready:
		return s.listener.Addr(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ActiveConnections returns the number of open client connections.
func (s *BrokerAdapter) ActiveConnections() int32 {
	return s.connCount.Load()
}

// Port returns the bound port once listening, else the configured one.
func (s *BrokerAdapter) Port() int {
	select {
	case <-s.ready:
		if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return tcp.Port
		}
	default:
	}
	return s.config.Port
}

// Protocol returns "FSBROKER".
func (s *BrokerAdapter) Protocol() string {
	return "FSBROKER"
}
