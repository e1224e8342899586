// Package discovery publishes running brokers in etcd.
//
// Every broker owns one key, <prefix><advertise_addr>, attached to a TTL
// lease that is renewed in the background. When the process dies the lease
// expires and the entry disappears without an explicit deregistration.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/marmos91/fsbroker/internal/logger"
)

// DefaultPrefix is the etcd key prefix brokers register under.
const DefaultPrefix = "/fsbroker/brokers/"

// Config configures etcd registration.
type Config struct {
	// Enabled turns registration on.
	Enabled bool `mapstructure:"enabled"`

	// Endpoints lists the etcd cluster members.
	Endpoints []string `mapstructure:"endpoints"`

	// AdvertiseAddr is the host:port clients should dial. Empty means the
	// address the adapter is bound to.
	AdvertiseAddr string `mapstructure:"advertise_addr"`

	// Prefix is the key prefix. Defaults to DefaultPrefix.
	Prefix string `mapstructure:"prefix"`

	// TTL is the lease lifetime. Defaults to 10s.
	TTL time.Duration `mapstructure:"ttl" validate:"min=0"`

	// DialTimeout bounds connecting to etcd. Defaults to 5s.
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"min=0"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if !strings.HasSuffix(c.Prefix, "/") {
		c.Prefix += "/"
	}
	if c.TTL == 0 {
		c.TTL = 10 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
}

// Instance is the value stored for a registered broker.
type Instance struct {
	Addr    string    `json:"addr"`
	Version string    `json:"version,omitempty"`
	Started time.Time `json:"started"`
}

// Registry registers one broker instance and lists the others.
type Registry struct {
	client *clientv3.Client
	prefix string
	ttl    time.Duration

	mu      sync.Mutex
	key     string
	leaseID clientv3.LeaseID
	stopKA  context.CancelFunc
}

// New connects to the etcd cluster named by cfg.
func New(cfg Config) (*Registry, error) {
	cfg.ApplyDefaults()
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("discovery: at least one etcd endpoint is required")
	}

	c, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: connect to etcd: %w", err)
	}
	return NewWithClient(c, cfg), nil
}

// NewWithClient builds a Registry on an existing etcd client. The Registry
// takes ownership of c.
func NewWithClient(c *clientv3.Client, cfg Config) *Registry {
	cfg.ApplyDefaults()
	return &Registry{
		client: c,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
	}
}

// Key returns the etcd key an instance with addr is stored under.
func (r *Registry) Key(addr string) string {
	return r.prefix + addr
}

// Register stores inst under a fresh lease and keeps the lease alive until
// Deregister or Close. Registering again replaces the previous entry.
func (r *Registry) Register(ctx context.Context, inst Instance) error {
	if inst.Addr == "" {
		return errors.New("discovery: instance address is required")
	}
	if err := r.Deregister(ctx); err != nil {
		logger.Warn("discovery: drop previous registration: %v", err)
	}

	ttl := int64(r.ttl / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("discovery: grant lease: %w", err)
	}

	val, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("discovery: encode instance: %w", err)
	}

	key := r.Key(inst.Addr)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		_, _ = r.client.Revoke(context.WithoutCancel(ctx), lease.ID)
		return fmt.Errorf("discovery: put %s: %w", key, err)
	}

	kaCtx, stop := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		stop()
		_, _ = r.client.Revoke(context.WithoutCancel(ctx), lease.ID)
		return fmt.Errorf("discovery: keep lease alive: %w", err)
	}

	go func() {
		for range ch {
		}
		if kaCtx.Err() == nil {
			logger.Warn("discovery: lease for %s lost; broker is no longer discoverable", key)
		}
	}()

	r.mu.Lock()
	r.key = key
	r.leaseID = lease.ID
	r.stopKA = stop
	r.mu.Unlock()

	logger.Info("discovery: registered %s (ttl=%ds)", key, ttl)
	return nil
}

// Deregister revokes the current lease, which deletes the key. It is a
// no-op when nothing is registered.
func (r *Registry) Deregister(ctx context.Context) error {
	r.mu.Lock()
	key, lease, stop := r.key, r.leaseID, r.stopKA
	r.key, r.leaseID, r.stopKA = "", 0, nil
	r.mu.Unlock()

	if stop == nil {
		return nil
	}
	stop()

	if _, err := r.client.Revoke(ctx, lease); err != nil {
		return fmt.Errorf("discovery: revoke lease for %s: %w", key, err)
	}
	logger.Info("discovery: deregistered %s", key)
	return nil
}

// Discover lists every registered broker. Malformed entries are skipped.
func (r *Registry) Discover(ctx context.Context) ([]Instance, error) {
	resp, err := r.client.Get(ctx, r.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("discovery: list %s: %w", r.prefix, err)
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			logger.Debug("discovery: skip malformed entry %s: %v", kv.Key, err)
			continue
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// Close deregisters and closes the etcd client.
func (r *Registry) Close(ctx context.Context) error {
	derr := r.Deregister(ctx)
	cerr := r.client.Close()
	return errors.Join(derr, cerr)
}
