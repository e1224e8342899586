package discovery

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultPrefix, cfg.Prefix)
	assert.Equal(t, 10*time.Second, cfg.TTL)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)

	cfg = Config{Prefix: "/custom", TTL: time.Minute}
	cfg.ApplyDefaults()
	assert.Equal(t, "/custom/", cfg.Prefix)
	assert.Equal(t, time.Minute, cfg.TTL)
}

func TestNewRequiresEndpoints(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestKey(t *testing.T) {
	r := NewWithClient(nil, Config{})
	assert.Equal(t, "/fsbroker/brokers/10.0.0.1:7000", r.Key("10.0.0.1:7000"))
}

func TestDeregisterWithoutRegistration(t *testing.T) {
	r := NewWithClient(nil, Config{})
	assert.NoError(t, r.Deregister(context.Background()))
}

// Runs against a real etcd when FSBROKER_TEST_ETCD lists its endpoints.
func TestRegisterAndDiscover(t *testing.T) {
	endpoints := os.Getenv("FSBROKER_TEST_ETCD")
	if endpoints == "" {
		t.Skip("FSBROKER_TEST_ETCD not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prefix := "/fsbroker-test/" + time.Now().Format("150405.000000") + "/"
	cfg := Config{Endpoints: strings.Split(endpoints, ","), Prefix: prefix, TTL: 5 * time.Second}

	a, err := New(cfg)
	require.NoError(t, err)
	b, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, a.Register(ctx, Instance{Addr: "127.0.0.1:7001", Started: time.Now()}))
	require.NoError(t, b.Register(ctx, Instance{Addr: "127.0.0.1:7002", Started: time.Now()}))

	instances, err := a.Discover(ctx)
	require.NoError(t, err)
	assert.Len(t, instances, 2)

	require.NoError(t, a.Close(ctx))

	instances, err = b.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "127.0.0.1:7002", instances[0].Addr)

	require.NoError(t, b.Close(ctx))
}
