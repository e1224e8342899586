//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/marmos91/fsbroker/pkg/config"
	"github.com/marmos91/fsbroker/pkg/store"
)

// StoreType names a storage backend under test.
type StoreType string

const (
	StoreMemory     StoreType = "memory"
	StoreFilesystem StoreType = "filesystem"
	StoreBadger     StoreType = "badger"
	StoreS3         StoreType = "s3"
)

// TestContextProvider is an interface for providing test context dependencies
type TestContextProvider interface {
	CreateTempDir(prefix string) string
	GetPort() int
}

// TestConfig holds the configuration for a test run
type TestConfig struct {
	Name  string
	Store StoreType

	// ReadOnly starts the adapter in read-only mode.
	ReadOnly bool

	// S3-specific fields (set by localstack setup)
	s3Endpoint string
	s3Bucket   string
}

func (tc *TestConfig) String() string {
	return string(tc.Store)
}

// StoreConfig builds the configuration section the broker binary would read
// for this backend.
func (tc *TestConfig) StoreConfig(testCtx TestContextProvider) (*config.StoreConfig, error) {
	cfg := &config.StoreConfig{Type: string(tc.Store)}

	switch tc.Store {
	case StoreMemory:

	case StoreFilesystem:
		cfg.Filesystem = map[string]any{
			"root": testCtx.CreateTempDir("fsbroker-e2e-fs-*"),
		}

	case StoreBadger:
		cfg.Badger = map[string]any{
			"db_path": filepath.Join(testCtx.CreateTempDir("fsbroker-e2e-badger-*"), "store.db"),
		}

	case StoreS3:
		if tc.s3Bucket == "" {
			return nil, fmt.Errorf("S3 bucket not initialized (localstack not running?)")
		}
		cfg.S3 = map[string]any{
			"region":            "us-east-1",
			"bucket":            tc.s3Bucket,
			"key_prefix":        fmt.Sprintf("e2e-%d/", testCtx.GetPort()),
			"endpoint":          tc.s3Endpoint,
			"access_key_id":     "test",
			"secret_access_key": "test",
		}

	default:
		return nil, fmt.Errorf("unknown store type: %s", tc.Store)
	}

	return cfg, nil
}

// CreateStore creates the backend through the same factory the broker uses.
func (tc *TestConfig) CreateStore(ctx context.Context, testCtx TestContextProvider) (store.Store, error) {
	cfg, err := tc.StoreConfig(testCtx)
	if err != nil {
		return nil, err
	}
	return config.CreateStore(ctx, cfg)
}

// AllConfigurations returns all test configurations to run
func AllConfigurations() []*TestConfig {
	return []*TestConfig{
		{Name: "memory", Store: StoreMemory},
		{Name: "filesystem", Store: StoreFilesystem},
		{Name: "badger", Store: StoreBadger},
	}
}

// S3Configurations returns configurations that use S3 (requires localstack)
func S3Configurations() []*TestConfig {
	return []*TestConfig{
		{Name: "s3", Store: StoreS3},
	}
}
