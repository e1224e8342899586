package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/pkg/store"
	storeBadger "github.com/marmos91/fsbroker/pkg/store/badger"
	storeFs "github.com/marmos91/fsbroker/pkg/store/fs"
	"github.com/marmos91/fsbroker/pkg/store/memory"
	storeS3 "github.com/marmos91/fsbroker/pkg/store/s3"
)

// CreateStore creates the storage backend selected by cfg.Type.
//
// The type-specific option map is decoded with mapstructure and handed to
// the backend constructor.
//
// Supported types:
//   - "memory": pkg/store/memory (ephemeral)
//   - "filesystem": pkg/store/fs (rooted local directory)
//   - "badger": pkg/store/badger (BadgerDB, persistent)
//   - "s3": pkg/store/s3 (Amazon S3 or compatible storage)
func CreateStore(ctx context.Context, cfg *StoreConfig) (store.Store, error) {
	switch cfg.Type {
	case "memory":
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return memory.New(), nil
	case "filesystem":
		return createFilesystemStore(ctx, cfg.Filesystem)
	case "badger":
		return createBadgerStore(ctx, cfg.Badger)
	case "s3":
		return createS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown store type: %q (supported: memory, filesystem, badger, s3)", cfg.Type)
	}
}

// decodeOptions decodes a backend option map, accepting durations written
// as strings ("5s").
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

func createFilesystemStore(ctx context.Context, options map[string]any) (store.Store, error) {
	type FilesystemStoreConfig struct {
		Root         string `mapstructure:"root"`
		MaxOpenFiles int    `mapstructure:"max_open_files"`
	}

	var storeCfg FilesystemStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem store config: %w", err)
	}

	if storeCfg.Root == "" {
		return nil, fmt.Errorf("filesystem store: root is required")
	}

	st, err := storeFs.New(ctx, storeFs.Config{
		Root:         storeCfg.Root,
		MaxOpenFiles: storeCfg.MaxOpenFiles,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem store: %w", err)
	}

	logger.Info("Filesystem store initialized: root=%s", st.Root())
	return st, nil
}

func createBadgerStore(ctx context.Context, options map[string]any) (store.Store, error) {
	type BadgerStoreConfig struct {
		DBPath           string `mapstructure:"db_path"`
		InMemory         bool   `mapstructure:"in_memory"`
		SyncWrites       bool   `mapstructure:"sync_writes"`
		BlockCacheSizeMB int64  `mapstructure:"block_cache_mb"`
		IndexCacheSizeMB int64  `mapstructure:"index_cache_mb"`
	}

	var storeCfg BadgerStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger store config: %w", err)
	}

	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger store: db_path is required")
	}

	st, err := storeBadger.New(ctx, storeBadger.Config{
		DBPath:           storeCfg.DBPath,
		InMemory:         storeCfg.InMemory,
		SyncWrites:       storeCfg.SyncWrites,
		BlockCacheSizeMB: storeCfg.BlockCacheSizeMB,
		IndexCacheSizeMB: storeCfg.IndexCacheSizeMB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger store: %w", err)
	}

	logger.Info("Badger store initialized: path=%s in_memory=%v", storeCfg.DBPath, storeCfg.InMemory)
	return st, nil
}

func createS3Store(ctx context.Context, options map[string]any) (store.Store, error) {
	type S3StoreConfig struct {
		Region          string        `mapstructure:"region"`
		Bucket          string        `mapstructure:"bucket"`
		KeyPrefix       string        `mapstructure:"key_prefix"`
		Endpoint        string        `mapstructure:"endpoint"`
		AccessKeyID     string        `mapstructure:"access_key_id"`
		SecretAccessKey string        `mapstructure:"secret_access_key"`
		MaxRetries      int           `mapstructure:"max_retries"`
		Timeout         time.Duration `mapstructure:"timeout"`
	}

	var storeCfg S3StoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 store config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 store: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	// Static credentials if provided, otherwise the default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	loadCtx := ctx
	if storeCfg.Timeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, storeCfg.Timeout)
		defer cancel()
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(loadCtx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoint with path-style addressing for MinIO/Localstack
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Store
	// ========================================================================

	st, err := storeS3.New(loadCtx, storeS3.Config{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 store: %w", err)
	}

	logger.Info("S3 store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return st, nil
}
