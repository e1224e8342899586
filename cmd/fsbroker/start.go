package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/pkg/adapter/fsbroker"
	"github.com/marmos91/fsbroker/pkg/broker"
	"github.com/marmos91/fsbroker/pkg/config"
	"github.com/marmos91/fsbroker/pkg/discovery"
	"github.com/marmos91/fsbroker/pkg/server"
	"github.com/marmos91/fsbroker/pkg/store"
)

func newStartCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the broker",
		Long: `Run the broker until SIGINT/SIGTERM or a client SHUTDOWN request.

Settings come from the configuration file (see "fsbroker init") and
FSBROKER_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file (default is $XDG_CONFIG_HOME/fsbroker/config.yaml)")
	return cmd
}

func setupLogging(cfg config.LoggingConfig) (func(), error) {
	logger.SetLevel(cfg.Level)
	if err := logger.SetFormat(cfg.Format); err != nil {
		return nil, err
	}

	switch cfg.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logger.SetOutput(f)
		return func() {
			_ = logger.Sync()
			_ = f.Close()
		}, nil
	}
	return func() { _ = logger.Sync() }, nil
}

func run(parent context.Context, cfg *config.Config) error {
	closeLog, err := setupLogging(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("fsbroker %s starting", version)
	logger.Info("Log level: %s, store: %s", cfg.Logging.Level, cfg.Store.Type)

	m := config.InitializeMetrics(cfg)

	st, err := config.CreateStore(ctx, &cfg.Store)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	st = store.Instrument(st, m.StoreMetrics)

	brk := broker.New(st, cfg.Broker)

	srv := server.New(st, brk, server.Options{
		StopTimeout:   cfg.Server.ShutdownTimeout,
		AdvertiseAddr: cfg.Discovery.AdvertiseAddr,
		Version:       version,
	})

	adp, err := fsbroker.New(cfg.Adapters.FSBroker, brk, m.BrokerMetrics)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create fsbroker adapter: %w", err)
	}
	if err := srv.AddAdapter(adp); err != nil {
		_ = st.Close()
		return err
	}

	if m.Server != nil {
		srv.SetMetricsServer(m.Server)
		logger.Info("Metrics available on :%d/metrics", m.Server.Port())
	}

	if cfg.Discovery.Enabled {
		reg, err := discovery.New(cfg.Discovery)
		if err != nil {
			_ = st.Close()
			return err
		}
		srv.SetRegistrar(reg)
	}

	err = srv.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("fsbroker stopped")
	return nil
}
