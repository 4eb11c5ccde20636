// Command redisgate runs the validating gateway: it binds the Unix socket,
// connects to the backing Redis store, and relays validated producer
// requests until terminated.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/threelight/redisgate/config"
	"github.com/threelight/redisgate/gateway"
	"github.com/threelight/redisgate/health"
	"github.com/threelight/redisgate/keyspace"
	"github.com/threelight/redisgate/metric"
	"github.com/threelight/redisgate/redisclient"
	"github.com/threelight/redisgate/schema"
)

// Build information constants
const (
	Version = "1.0.0"
	appName = "redisgate"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gateway failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, cliCfg)

	// Static configuration compiles once, before any connection is
	// accepted; a bad schema or allow-list stops the process here.
	grammar, err := keyspace.NewGrammar(cfg.Keyspace.Producers, cfg.Keyspace.Objects)
	if err != nil {
		return err
	}
	schemas, err := schema.NewRegistry(cfg.Schemas)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		logger.Info("configuration is valid",
			"producers", len(cfg.Keyspace.Producers),
			"objects", len(cfg.Keyspace.Objects),
			"schemas", schemas.Len())
		return nil
	}

	logger.Info("starting gateway",
		"socket", cfg.Gateway.SocketPath,
		"redis", cfg.Redis.URL,
		"schemas", schemas.Len())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := redisclient.NewClient(cfg.Redis.URL,
		redisclient.WithLogger(&slogAdapter{logger: logger.With("component", "redisclient")}),
		redisclient.WithDialTimeout(cfg.Redis.DialTimeout.Std()),
		redisclient.WithPoolSize(cfg.Redis.PoolSize),
		redisclient.WithClientName(appName),
	)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	registry := metric.NewMetricsRegistry()
	registry.CoreMetrics().BackendHealthy.Set(1)

	prober, err := health.NewProber(health.Deps{
		Checker:  client,
		Interval: 15 * time.Second,
		Logger:   logger,
		OnProbe: func(healthy bool) {
			if healthy {
				registry.CoreMetrics().BackendHealthy.Set(1)
			} else {
				registry.CoreMetrics().BackendHealthy.Set(0)
			}
		},
	})
	if err != nil {
		return err
	}

	srv := gateway.NewServer(gateway.Deps{
		SocketPath: cfg.Gateway.SocketPath,
		Client:     client,
		Grammar:    grammar,
		Schemas:    schemas,
		Registry:   registry,
		Logger:     logger,
	})
	if err := srv.Start(); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := prober.Run(groupCtx)
		if groupCtx.Err() != nil {
			return nil
		}
		return err
	})

	if cfg.Metrics.Port > 0 {
		metricsSrv := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		metricsSrv.SetHealthHandler(prober.Handler())
		group.Go(metricsSrv.Start)
		group.Go(func() error {
			<-groupCtx.Done()
			return metricsSrv.Stop()
		})
		logger.Info("metrics available", "address", metricsSrv.Address())
	}

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return srv.Stop()
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// applyOverrides folds CLI/env overrides into the loaded configuration.
func applyOverrides(cfg *config.Config, cli *CLIConfig) {
	if cli.SocketPath != "" {
		cfg.Gateway.SocketPath = cli.SocketPath
	}
	if cli.RedisURL != "" {
		cfg.Redis.URL = cli.RedisURL
	}
	if cli.MetricsPort >= 0 {
		cfg.Metrics.Port = cli.MetricsPort
	}
}
