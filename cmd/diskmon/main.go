// Command diskmon polls disk usage on every mounted filesystem and writes
// the readings to the backing store on a fixed interval. It is a standalone
// producer; its keys live outside the gateway's validated keyspace.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/threelight/redisgate/config"
	"github.com/threelight/redisgate/diskmon"
	"github.com/threelight/redisgate/redisclient"
)

const appName = "diskmon"

func main() {
	if err := run(); err != nil {
		slog.Error("disk monitor failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", os.Getenv("REDISGATE_CONFIG"),
			"Path to YAML configuration file, empty for built-in defaults (env: REDISGATE_CONFIG)")
		redisURL = flag.String("redis-url", os.Getenv("REDISGATE_REDIS_URL"),
			"Redis URL, overrides configuration (env: REDISGATE_REDIS_URL)")
		interval = flag.Duration("interval", 0,
			"Polling interval, overrides configuration")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	logger := setupLogger(*logLevel)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *redisURL != "" {
		cfg.Redis.URL = *redisURL
	}
	if *interval > 0 {
		cfg.DiskMonitor.Interval = config.Duration(*interval)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := redisclient.NewClient(cfg.Redis.URL,
		redisclient.WithDialTimeout(cfg.Redis.DialTimeout.Std()),
		redisclient.WithClientName(appName),
	)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	sess, err := client.Session(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	monitor, err := diskmon.NewMonitor(diskmon.Deps{
		Store:    sess,
		Interval: cfg.DiskMonitor.Interval.Std(),
		HashKey:  cfg.DiskMonitor.HashKey,
		Channel:  cfg.DiskMonitor.Channel,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	logger.Info("starting disk monitor",
		"interval", cfg.DiskMonitor.Interval.Std().String(),
		"hash_key", cfg.DiskMonitor.HashKey,
		"redis", cfg.Redis.URL)

	if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("disk monitor stopped")
	return nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler).With("service", appName, "pid", os.Getpid())
}
