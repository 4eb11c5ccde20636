package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	SocketPath  string
	RedisURL    string
	LogLevel    string
	LogFormat   string
	MetricsPort int
	ShowVersion bool
	Validate    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("REDISGATE_CONFIG", ""),
		"Path to YAML configuration file, empty for built-in defaults (env: REDISGATE_CONFIG)")

	flag.StringVar(&cfg.SocketPath, "socket",
		getEnv("REDISGATE_SOCKET", ""),
		"Unix socket path, overrides configuration (env: REDISGATE_SOCKET)")

	flag.StringVar(&cfg.RedisURL, "redis-url",
		getEnv("REDISGATE_REDIS_URL", ""),
		"Redis URL, overrides configuration (env: REDISGATE_REDIS_URL)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("REDISGATE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: REDISGATE_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("REDISGATE_LOG_FORMAT", "json"),
		"Log format: json, text (env: REDISGATE_LOG_FORMAT)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("REDISGATE_METRICS_PORT", -1),
		"Metrics port, 0 to disable, -1 keeps configuration (env: REDISGATE_METRICS_PORT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Parse()
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.MetricsPort < -1 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
