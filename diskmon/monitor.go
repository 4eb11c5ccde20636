// Package diskmon implements the disk-space poller: a straightforward
// producer that samples every mounted filesystem on a fixed interval and
// writes the readings through the same backend store the gateway fronts.
//
// Each cycle stores one JSON record per mount point in a hash keyed by
// mount point, and publishes the same payload on a fixed notification
// channel. The poller is not routed through the gateway's validation; its
// records live outside the cs: keyspace.
package diskmon

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/threelight/redisgate/errors"
	"github.com/threelight/redisgate/pkg/retry"
)

// Record is one disk-space reading for one mount point.
type Record struct {
	Timestamp  int64  `json:"_timestamp"` // nanoseconds since the epoch
	TotalSpace uint64 `json:"total_space"`
	FreeSpace  uint64 `json:"free_space"`
	Path       string `json:"path"`
}

// Store is the backend surface the monitor writes through.
type Store interface {
	HSet(ctx context.Context, key, field, value string) error
	Publish(ctx context.Context, channel, payload string) error
}

// Sampler produces one reading per mount point. The default uses gopsutil;
// tests inject their own.
type Sampler func(ctx context.Context) ([]Record, error)

// SystemSampler reads partitions and usage from the running system.
func SystemSampler(ctx context.Context) ([]Record, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, errors.WrapTransient(err, "Monitor", "SystemSampler", "list partitions")
	}

	now := time.Now().UnixNano()
	records := make([]Record, 0, len(partitions))
	for _, p := range partitions {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			// A single unreadable mount (stale NFS, permissions) must not
			// sink the whole cycle.
			continue
		}
		records = append(records, Record{
			Timestamp:  now,
			TotalSpace: usage.Total,
			FreeSpace:  usage.Free,
			Path:       p.Mountpoint,
		})
	}
	return records, nil
}

// Monitor polls disk space and writes it to the backend store.
type Monitor struct {
	store    Store
	sampler  Sampler
	interval time.Duration
	hashKey  string
	channel  string
	logger   *slog.Logger
	retryCfg retry.Config
}

// Deps holds the monitor's dependencies.
type Deps struct {
	Store    Store
	Sampler  Sampler // nil selects SystemSampler
	Interval time.Duration
	HashKey  string
	Channel  string
	Logger   *slog.Logger
}

// NewMonitor creates a monitor. Interval must be positive.
func NewMonitor(deps Deps) (*Monitor, error) {
	if deps.Store == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Monitor", "NewMonitor", "check store")
	}
	if deps.Interval <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Monitor", "NewMonitor", "check interval")
	}

	sampler := deps.Sampler
	if sampler == nil {
		sampler = SystemSampler
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hashKey := deps.HashKey
	if hashKey == "" {
		hashKey = "system_disk_space"
	}
	channel := deps.Channel
	if channel == "" {
		channel = hashKey
	}

	return &Monitor{
		store:    deps.Store,
		sampler:  sampler,
		interval: deps.Interval,
		hashKey:  hashKey,
		channel:  channel,
		logger:   logger.With("component", "diskmon"),
		retryCfg: retry.DefaultConfig(),
	}, nil
}

// Run polls until the context is cancelled. The first cycle runs
// immediately; a failed cycle is logged and the loop carries on.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if err := m.Cycle(ctx); err != nil {
			m.logger.Warn("polling cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cycle samples once and stores every reading, retrying transient store
// failures within the cycle.
func (m *Monitor) Cycle(ctx context.Context) error {
	records, err := m.sampler(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return errors.WrapInvalid(err, "Monitor", "Cycle", "marshal record")
		}

		err = retry.Do(ctx, m.retryCfg, func() error {
			if err := m.store.HSet(ctx, m.hashKey, rec.Path, string(payload)); err != nil {
				return err
			}
			return m.store.Publish(ctx, m.channel, string(payload))
		})
		if err != nil {
			return err
		}
	}

	m.logger.Debug("stored disk readings", "mounts", len(records))
	return nil
}
