// Package health probes the backend store's liveness and exposes the result
// as a JSON status for the HTTP health endpoint. The prober runs beside the
// gateway; it never touches the request path, which discovers backend
// failures through its own session errors.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/threelight/redisgate/errors"
)

// Status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Status is one liveness observation.
type Status struct {
	Component string    `json:"component"`
	Healthy   bool      `json:"healthy"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Checker answers whether the backend currently responds.
type Checker interface {
	IsHealthy(ctx context.Context) bool
}

// Prober periodically checks the backend and keeps the latest Status.
type Prober struct {
	checker  Checker
	interval time.Duration
	logger   *slog.Logger
	onProbe  func(healthy bool)

	mu   sync.RWMutex
	last Status
}

// Deps holds the prober's dependencies.
type Deps struct {
	Checker  Checker
	Interval time.Duration
	Logger   *slog.Logger
	// OnProbe is invoked after every probe, healthy or not. Used to drive
	// the backend health gauge.
	OnProbe func(healthy bool)
}

// NewProber creates a prober. Interval must be positive.
func NewProber(deps Deps) (*Prober, error) {
	if deps.Checker == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Prober", "NewProber", "check checker")
	}
	if deps.Interval <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Prober", "NewProber", "check interval")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		checker:  deps.Checker,
		interval: deps.Interval,
		logger:   logger.With("component", "health"),
		onProbe:  deps.OnProbe,
		last: Status{
			Component: "backend",
			Status:    StatusUnhealthy,
			Message:   "not probed yet",
			Timestamp: time.Now(),
		},
	}, nil
}

// Run probes until the context is cancelled. The first probe runs
// immediately.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.probe(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	healthy := p.checker.IsHealthy(ctx)

	status := Status{
		Component: "backend",
		Healthy:   healthy,
		Status:    StatusHealthy,
		Message:   "backend answering",
		Timestamp: time.Now(),
	}
	if !healthy {
		status.Status = StatusUnhealthy
		status.Message = "backend not answering"
	}

	p.mu.Lock()
	wasHealthy := p.last.Healthy
	p.last = status
	p.mu.Unlock()

	if p.onProbe != nil {
		p.onProbe(healthy)
	}
	if healthy != wasHealthy {
		p.logger.Warn("backend health changed", "healthy", healthy)
	}
}

// Current returns the latest observation.
func (p *Prober) Current() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Handler serves the latest status as JSON. Unhealthy reports 503 so load
// balancers and probes can act on the status code alone.
func (p *Prober) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := p.Current()
		status.Message = Sanitize(status.Message)

		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}

var (
	urlRegex      = regexp.MustCompile(`(?:redis|rediss|https?|unix)://[^\s]+`)
	unixPathRegex = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex   = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex     = regexp.MustCompile(`:\d{2,5}\b`)
)

// Sanitize strips addresses and paths from a message before it leaves the
// process on the health endpoint. Backend errors embed the store URL and the
// socket path; neither belongs in an externally reachable response.
func Sanitize(message string) string {
	if message == "" {
		return ""
	}
	sanitized := urlRegex.ReplaceAllString(message, "[URL]")
	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")
	return sanitized
}
