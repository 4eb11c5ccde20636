// Package redisclient wraps the go-redis driver behind the small surface the
// gateway needs: a process-wide Client created once, and per-connection
// Sessions, each backed by a dedicated Redis connection that is never shared
// between workers.
package redisclient

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/threelight/redisgate/errors"
	"github.com/threelight/redisgate/pkg/retry"
)

// Client manages the connection pool to the backend store. The Client
// itself is shared read-only across connection workers; sessions are not.
type Client struct {
	url    string
	logger Logger

	opts      *redis.Options
	rdb       *redis.Client
	connected atomic.Bool

	dialTimeout time.Duration
	poolSize    int
	clientName  string
	retryConfig retry.Config
}

// NewClient creates a client for the given redis:// URL. The URL is parsed
// eagerly so a malformed address fails at startup, not on first use.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:         url,
		logger:      &defaultLogger{},
		dialTimeout: 5 * time.Second,
		retryConfig: retry.Quick(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	parsed, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.WrapFatal(err, "Client", "NewClient", "parse redis URL")
	}
	parsed.DialTimeout = c.dialTimeout
	if c.poolSize > 0 {
		parsed.PoolSize = c.poolSize
	}
	if c.clientName != "" {
		parsed.ClientName = c.clientName
	}
	c.opts = parsed

	c.logger.Debugf("Created Redis client for %s", url)
	return c, nil
}

// URL returns the backend store URL.
func (c *Client) URL() string {
	return c.url
}

// Connect establishes the connection pool and pings the backend, retrying
// with backoff until the store answers or the attempts run out.
func (c *Client) Connect(ctx context.Context) error {
	c.rdb = redis.NewClient(c.opts)

	err := retry.Do(ctx, c.retryConfig, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
		defer cancel()
		if err := c.rdb.Ping(pingCtx).Err(); err != nil {
			c.logger.Debugf("Ping failed: %v", err)
			return err
		}
		return nil
	})
	if err != nil {
		_ = c.rdb.Close()
		c.rdb = nil
		return errors.WrapTransient(err, "Client", "Connect", "ping backend")
	}

	c.connected.Store(true)
	c.logger.Printf("Connected to Redis at %s", c.url)
	return nil
}

// IsHealthy reports whether the backend currently answers a ping.
func (c *Client) IsHealthy(ctx context.Context) bool {
	if c.rdb == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()
	return c.rdb.Ping(pingCtx).Err() == nil
}

// Session returns a session backed by a dedicated backend connection.
// Exactly one worker owns a session for its lifetime; the worker must call
// Close when its connection ends.
func (c *Client) Session(_ context.Context) (*Session, error) {
	if c.rdb == nil || !c.connected.Load() {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", "Session", "obtain session")
	}
	return &Session{conn: c.rdb.Conn(), logger: c.logger}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	c.connected.Store(false)
	if c.rdb == nil {
		return nil
	}
	err := c.rdb.Close()
	c.rdb = nil
	if err != nil {
		return errors.WrapTransient(err, "Client", "Close", "close pool")
	}
	return nil
}
