package redisclient

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/threelight/redisgate/errors"
)

// Session is one dedicated connection to the backend store, owned by
// exactly one worker. Every operation is a fallible remote call; errors
// carry the backend's diagnostic text.
type Session struct {
	conn   *redis.Conn
	logger Logger
}

// Set stores a string value under key.
func (s *Session) Set(ctx context.Context, key, value string) error {
	if err := s.conn.Set(ctx, key, value, 0).Err(); err != nil {
		return errors.WrapTransient(err, "Session", "Set", "SET "+key)
	}
	return nil
}

// Del removes key. Deleting an absent key is not an error.
func (s *Session) Del(ctx context.Context, key string) error {
	if err := s.conn.Del(ctx, key).Err(); err != nil {
		return errors.WrapTransient(err, "Session", "Del", "DEL "+key)
	}
	return nil
}

// SAdd adds a member to the set stored at key.
func (s *Session) SAdd(ctx context.Context, key, member string) error {
	if err := s.conn.SAdd(ctx, key, member).Err(); err != nil {
		return errors.WrapTransient(err, "Session", "SAdd", "SADD "+key)
	}
	return nil
}

// SRem removes a member from the set stored at key.
func (s *Session) SRem(ctx context.Context, key, member string) error {
	if err := s.conn.SRem(ctx, key, member).Err(); err != nil {
		return errors.WrapTransient(err, "Session", "SRem", "SREM "+key)
	}
	return nil
}

// Publish announces a payload on the named channel.
func (s *Session) Publish(ctx context.Context, channel, payload string) error {
	if err := s.conn.Publish(ctx, channel, payload).Err(); err != nil {
		return errors.WrapTransient(err, "Session", "Publish", "PUBLISH "+channel)
	}
	return nil
}

// HSet stores a field/value pair in the hash at key. Used by the disk
// monitor, which keys records by mount point.
func (s *Session) HSet(ctx context.Context, key, field, value string) error {
	if err := s.conn.HSet(ctx, key, field, value).Err(); err != nil {
		return errors.WrapTransient(err, "Session", "HSet", "HSET "+key)
	}
	return nil
}

// Close releases the dedicated connection back to the pool.
func (s *Session) Close() {
	if err := s.conn.Close(); err != nil {
		s.logger.Debugf("Session close: %v", err)
	}
}
