// Package dispatch maps validated requests to backend store operations and
// their side-channel notifications.
//
// Every mutation is followed by a publish on the channel named after the
// key, announcing what changed. Mutation and notification outcomes are
// reported independently: a committed mutation whose notification publish
// fails is still a success, with the lost notification surfaced in the
// result so callers can distinguish "nothing happened" from "mutated but
// notification lost". Nothing is retried here.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/threelight/redisgate/errors"
	"github.com/threelight/redisgate/protocol"
)

// Store is the backend interface the dispatcher consumes: a key-value store
// with set semantics and a publish primitive. All calls are fallible remote
// operations.
type Store interface {
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
	SAdd(ctx context.Context, key, member string) error
	SRem(ctx context.Context, key, member string) error
	Publish(ctx context.Context, channel, payload string) error
}

// Result reports the outcome of a successful mutation.
type Result struct {
	// Published is false when the mutation committed but the notification
	// publish failed; PublishErr then carries the backend's diagnostic.
	Published  bool
	PublishErr error
}

// Dispatcher executes requests against one backend session. It is created
// per connection and is not safe for concurrent use; concurrency lives at
// the connection level, one dispatcher each.
type Dispatcher struct {
	store  Store
	logger *slog.Logger
}

// NewDispatcher binds a dispatcher to a backend session.
func NewDispatcher(store Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, logger: logger}
}

// Execute runs the request's mutation and then its notification publish.
// The returned error is non-nil only when the mutation itself failed (or
// the action verb is unknown); a lost notification is reported through the
// Result.
func (d *Dispatcher) Execute(ctx context.Context, req protocol.Request) (Result, error) {
	var (
		mutate  func() error
		payload string
	)

	switch req.Action {
	case protocol.ActionSet:
		value := req.CanonicalValue()
		mutate = func() error { return d.store.Set(ctx, req.Key, value) }
		payload = "set: " + value
	case protocol.ActionDel:
		mutate = func() error { return d.store.Del(ctx, req.Key) }
		payload = "del"
	case protocol.ActionSAdd:
		value := req.CanonicalValue()
		mutate = func() error { return d.store.SAdd(ctx, req.Key, value) }
		payload = "sadd: " + value
	case protocol.ActionSRem:
		value := req.CanonicalValue()
		mutate = func() error { return d.store.SRem(ctx, req.Key, value) }
		payload = "srem: " + value
	default:
		return Result{}, errors.WrapInvalid(errors.ErrInvalidAction, "Dispatcher", "Execute",
			"map action "+string(req.Action))
	}

	if err := mutate(); err != nil {
		return Result{}, err
	}

	if err := d.store.Publish(ctx, req.Key, payload); err != nil {
		d.logger.Warn("mutation committed but notification lost",
			"action", string(req.Action),
			"key", req.Key,
			"error", err)
		return Result{Published: false, PublishErr: err}, nil
	}

	return Result{Published: true}, nil
}
