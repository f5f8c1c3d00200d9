package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// RedisClient is the subset of redis.UniversalClient used by RedisBroadcaster.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisBroadcaster publishes JSON-encoded messages on one Redis pub/sub
// channel. Every subscriber holds its own Redis subscription. A message that
// does not fit a subscriber's buffer is dropped for that subscriber only.
type RedisBroadcaster[T any] struct {
	client     RedisClient
	channel    string
	bufferSize int
	logger     *slog.Logger

	mu     sync.Mutex
	subs   map[*subscriber[T]]struct{}
	closed bool
	wg     sync.WaitGroup
}

// RedisOption configures a RedisBroadcaster.
type RedisOption func(*redisOptions)

type redisOptions struct {
	bufferSize int
	logger     *slog.Logger
}

// WithRedisBufferSize sets the per-subscriber buffer. Default is 64.
func WithRedisBufferSize(n int) RedisOption {
	return func(o *redisOptions) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

func WithRedisLogger(l *slog.Logger) RedisOption {
	return func(o *redisOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewRedisBroadcaster creates a broadcaster bound to the given pub/sub channel.
func NewRedisBroadcaster[T any](client RedisClient, channel string, opts ...RedisOption) (*RedisBroadcaster[T], error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if channel == "" {
		return nil, ErrEmptyChannel
	}
	o := redisOptions{bufferSize: 64, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisBroadcaster[T]{
		client:     client,
		channel:    channel,
		bufferSize: o.bufferSize,
		logger:     o.logger.With(logger.Component("broadcast")),
		subs:       make(map[*subscriber[T]]struct{}),
	}, nil
}

// Channel returns the Redis pub/sub channel name.
func (b *RedisBroadcaster[T]) Channel() string { return b.channel }

// Broadcast publishes msg. Unlike the memory broadcaster it reports
// encoding and Redis errors.
func (b *RedisBroadcaster[T]) Broadcast(ctx context.Context, msg Message[T]) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	payload, err := json.Marshal(msg.Data)
	if err != nil {
		return errors.Join(ErrEncodeMessage, err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return errors.Join(ErrPublishMessage, err)
	}
	return nil
}

// Subscribe opens a Redis subscription and waits for its confirmation, so
// messages published after Subscribe returns are not missed. On failure the
// returned subscriber is already closed.
func (b *RedisBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	sub := newSubscriber[T](b.bufferSize)

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		_ = sub.Close()
		return sub
	}

	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		b.logger.LogAttrs(ctx, slog.LevelWarn, "redis subscribe failed",
			slog.String("channel", b.channel),
			logger.Error(err),
		)
		_ = ps.Close()
		_ = sub.Close()
		return sub
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = ps.Close()
		_ = sub.Close()
		return sub
	}
	b.subs[sub] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		b.pump(ctx, ps.Channel(), sub)
		_ = ps.Close()
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		_ = sub.Close()
	}()

	return sub
}

// pump decodes pub/sub payloads into sub until ctx ends, sub is closed or
// the Redis channel closes.
func (b *RedisBroadcaster[T]) pump(ctx context.Context, in <-chan *redis.Message, sub *subscriber[T]) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			var data T
			if err := json.Unmarshal([]byte(m.Payload), &data); err != nil {
				b.logger.LogAttrs(ctx, slog.LevelWarn, "dropping undecodable broadcast message",
					slog.String("channel", m.Channel),
					logger.Error(err),
				)
				continue
			}
			switch sub.send(Message[T]{Data: data}) {
			case gone:
				return
			case full:
				b.logger.LogAttrs(ctx, slog.LevelDebug, "subscriber buffer full, message dropped",
					slog.String("channel", m.Channel),
				)
			}
		}
	}
}

// Close ends every subscription and waits for their goroutines.
func (b *RedisBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for sub := range b.subs {
		_ = sub.Close()
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
