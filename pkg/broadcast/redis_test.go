package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type event struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	args := m.Called(ctx, channel, message)
	return args.Get(0).(*redis.IntCmd)
}

func (m *MockRedisClient) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	args := m.Called(ctx, channels)
	return args.Get(0).(*redis.PubSub)
}

func TestNewRedisBroadcaster(t *testing.T) {
	t.Parallel()

	_, err := NewRedisBroadcaster[event](nil, "events")
	assert.ErrorIs(t, err, ErrNilClient)

	_, err = NewRedisBroadcaster[event](&MockRedisClient{}, "")
	assert.ErrorIs(t, err, ErrEmptyChannel)

	b, err := NewRedisBroadcaster[event](&MockRedisClient{}, "events", WithRedisBufferSize(8))
	require.NoError(t, err)
	assert.Equal(t, "events", b.Channel())
	assert.Equal(t, 8, b.bufferSize)
}

func TestRedisBroadcaster_Broadcast(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("publishes json payload", func(t *testing.T) {
		t.Parallel()
		client := &MockRedisClient{}
		client.On("Publish", ctx, "events", []byte(`{"id":"n1","state":"delivered"}`)).
			Return(redis.NewIntResult(1, nil)).Once()

		b, err := NewRedisBroadcaster[event](client, "events")
		require.NoError(t, err)
		require.NoError(t, b.Broadcast(ctx, Message[event]{Data: event{ID: "n1", State: "delivered"}}))
		client.AssertExpectations(t)
	})

	t.Run("redis error", func(t *testing.T) {
		t.Parallel()
		client := &MockRedisClient{}
		client.On("Publish", ctx, "events", mock.Anything).
			Return(redis.NewIntResult(0, errors.New("connection refused"))).Once()

		b, err := NewRedisBroadcaster[event](client, "events")
		require.NoError(t, err)
		err = b.Broadcast(ctx, Message[event]{Data: event{ID: "n1"}})
		assert.ErrorIs(t, err, ErrPublishMessage)
	})

	t.Run("closed", func(t *testing.T) {
		t.Parallel()
		client := &MockRedisClient{}
		b, err := NewRedisBroadcaster[event](client, "events")
		require.NoError(t, err)
		require.NoError(t, b.Close())
		assert.ErrorIs(t, b.Broadcast(ctx, Message[event]{}), ErrClosed)
		client.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)

		sub := b.Subscribe(ctx)
		_, ok := <-sub.Receive(ctx)
		assert.False(t, ok)
	})
}

func TestRedisBroadcaster_Pump(t *testing.T) {
	t.Parallel()

	b, err := NewRedisBroadcaster[event](&MockRedisClient{}, "events",
		WithRedisLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	in := make(chan *redis.Message, 4)
	sub := newSubscriber[event](1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.pump(context.Background(), in, sub)
	}()

	in <- &redis.Message{Channel: "events", Payload: "not json"}
	in <- &redis.Message{Channel: "events", Payload: `{"id":"n1","state":"failed"}`}

	select {
	case msg := <-sub.Receive(context.Background()):
		assert.Equal(t, event{ID: "n1", State: "failed"}, msg.Data)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	close(in)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop when input closed")
	}
}

func TestRedisBroadcaster_PumpStopsOnSubscriberClose(t *testing.T) {
	t.Parallel()

	b, err := NewRedisBroadcaster[event](&MockRedisClient{}, "events",
		WithRedisLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	in := make(chan *redis.Message)
	sub := newSubscriber[event](1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.pump(context.Background(), in, sub)
	}()

	require.NoError(t, sub.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop when subscriber closed")
	}
}
