package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultCloseTimeout = 5 * time.Second

// RedisBroker implements Broker over Redis Pub/Sub.  Each Subscribe call
// opens its own PubSub connection for one channel; reconnects are handled
// by go-redis and any gap is covered by polling.
type RedisBroker struct {
	client *redis.Client
	logger *zap.Logger
}

// RedisBrokerOption configures a RedisBroker.
type RedisBrokerOption func(*RedisBroker)

// WithBrokerLogger sets the logger for the broker and its subscriptions.
func WithBrokerLogger(logger *zap.Logger) RedisBrokerOption {
	return func(b *RedisBroker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewRedisBroker wraps an existing client.  The caller keeps ownership of
// the client and closes it.
func NewRedisBroker(client *redis.Client, opts ...RedisBrokerOption) *RedisBroker {
	b := &RedisBroker{client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish sends n to the channel of its table and venue.
func (b *RedisBroker) Publish(ctx context.Context, n Notification) error {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	channel := Channel(n.Table, n.VenueID)
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Warn("Failed to publish change notification",
			zap.String("channel", channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	b.logger.Debug("Published change notification",
		zap.String("channel", channel),
		zap.String("event", string(n.EventType)))
	return nil
}

// Subscribe listens on the channel for table and venueID until the
// returned subscription is unsubscribed.  ctx only bounds the wait for
// Redis to confirm the subscription; the receive loop does not end with
// it.
func (b *RedisBroker) Subscribe(ctx context.Context, table Table, venueID string, h Handler) (Subscription, error) {
	channel := Channel(table, venueID)
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	pubsub := b.client.Subscribe(subCtx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	s := &redisSub{
		pubsub:  pubsub,
		cancel:  cancel,
		doneCh:  make(chan struct{}),
		logger:  b.logger.With(zap.String("channel", channel)),
		channel: channel,
	}
	go s.loop(subCtx, h)

	b.logger.Debug("Subscribed to change channel", zap.String("channel", channel))
	return s, nil
}

type redisSub struct {
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
	doneCh  chan struct{}
	logger  *zap.Logger
	channel string
	once    sync.Once
}

func (s *redisSub) loop(ctx context.Context, h Handler) {
	defer close(s.doneCh)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				s.logger.Warn("Change channel closed")
				return
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				s.logger.Warn("Dropping malformed change notification",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			s.deliver(h, n)
		}
	}
}

func (s *redisSub) deliver(h Handler, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in change handler", zap.Any("panic", r))
		}
	}()
	h(n)
}

// Unsubscribe stops the receive loop and closes the PubSub connection.
func (s *redisSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
		select {
		case <-s.doneCh:
		case <-time.After(defaultCloseTimeout):
			s.logger.Warn("Timeout waiting for subscription to stop")
		}
	})
	return err
}

var _ Broker = (*RedisBroker)(nil)
var _ Broker = (*MemoryBroker)(nil)
