package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisBroker(t *testing.T) (*RedisBroker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBroker(client, WithBrokerLogger(zap.NewNop())), mr
}

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	b, _ := newRedisBroker(t)

	got := make(chan Notification, 4)
	sub, err := b.Subscribe(ctx, TableChildren, "v1", func(n Notification) { got <- n })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, Publish(ctx, b, TableChildren, EventInsert, "v2", nil, testChild("c2", false)))
	require.NoError(t, Publish(ctx, b, TableChildren, EventInsert, "v1", nil, testChild("c1", false)))

	select {
	case n := <-got:
		assert.Equal(t, TableChildren, n.Table)
		assert.Equal(t, EventInsert, n.EventType)
		assert.Equal(t, "v1", n.VenueID)
		c, err := n.NewChild()
		require.NoError(t, err)
		assert.Equal(t, "c1", c.ID)
		assert.False(t, n.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
	select {
	case n := <-got:
		t.Fatalf("notification from another venue delivered: %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisBroker_UnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	b, mr := newRedisBroker(t)

	got := make(chan Notification, 4)
	sub, err := b.Subscribe(ctx, TableVenues, "", func(n Notification) { got <- n })
	require.NoError(t, err)
	assert.Equal(t, 1, mr.PubSubNumSub(Channel(TableVenues, ""))[Channel(TableVenues, "")])

	require.NoError(t, sub.Unsubscribe())
	assert.NoError(t, sub.Unsubscribe(), "unsubscribing twice is harmless")
	assert.Eventually(t, func() bool {
		return mr.PubSubNumSub(Channel(TableVenues, ""))[Channel(TableVenues, "")] == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, Publish(ctx, b, TableVenues, EventInsert, "", nil, map[string]string{"id": "v9"}))
	select {
	case n := <-got:
		t.Fatalf("delivered after unsubscribe: %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisBroker_SubscribeFailsWhenDown(t *testing.T) {
	b, mr := newRedisBroker(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := b.Subscribe(ctx, TableChildren, "v1", func(Notification) {})
	assert.Error(t, err)
}

func TestSubscriber_RedisFeedOutlivesActivationContext(t *testing.T) {
	b, _ := newRedisBroker(t)
	r := &countingRefresher{}
	s := NewSubscriber(b, r, WithDebounce(time.Hour))
	defer s.Close()
	log := &eventLog{}
	s.OnEmergency(log.add)

	actx, cancel := context.WithTimeout(context.Background(), time.Second)
	require.NoError(t, s.Activate(actx, "v1"))
	cancel()

	ctx := context.Background()
	require.NoError(t, Publish(ctx, b, TableChildren, EventUpdate, "v1", testChild("c1", false), testChild("c1", true)))
	assert.Eventually(t, func() bool { return log.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return r.n.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "v1", s.VenueID())
}
