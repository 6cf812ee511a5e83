package changefeed

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrBrokerDown is returned by a MemoryBroker that has been taken down.
var ErrBrokerDown = errors.New("changefeed: broker down")

// MemoryBroker is an in-process Broker.  Handlers run synchronously on the
// publishing goroutine, in subscription order, so they must not block.
type MemoryBroker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
	down   bool
}

// NewMemoryBroker returns an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[int]Handler)}
}

// SetDown simulates a dropped connection: while down, publishes are lost
// and new subscriptions fail.
func (b *MemoryBroker) SetDown(down bool) {
	b.mu.Lock()
	b.down = down
	b.mu.Unlock()
}

// Publish delivers n to every subscriber of its channel.
func (b *MemoryBroker) Publish(_ context.Context, n Notification) error {
	b.mu.RLock()
	if b.down {
		b.mu.RUnlock()
		return ErrBrokerDown
	}
	subs := b.subs[Channel(n.Table, n.VenueID)]
	handlers := make([]Handler, 0, len(subs))
	ids := make([]int, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, subs[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(n)
	}
	return nil
}

// Subscribe registers h for table notifications of venueID.
func (b *MemoryBroker) Subscribe(_ context.Context, table Table, venueID string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, ErrBrokerDown
	}
	ch := Channel(table, venueID)
	if b.subs[ch] == nil {
		b.subs[ch] = make(map[int]Handler)
	}
	b.nextID++
	id := b.nextID
	b.subs[ch][id] = h
	return &memorySub{broker: b, channel: ch, id: id}, nil
}

// Subscribers returns the number of live subscriptions across all channels.
func (b *MemoryBroker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, m := range b.subs {
		n += len(m)
	}
	return n
}

type memorySub struct {
	broker  *MemoryBroker
	channel string
	id      int
	once    sync.Once
}

func (s *memorySub) Unsubscribe() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs[s.channel], s.id)
		if len(s.broker.subs[s.channel]) == 0 {
			delete(s.broker.subs, s.channel)
		}
		s.broker.mu.Unlock()
	})
	return nil
}
