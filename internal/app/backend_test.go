package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/childcare-checkin/internal/changefeed"
	"github.com/iliyamo/childcare-checkin/internal/config"
	"github.com/iliyamo/childcare-checkin/internal/remote"
)

func TestOpenBackend_Memory(t *testing.T) {
	ctx := context.Background()
	b, err := OpenBackend(ctx, config.Config{StoreDriver: "memory"}, nil, nil)
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &remote.Memory{}, b.Remote)
	broker, ok := b.Broker.(*changefeed.MemoryBroker)
	require.True(t, ok)
	assert.NoError(t, b.Ping(ctx))

	// Writes reach subscribers of the shared broker.
	got := make(chan changefeed.Notification, 1)
	sub, err := broker.Subscribe(ctx, changefeed.TableVenues, "", func(n changefeed.Notification) { got <- n })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = b.Remote.CreateVenue(ctx, "Central", 0)
	require.NoError(t, err)
	n := <-got
	assert.Equal(t, changefeed.EventInsert, n.EventType)
}

func TestOpenBackend_UnknownDriver(t *testing.T) {
	_, err := OpenBackend(context.Background(), config.Config{StoreDriver: "sqlite"}, nil, nil)
	assert.ErrorContains(t, err, "sqlite")
}
