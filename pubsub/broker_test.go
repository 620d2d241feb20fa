package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroker[string]()
	defer b.Shutdown()

	ctx := context.Background()
	first := b.Subscribe(ctx)
	second := b.Subscribe(ctx)
	require.Equal(t, 2, b.SubscriberCount())

	assert.Equal(t, 2, b.Publish(IngestRequested, "doc.pdf"))

	for _, ch := range []<-chan Event[string]{first, second} {
		select {
		case event := <-ch:
			assert.Equal(t, IngestRequested, event.Type)
			assert.Equal(t, "doc.pdf", event.Payload)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestContextCancelUnsubscribes(t *testing.T) {
	b := NewBroker[int]()
	defer b.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	require.Equal(t, 1, b.SubscriberCount())

	cancel()

	assert.Eventually(t, func() bool {
		return b.SubscriberCount() == 0
	}, time.Second, 10*time.Millisecond)

	_, open := <-ch
	assert.False(t, open, "channel must be closed after unsubscribe")
}

func TestShutdownClosesSubscribers(t *testing.T) {
	b := NewBroker[int]()
	ch := b.Subscribe(context.Background())

	b.Shutdown()
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	// Publishing and re-shutting-down after shutdown are no-ops.
	b.Publish(QueryRequested, 1)
	b.Shutdown()
}

func TestSubscribeAfterShutdownReturnsClosedChannel(t *testing.T) {
	b := NewBroker[int]()
	b.Shutdown()

	ch := b.Subscribe(context.Background())
	_, open := <-ch
	assert.False(t, open)
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	b := NewBroker[int]()
	defer b.Shutdown()

	ch := b.Subscribe(context.Background())
	for i := 0; i < bufferSize; i++ {
		assert.Equal(t, 1, b.Publish(QueryRequested, i))
	}
	for i := 0; i < 10; i++ {
		assert.Zero(t, b.Publish(QueryRequested, i), "a full buffer must report zero acceptances")
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			assert.Equal(t, bufferSize, received, "overflow events are dropped, not blocked on")
			return
		}
	}
}
