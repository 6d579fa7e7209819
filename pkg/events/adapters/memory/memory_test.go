package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brpandey/basic-paxos/pkg/events"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()
	ctx := context.Background()

	received := make(chan events.Event, 1)
	require.NoError(t, bus.Subscribe(ctx, "membership.a", func(ctx context.Context, e events.Event) error {
		received <- e
		return nil
	}))

	evt := events.Event{Type: events.TypeNodeUp, Source: "cluster", Payload: "b"}
	require.NoError(t, bus.Publish(ctx, "membership.a", evt))

	select {
	case got := <-received:
		assert.Equal(t, events.TypeNodeUp, got.Type)
		assert.Equal(t, "b", got.Payload)
		assert.NotEmpty(t, got.ID, "bus must assign an event id")
		assert.False(t, got.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := New()
	defer bus.Close()
	ctx := context.Background()

	other := make(chan events.Event, 1)
	require.NoError(t, bus.Subscribe(ctx, "membership.b", func(ctx context.Context, e events.Event) error {
		other <- e
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, "membership.a", events.Event{Type: events.TypeNodeDown}))

	select {
	case <-other:
		t.Fatal("event leaked across topics")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDeliveryOrderPerSubscriber(t *testing.T) {
	bus := New()
	defer bus.Close()
	ctx := context.Background()

	const n = 50
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	require.NoError(t, bus.Subscribe(ctx, "t", func(ctx context.Context, e events.Event) error {
		mu.Lock()
		got = append(got, e.Payload.(string))
		if len(got) == n {
			close(done)
		}
		mu.Unlock()
		return nil
	}))

	var want []string
	for i := 0; i < n; i++ {
		payload := fmt.Sprintf("e%02d", i)
		want = append(want, payload)
		require.NoError(t, bus.Publish(ctx, "t", events.Event{Type: "seq", Payload: payload}))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("events not all delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got, "a subscriber must see publish order")
}

func TestCloseStopsDelivery(t *testing.T) {
	bus := New()
	ctx := context.Background()

	received := make(chan events.Event, 1)
	require.NoError(t, bus.Subscribe(ctx, "t", func(ctx context.Context, e events.Event) error {
		received <- e
		return nil
	}))

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Publish(ctx, "t", events.Event{Type: "late"}))

	select {
	case <-received:
		t.Fatal("event delivered after close")
	case <-time.After(100 * time.Millisecond):
	}
}
