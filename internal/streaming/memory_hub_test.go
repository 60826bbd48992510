package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowdesk/pkg/schema"
)

func recv(t *testing.T, ch <-chan schema.EditorEvent) schema.EditorEvent {
	t.Helper()
	select {
	case got, ok := <-ch:
		require.True(t, ok, "channel closed")
		return got
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return schema.EditorEvent{}
}

func assertQuiet(t *testing.T, ch <-chan schema.EditorEvent) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	event := schema.EditorEvent{FlowID: "f1", NodeID: "n1", Kind: schema.EventNodeAdded, Seq: 3}
	require.NoError(t, hub.Publish(ctx, event))

	got := recv(t, ch)
	assert.Equal(t, event.FlowID, got.FlowID)
	assert.Equal(t, event.NodeID, got.NodeID)
	assert.Equal(t, event.Kind, got.Kind)
	assert.Equal(t, int64(3), got.Seq)
}

func TestFilterByFlowID(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{FlowID: "f1"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, schema.EditorEvent{FlowID: "f1", Kind: schema.EventNodesMoved}))
	require.NoError(t, hub.Publish(ctx, schema.EditorEvent{FlowID: "f2", Kind: schema.EventNodesMoved}))

	assert.Equal(t, "f1", recv(t, ch).FlowID)
	assertQuiet(t, ch)
}

func TestFilterByKind(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{
		Kinds: []string{schema.EventEdgeAdded, schema.EventNodeDeleted},
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, schema.EditorEvent{FlowID: "f1", Kind: schema.EventEdgeAdded}))
	require.NoError(t, hub.Publish(ctx, schema.EditorEvent{FlowID: "f1", Kind: schema.EventNodeSelected}))
	require.NoError(t, hub.Publish(ctx, schema.EditorEvent{FlowID: "f1", Kind: schema.EventNodeDeleted}))

	received := []string{recv(t, ch).Kind, recv(t, ch).Kind}
	assert.Equal(t, []string{schema.EventEdgeAdded, schema.EventNodeDeleted}, received)
	assertQuiet(t, ch)
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch1, cancel1, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel1()

	ch2, cancel2, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel2()

	assert.Equal(t, 2, hub.Subscribers())
	require.NoError(t, hub.Publish(ctx, schema.EditorEvent{FlowID: "f1", Kind: schema.EventFlowSaved}))

	for _, ch := range []<-chan schema.EditorEvent{ch1, ch2} {
		got := recv(t, ch)
		assert.Equal(t, schema.EventFlowSaved, got.Kind)
	}
}

func TestCancelSubscription(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)

	cancel()
	cancel()

	require.NoError(t, hub.Publish(ctx, schema.EditorEvent{FlowID: "f1", Kind: schema.EventFlowSaved}))

	_, ok := <-ch
	assert.False(t, ok, "channel is closed after cancel")
	assert.Equal(t, 0, hub.Subscribers())
}

func TestBackpressure(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < defaultChannelBuffer+10; i++ {
		require.NoError(t, hub.Publish(ctx, schema.EditorEvent{FlowID: "f1", Kind: schema.EventNodesMoved}))
	}

	drained := 0
	for {
		select {
		case <-ch:
			drained++
			continue
		default:
		}
		break
	}
	assert.Equal(t, defaultChannelBuffer, drained)
	assert.Equal(t, uint64(10), hub.Dropped())
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	const goroutines = 20
	const eventsPerGoroutine = 50

	var wg sync.WaitGroup

	cancels := make([]func(), goroutines)
	for i := 0; i < goroutines; i++ {
		_, cancel, err := hub.Subscribe(ctx, EventFilter{})
		require.NoError(t, err)
		cancels[i] = cancel
	}
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				_ = hub.Publish(ctx, schema.EditorEvent{FlowID: "f-concurrent", Kind: schema.EventNodesMoved})
			}
		}()
	}

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
			if err != nil {
				return
			}
			for range 5 {
				select {
				case <-ch:
				case <-time.After(10 * time.Millisecond):
				}
			}
			cancel()
		}()
	}

	wg.Wait()
}

func TestCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, hub.Publish(ctx, schema.EditorEvent{FlowID: "f1"}), context.Canceled)

	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}
