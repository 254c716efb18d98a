package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/stepchain/pkg/adapters/events/memory"
	"github.com/aescanero/stepchain/pkg/domain"
)

type collector struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *collector) handle(_ context.Context, ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.events))
	for i, ev := range c.events {
		ids[i] = ev.ID
	}
	return ids
}

func TestPublishDeliversInOrderToEverySubscriber(t *testing.T) {
	bus := memory.NewEventBus(zaptest.NewLogger(t))
	defer func() { _ = bus.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := &collector{}, &collector{}
	require.NoError(t, bus.Subscribe(ctx, "workflow.events", a.handle))
	require.NoError(t, bus.Subscribe(ctx, "workflow.events", b.handle))

	want := []string{"e1", "e2", "e3"}
	for _, id := range want {
		require.NoError(t, bus.Publish(ctx, "workflow.events", domain.Event{ID: id, Type: domain.EventTypeStepStarted}))
	}
	require.NoError(t, bus.Publish(ctx, "other", domain.Event{ID: "x"}))

	assert.Eventually(t, func() bool { return len(a.ids()) == 3 && len(b.ids()) == 3 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, want, a.ids())
	assert.Equal(t, want, b.ids())
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	bus := memory.NewEventBus(zaptest.NewLogger(t))
	defer func() { _ = bus.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	c := &collector{}
	require.NoError(t, bus.Subscribe(ctx, "t", c.handle))

	require.NoError(t, bus.Publish(context.Background(), "t", domain.Event{ID: "before"}))
	assert.Eventually(t, func() bool { return len(c.ids()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, bus.Publish(context.Background(), "t", domain.Event{ID: "after"}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"before"}, c.ids())
}

func TestUnsubscribeAndClose(t *testing.T) {
	bus := memory.NewEventBus(zaptest.NewLogger(t))

	c := &collector{}
	require.NoError(t, bus.Subscribe(context.Background(), "t", c.handle))
	require.NoError(t, bus.Unsubscribe(context.Background(), "t"))
	require.NoError(t, bus.Publish(context.Background(), "t", domain.Event{ID: "dropped"}))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.ids())

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Subscribe(context.Background(), "t", c.handle), memory.ErrClosed)
}
