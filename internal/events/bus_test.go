package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitReachesSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	var logins, all atomic.Int32
	bus.Subscribe(EventPlayerLogin, "logins", func(_ context.Context, e Event) error {
		defer wg.Done()
		logins.Add(1)
		assert.Equal(t, "mopar", e.Payload.(PlayerPayload).Username)
		return nil
	})
	bus.SubscribeAll("all", func(context.Context, Event) error {
		defer wg.Done()
		all.Add(1)
		return nil
	})

	bus.Emit(context.Background(), New(EventPlayerLogin, "world", PlayerPayload{Username: "mopar"}))
	wg.Wait()

	assert.EqualValues(t, 1, logins.Load())
	assert.EqualValues(t, 1, all.Load())
	assert.Equal(t, 2, bus.HandlerCount(EventPlayerLogin))
	assert.Equal(t, 1, bus.HandlerCount(EventPlayerLogout))
	assert.Equal(t, uint64(1), bus.Emitted()[EventPlayerLogin])
}

func TestEmitSyncReturnsFirstError(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	boom := errors.New("boom")
	bus.Subscribe(EventTickOverrun, "fails", func(context.Context, Event) error { return boom })
	bus.Subscribe(EventTickOverrun, "panics", func(context.Context, Event) error { panic("bad handler") })

	err := bus.EmitSync(context.Background(), New(EventTickOverrun, "world", nil))
	assert.ErrorIs(t, err, boom)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var calls atomic.Int32
	handler := func(context.Context, Event) error {
		calls.Add(1)
		return nil
	}
	bus.Subscribe(EventBroadcast, "a", handler)
	bus.Subscribe(EventBroadcast, "b", handler)
	bus.Unsubscribe(EventBroadcast, "a")

	require.NoError(t, bus.EmitSync(context.Background(), New(EventBroadcast, "cli", BroadcastPayload{Text: "hi"})))
	assert.EqualValues(t, 1, calls.Load())
}

func TestStopWaitsAndDropsLateEvents(t *testing.T) {
	bus := NewEventBus()

	release := make(chan struct{})
	var finished atomic.Bool
	bus.Subscribe(EventShutdown, "slow", func(context.Context, Event) error {
		<-release
		finished.Store(true)
		return nil
	})
	bus.Emit(context.Background(), New(EventShutdown, "main", nil))

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	bus.Stop()
	assert.True(t, finished.Load())

	bus.Emit(context.Background(), New(EventShutdown, "main", nil))
	assert.Equal(t, uint64(1), bus.Emitted()[EventShutdown])
}

func TestWorldStateJSON(t *testing.T) {
	data, err := WorldStateRunning.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"running"`, string(data))
	assert.Equal(t, "running", WorldStateRunning.String())
}
