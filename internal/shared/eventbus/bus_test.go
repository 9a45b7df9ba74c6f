package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_SubscribePublish(t *testing.T) {
	bus := NewEventBus(nil)
	var got Event
	bus.Subscribe(EventTypeRecordChanged, func(ctx context.Context, event Event) error {
		got = event
		return nil
	})

	err := bus.Publish(context.Background(), NewBasicEventWithSource(EventTypeRecordChanged, 42, "test"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 42, got.Data())
	assert.Equal(t, "test", got.Source())
}

func TestEventBus_AsyncPublish(t *testing.T) {
	bus := NewEventBusWithConfig(nil, BusConfig{AsyncProcessing: true})
	var calls int32
	for i := 0; i < 3; i++ {
		bus.Subscribe("async", func(ctx context.Context, event Event) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}
	require.NoError(t, bus.Publish(context.Background(), NewBasicEventWithSource("async", nil, "t")))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestEventBus_DefaultDoesNotRetry(t *testing.T) {
	bus := NewEventBus(nil)
	var calls int
	bus.Subscribe("ev", func(ctx context.Context, event Event) error {
		calls++
		return errors.New("nope")
	})
	err := bus.Publish(context.Background(), NewBasicEventWithSource("ev", nil, "t"))
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestEventBus_RetryConfigured(t *testing.T) {
	bus := NewEventBusWithConfig(nil, BusConfig{MaxRetries: 2, RetryDelay: time.Millisecond})
	var calls int
	bus.Subscribe("ev", func(ctx context.Context, event Event) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, bus.Publish(context.Background(), NewBasicEventWithSource("ev", nil, "t")))
	assert.Equal(t, 3, calls)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(nil)
	bus.Subscribe("ev", func(ctx context.Context, event Event) error { return nil })
	assert.Equal(t, 1, bus.GetSubscriberCount("ev"))
	bus.Unsubscribe("ev")
	assert.Equal(t, 0, bus.GetSubscriberCount("ev"))
}
