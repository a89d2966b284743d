package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBusDispatchOrder(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var order []string
	bus.Subscribe(RunCompleted, func(ev *Event) {
		order = append(order, "typed")
		assert.Equal(t, "abc", ev.Data["run_id"])
	})
	bus.SubscribeAll(func(ev *Event) {
		order = append(order, "all")
	})

	bus.Publish(RunCompleted, map[string]any{"run_id": "abc"})
	assert.Equal(t, []string{"typed", "all"}, order)
}

func TestBusTypedHandlersOnlySeeTheirType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	calls := 0
	bus.Subscribe(MarginCall, func(*Event) { calls++ })

	bus.Publish(RunStarted, nil)
	assert.Zero(t, calls)

	bus.Publish(MarginCall, nil)
	assert.Equal(t, 1, calls)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	calls := 0
	unsubscribe := bus.SubscribeAll(func(*Event) { calls++ })

	bus.Publish(RunStarted, nil)
	assert.Equal(t, 1, calls)

	unsubscribe()
	bus.Publish(RunStarted, nil)
	assert.Equal(t, 1, calls)
}

func TestBusNilDataAllocated(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	bus.SubscribeAll(func(ev *Event) {
		assert.NotNil(t, ev.Data)
		assert.False(t, ev.Timestamp.IsZero())
	})
	bus.Publish(BarsSynced, nil)
}
