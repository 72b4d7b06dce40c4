package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_EmitDeliversToSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []*Event
	bus.Subscribe(MetricValueRecorded, func(e *Event) { got = append(got, e) })
	bus.Subscribe(FeatureToggled, func(e *Event) { t.Fatal("wrong type delivered") })

	bus.Emit("metrics", &MetricValueRecordedData{MetricID: "m1", Target: "POSITION:p1"})

	require.Len(t, got, 1)
	assert.Equal(t, MetricValueRecorded, got[0].Type)
	assert.Equal(t, "metrics", got[0].Module)
	data, ok := got[0].Data.(*MetricValueRecordedData)
	require.True(t, ok)
	assert.Equal(t, "m1", data.MetricID)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	calls := 0
	unsubscribe := bus.Subscribe(PricesSynced, func(e *Event) { calls++ })
	bus.Subscribe(PricesSynced, func(e *Event) { calls += 10 })
	assert.Equal(t, 2, bus.SubscriberCount(PricesSynced))

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 1, bus.SubscriberCount(PricesSynced))

	bus.Emit("marketdata", &PricesSyncedData{Synced: 1})
	assert.Equal(t, 10, calls)
}

func TestBus_PanickingHandlerIsIsolated(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	delivered := false
	bus.Subscribe(FeatureToggled, func(e *Event) { panic("bad handler") })
	bus.Subscribe(FeatureToggled, func(e *Event) { delivered = true })

	assert.NotPanics(t, func() {
		bus.Emit("features", &FeatureToggledData{Family: "performance"})
	})
	assert.True(t, delivered)
}

func TestBus_NilSafe(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Emit("x", &PricesSyncedData{}) })
}
