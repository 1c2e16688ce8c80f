package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusPublishFanOut(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	count := 0
	sink := SinkFunc(func(ctx context.Context, event Event) error {
		count++
		return nil
	})
	_, err := bus.Subscribe(sink)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{SessionID: "s1", Kind: KindFormulationReady}))
	require.NoError(t, bus.Publish(ctx, Event{SessionID: "s1", Kind: KindFormulationConfirmed}))
	require.Equal(t, 2, count)
}

func TestBusSubscribeNil(t *testing.T) {
	bus := NewBus()
	_, err := bus.Subscribe(nil)
	require.Error(t, err)
}

func TestSubscriptionClose(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()
	count := 0
	sink := SinkFunc(func(ctx context.Context, event Event) error {
		count++
		return nil
	})
	sub, err := bus.Subscribe(sink)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{SessionID: "s1", Kind: KindFormulationReady}))
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close()) // idempotent
	require.NoError(t, bus.Publish(ctx, Event{SessionID: "s1", Kind: KindFormulationConfirmed}))
	require.Equal(t, 1, count)
}

func TestBusStopsOnFirstError(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	firstCalled, secondCalled := false, false
	_, _ = bus.Subscribe(SinkFunc(func(ctx context.Context, event Event) error {
		firstCalled = true
		return context.Canceled
	}))
	_, _ = bus.Subscribe(SinkFunc(func(ctx context.Context, event Event) error {
		secondCalled = true
		return nil
	}))

	err := bus.Publish(ctx, Event{SessionID: "s1", Kind: KindFormulationReady})
	require.Error(t, err)
	require.True(t, firstCalled)
	// map iteration order is undefined, so the second sink may or may not
	// run depending on registration order internals; this assertion only
	// checks that Publish propagated the error rather than the bus
	// continuing delivery indefinitely.
	_ = secondCalled
}

func TestSequencerAssignsPerSessionMonotonicSeq(t *testing.T) {
	bus := NewBus()
	var seen []int
	_, _ = bus.Subscribe(SinkFunc(func(ctx context.Context, event Event) error {
		seen = append(seen, event.Seq)
		return nil
	}))

	seq := NewSequencer(bus)
	ctx := context.Background()
	require.NoError(t, seq.Publish(ctx, Event{SessionID: "s1", Kind: KindFormulationReady}))
	require.NoError(t, seq.Publish(ctx, Event{SessionID: "s1", Kind: KindFormulationConfirmed}))
	require.NoError(t, seq.Publish(ctx, Event{SessionID: "s2", Kind: KindFormulationReady}))

	require.Equal(t, []int{0, 1, 0}, seen)
}
