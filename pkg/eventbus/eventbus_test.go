package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := New()
	subA := bus.Subscribe()
	subB := bus.Subscribe()
	defer subA.Close()
	defer subB.Close()

	bus.Publish(Event{Kind: "StateChanged"})

	for _, sub := range []*Subscription{subA, subB} {
		select {
		case e := <-sub.C():
			assert.Equal(t, "StateChanged", e.Kind)
		case <-time.After(time.Second):
			t.Fatal("expected delivery to every subscriber")
		}
	}
}

func TestPublishNeverBlocksOnASlowSubscriber(t *testing.T) {
	bus := New()
	slow := bus.Subscribe()
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(Event{Kind: "Tick"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish must not block waiting on a subscriber that never drains its channel")
	}
}

func TestCloseStopsFurtherDeliveryWithoutPanicking(t *testing.T) {
	bus := New()
	sub := bus.Subscribe()
	sub.Close()

	require.NotPanics(t, func() {
		bus.Publish(Event{Kind: "AfterClose"})
	})

	_, ok := <-sub.C()
	assert.False(t, ok, "channel must be closed after Close")
}
