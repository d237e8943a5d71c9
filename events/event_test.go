package events

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestEventBus_SingleSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewEventBus(nil, nil)
	defer bus.Stop()

	_, ch := bus.Subscribe(RoundClosed)
	bus.Publish(RoundClosed, NewEvent(RoundClosed, 7, RoundClosedEvent{RoundID: 1, Level: 0}))

	select {
	case evt, ok := <-ch:
		require.True(t, ok)
		assert.Equal(t, 7, evt.FractalID)
		assert.NotEmpty(t, evt.ID)
		data, ok := evt.Data.(RoundClosedEvent)
		require.True(t, ok)
		assert.Equal(t, 1, data.RoundID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventBus_OnlyMatchingTypeDelivered(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewEventBus(nil, nil)
	defer bus.Stop()

	_, ch := bus.Subscribe(FractalClosed)
	bus.Publish(RoundClosed, NewEvent(RoundClosed, 1, nil))

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %s", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_PublishAsyncAndSubscribeFunc(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewEventBus(nil, nil)
	var got atomic.Int32
	bus.SubscribeFunc(ProposalScored, func(Event) { got.Add(1) })

	for i := 0; i < 5; i++ {
		require.True(t, bus.PublishAsync(ProposalScored, NewEvent(ProposalScored, 1, nil)))
	}
	require.Eventually(t, func() bool { return got.Load() == 5 }, time.Second, 5*time.Millisecond)

	bus.Stop()
	assert.False(t, bus.PublishAsync(ProposalScored, NewEvent(ProposalScored, 1, nil)))
}

type panickySubscriber struct{ closed atomic.Bool }

func (p *panickySubscriber) Deliver(Event) error { panic("boom") }
func (p *panickySubscriber) Close()              { p.closed.Store(true) }

func TestEventBus_FailingSubscriberIsRemoved(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := prometheus.NewRegistry()
	bus := NewEventBus(reg, nil)
	defer bus.Stop()

	bad := &panickySubscriber{}
	bus.RegisterSubscriber(RoundStarted, bad)
	_, ch := bus.Subscribe(RoundStarted)

	assert.NotPanics(t, func() {
		bus.Publish(RoundStarted, NewEvent(RoundStarted, 2, nil))
	})
	<-ch
	assert.True(t, bad.closed.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(bus.metrics.deliveryErrors.WithLabelValues(string(RoundStarted), "adapter")))
	assert.Equal(t, float64(1), testutil.ToFloat64(bus.metrics.eventsTotal.WithLabelValues(string(RoundStarted))))

	// the second publish only reaches the healthy subscriber
	bus.Publish(RoundStarted, NewEvent(RoundStarted, 2, nil))
	<-ch
	assert.Equal(t, float64(1), testutil.ToFloat64(bus.metrics.deliveryErrors.WithLabelValues(string(RoundStarted), "adapter")))
}

func TestEventBus_StopClosesSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewEventBus(nil, nil)
	_, ch := bus.Subscribe(FractalStarted)
	bus.Stop()
	bus.Stop()

	_, ok := <-ch
	assert.False(t, ok)
}
