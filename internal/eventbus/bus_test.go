package eventbus

import (
	"testing"
	"time"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDeliversFIFOToEachSubscriber(t *testing.T) {
	b := New(100, time.Hour, nil)
	a := b.Subscribe()
	c := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Emit(domain.Event{Action: string(rune('0' + i))})
	}

	for i := 0; i < 10; i++ {
		evA := <-a.Events()
		assert.Equal(t, string(rune('0'+i)), evA.Action)
		evC := <-c.Events()
		assert.Equal(t, string(rune('0'+i)), evC.Action)
	}
}

func TestEmitDropsForSlowSubscriberWithoutBlockingOthers(t *testing.T) {
	b := New(2, time.Hour, nil)
	slow := b.Subscribe()
	fast := b.Subscribe()

	for i := 0; i < 5; i++ {
		b.Emit(domain.Event{Action: "tick"})
	}

	assert.Len(t, slow.Events(), 2, "slow subscriber's bounded queue should cap at capacity")
	drained := 0
	for len(fast.Events()) > 0 {
		<-fast.Events()
		drained++
	}
	assert.Equal(t, 2, drained)

	stats := b.Stats()
	assert.Greater(t, stats.EventsDropped, int64(0))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(10, time.Hour, nil)
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	_, ok := <-sub.Events()
	assert.False(t, ok, "channel should be closed after Unsubscribe")
}

func TestCheckConnectionsPrunesFullSubscriber(t *testing.T) {
	b := New(1, time.Hour, nil)
	sub := b.Subscribe()
	// Fill the one-slot buffer so the next probe cannot be sent.
	b.Emit(domain.Event{Action: "fill"})

	b.checkConnections()

	require.Equal(t, 0, b.Stats().SubscriberCount)
	_, ok := <-sub.Events()
	assert.True(t, ok, "the already-queued event should still be readable")
}

func TestIsPingFiltersProbeEvents(t *testing.T) {
	assert.True(t, IsPing(domain.Event{Action: pingAction}))
	assert.False(t, IsPing(domain.Event{Action: "Create"}))
}
