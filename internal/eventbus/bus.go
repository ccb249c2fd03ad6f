// Package eventbus is the daemon's process-wide event broadcaster (§4.2),
// grounded on original_source's event_emitter.rs fan-out/liveness design and
// generalized with the teacher's Dispatcher lifecycle (Start/Stop, stats).
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/pkg/logger"
)

// pingAction is the zero-payload probe event used by the liveness loop to
// test whether a subscriber channel is still sendable. It is delivered on the
// subscriber's channel like any event; consumers discard it with IsPing.
const pingAction = "__eventbus_ping__"

// Subscription is one subscriber's bounded event feed (capacity 100, §4.2).
type Subscription struct {
	id string
	ch chan domain.Event
}

// Events returns the channel of events delivered to this subscriber. Closed
// when the bus removes the subscription (Unsubscribe, or a failed liveness
// probe).
func (s *Subscription) Events() <-chan domain.Event { return s.ch }

// DispatcherStats mirrors the bus's own counters, named after the teacher's
// DispatcherStats shape.
type DispatcherStats struct {
	SubscriberCount int   `json:"subscriber_count"`
	EventsEmitted   int64 `json:"events_emitted"`
	EventsDropped   int64 `json:"events_dropped"`
	PrunedDead      int64 `json:"pruned_dead"`
}

// Bus fans events out to every live Subscription. It has no persistence and
// no replay: late subscribers only see events emitted after they subscribe.
type Bus struct {
	mu   sync.Mutex
	subs map[string]*Subscription

	capacity      int
	livenessEvery time.Duration
	log           *logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	emitted int64
	dropped int64
	pruned  int64
}

// New builds a Bus. capacity is the per-subscriber channel size (§4.2: 100).
func New(capacity int, livenessEvery time.Duration, log *logger.Logger) *Bus {
	if capacity <= 0 {
		capacity = 100
	}
	if livenessEvery <= 0 {
		livenessEvery = 10 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("eventbus")
	}
	return &Bus{
		subs:          make(map[string]*Subscription),
		capacity:      capacity,
		livenessEvery: livenessEvery,
		log:           log,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Subscribe registers a new subscription with a fresh bounded channel.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		id: uuid.NewString(),
		ch: make(chan domain.Event, b.capacity),
	}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Emit fans event out to every subscriber. A full queue drops the event for
// that subscriber only (drop-newest-per-slow-consumer) and never blocks the
// publisher. Delivery is FIFO per subscriber; there is no cross-subscriber
// or cross-node ordering guarantee.
func (b *Bus) Emit(event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		select {
		case s.ch <- event:
			b.emitted++
		default:
			b.dropped++
			b.log.WithField("subscriber", s.id).WithField("action", event.Action).
				Warn("event bus: dropping event for slow subscriber")
		}
	}
}

// SpawnEmit fires Emit on its own goroutine and returns immediately, the way
// the teacher's spawn_emit_event helpers are fire-and-forget.
func (b *Bus) SpawnEmit(event domain.Event) {
	go b.Emit(event)
}

// Start launches the liveness loop. It runs for the daemon's lifetime; call
// Stop during shutdown.
func (b *Bus) Start(ctx context.Context) {
	go b.livenessLoop(ctx)
}

// Stop halts the liveness loop and waits for it to exit.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	<-b.doneCh
}

func (b *Bus) livenessLoop(ctx context.Context) {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.livenessEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.checkConnections()
		}
	}
}

// checkConnections probes every subscriber with a zero-payload ping; a
// subscriber whose channel cannot accept the probe (full, i.e. its reader
// has stopped draining) is pruned.
func (b *Bus) checkConnections() {
	probe := domain.Event{Action: pingAction, At: time.Now()}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		select {
		case s.ch <- probe:
		default:
			delete(b.subs, id)
			close(s.ch)
			b.pruned++
			b.log.WithField("subscriber", id).Debug("event bus: pruned dead subscriber")
		}
	}
}

// Stats reports the bus's current counters.
func (b *Bus) Stats() DispatcherStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return DispatcherStats{
		SubscriberCount: len(b.subs),
		EventsEmitted:   b.emitted,
		EventsDropped:   b.dropped,
		PrunedDead:      b.pruned,
	}
}

// IsPing reports whether event is a liveness probe that callers streaming
// to HTTP subscribers should discard rather than forward.
func IsPing(event domain.Event) bool {
	return event.Action == pingAction
}
