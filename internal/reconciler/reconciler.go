// Package reconciler drives the object lifecycle engines from bus events
// (§4.6): a lifecycle-managed background loop, modelled on the
// automation scheduler's Start(ctx)/Stop(ctx) + goroutine + WaitGroup
// shape, except it reacts to an eventbus.Subscription channel instead of a
// polling ticker.
package reconciler

import (
	"context"
	"sync"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/eventbus"
	"github.com/nanocl-io/nanocld/internal/lifecycle"
	"github.com/nanocl-io/nanocld/internal/metrics"
	"github.com/nanocl-io/nanocld/internal/store"
	"github.com/nanocl-io/nanocld/pkg/logger"
)

// Reconciler consumes lifecycle events and calls into the per-kind engines
// to converge actual state on wanted state, per §4.6's state table. The
// "Start|Start (spec changed)" row is not handled here: CargoEngine.Put
// performs that zero-downtime update synchronously at the call site.
type Reconciler struct {
	statuses store.Repo[domain.Status]
	bus      *eventbus.Bus
	cargo    *lifecycle.CargoEngine
	job      *lifecycle.JobEngine
	vm       *lifecycle.VMEngine
	node     string
	log      *logger.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	sub     *eventbus.Subscription
}

// New wires the per-kind engines and status store a Reconciler needs.
func New(
	statuses store.Repo[domain.Status],
	bus *eventbus.Bus,
	cargo *lifecycle.CargoEngine,
	job *lifecycle.JobEngine,
	vm *lifecycle.VMEngine,
	node string,
	log *logger.Logger,
) *Reconciler {
	if log == nil {
		log = logger.NewDefault("reconciler")
	}
	return &Reconciler{statuses: statuses, bus: bus, cargo: cargo, job: job, vm: vm, node: node, log: log}
}

// SetMetrics attaches a metrics sink; dispatch outcomes recorded before this
// is called (or if it's never called) are simply not counted.
func (r *Reconciler) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Start subscribes to the bus and begins processing events in the
// background. A second call is a no-op.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.sub = r.bus.Subscribe()
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(runCtx)
	}()

	r.log.Info("reconciler started")
	return nil
}

// Stop unsubscribes from the bus and waits for the processing loop to
// drain, or ctx to expire, whichever comes first.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	sub := r.sub
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.bus.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("reconciler stopped")
	return nil
}

func (r *Reconciler) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-r.sub.Events():
			if !ok {
				return
			}
			if eventbus.IsPing(event) || event.Actor == nil {
				continue
			}
			r.dispatch(ctx, *event.Actor, event.Action)
		}
	}
}

// dispatch maps one event's (actor kind, action) pair onto the matching
// engine call per §4.6's state table.
func (r *Reconciler) dispatch(ctx context.Context, actor domain.EventActor, action string) {
	switch actor.Kind {
	case domain.ActorCargo:
		switch action {
		case domain.ActionStarting:
			r.run(ctx, actor, action, r.cargo.BringUp, false)
		case domain.ActionStopping:
			r.run(ctx, actor, action, r.cargo.TearDown, false)
		case domain.ActionDestroying:
			r.run(ctx, actor, action, r.cargo.Destroy, false)
		}
	case domain.ActorJob:
		switch action {
		case domain.ActionStarting:
			// Run settles its own actual=Fail/Finish transitions per step.
			r.run(ctx, actor, action, r.job.Run, true)
		case domain.ActionDestroying:
			r.run(ctx, actor, action, r.job.Destroy, false)
		}
	case domain.ActorVM:
		switch action {
		case domain.ActionStarting:
			r.run(ctx, actor, action, r.vm.BringUp, false)
		case domain.ActionStopping:
			r.run(ctx, actor, action, r.vm.TearDown, false)
		case domain.ActionDestroying:
			r.run(ctx, actor, action, r.vm.Destroy, false)
		}
	}
}

// run invokes fn for actor.Key, logging any failure. Unless the engine
// already settles its own failure status (selfHandled), a failure here
// settles actual=Fail and emits a Warning event, per §4.6/§8.
func (r *Reconciler) run(ctx context.Context, actor domain.EventActor, action string, fn func(context.Context, string) error, selfHandled bool) {
	outcome := "ok"
	if err := fn(ctx, actor.Key); err != nil {
		outcome = "error"
		r.log.WithError(err).WithField("key", actor.Key).Warn("reconcile action failed")
		if !selfHandled {
			r.settleFail(ctx, actor, err)
		}
	}
	if r.metrics != nil {
		r.metrics.RecordReconcileAction(string(actor.Kind), action, outcome)
	}
}

func (r *Reconciler) settleFail(ctx context.Context, actor domain.EventActor, cause error) {
	status, err := r.statuses.ReadByPK(ctx, actor.Key)
	if err != nil {
		return
	}
	status.Settle(domain.StatusFail)
	_ = r.statuses.UpdateByPK(ctx, actor.Key, status)
	r.bus.SpawnEmit(domain.Event{
		Kind:                domain.EventWarning,
		Action:              "Reconcile",
		Reason:              domain.ReasonStateSync,
		ReportingController: "nanocld",
		ReportingNode:       r.node,
		Actor:               &actor,
		Note:                cause.Error(),
	})
}
