package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/eventbus"
	"github.com/nanocl-io/nanocld/internal/jobsched"
	"github.com/nanocl-io/nanocld/internal/nerr"
	"github.com/nanocl-io/nanocld/internal/process"
	"github.com/nanocl-io/nanocld/internal/store"
	"github.com/nanocl-io/nanocld/pkg/logger"
)

// JobEngine implements the object lifecycle engine's operations for jobs
// (§4.4), including the sequential container run loop and cron scheduling.
type JobEngine struct {
	jobs      store.Repo[domain.Job]
	specs     store.Repo[domain.Spec]
	statuses  store.Repo[domain.Status]
	processes store.Repo[domain.Process]
	secrets   store.Repo[domain.Secret]
	bus       *eventbus.Bus
	proc      *process.Layer
	sched     *jobsched.Scheduler
	node      string
	log       *logger.Logger
}

// NewJobEngine wires the repositories, process layer, cron scheduler, and
// event bus a JobEngine needs.
func NewJobEngine(
	jobs store.Repo[domain.Job],
	specs store.Repo[domain.Spec],
	statuses store.Repo[domain.Status],
	processes store.Repo[domain.Process],
	secrets store.Repo[domain.Secret],
	bus *eventbus.Bus,
	proc *process.Layer,
	sched *jobsched.Scheduler,
	node string,
	log *logger.Logger,
) *JobEngine {
	if log == nil {
		log = logger.NewDefault("lifecycle.job")
	}
	return &JobEngine{
		jobs: jobs, specs: specs, statuses: statuses, processes: processes,
		secrets: secrets, bus: bus, proc: proc, sched: sched, node: node, log: log,
	}
}

// Create validates the payload, writes the job and its first spec row, sets
// status (Create, Create), registers a cron schedule if one is set, and
// emits a Create event (§4.4 step 1).
func (e *JobEngine) Create(ctx context.Context, name string, data domain.JobSpecData) (domain.Job, error) {
	if len(data.Containers) == 0 {
		return domain.Job{}, nerr.BadRequest("job must declare at least one container")
	}
	data.Name = name

	spec, err := newSpec(name, data)
	if err != nil {
		return domain.Job{}, err
	}
	if err := e.specs.Create(ctx, spec); err != nil {
		return domain.Job{}, err
	}

	job := domain.Job{Name: name, Spec: spec}
	if err := e.jobs.Create(ctx, job); err != nil {
		return domain.Job{}, err
	}
	if err := e.statuses.Create(ctx, domain.Status{KindKey: name, Wanted: domain.StatusCreate, Actual: domain.StatusCreate}); err != nil {
		return domain.Job{}, err
	}
	if data.Schedule != "" {
		if err := e.registerSchedule(name, data.Schedule); err != nil {
			return domain.Job{}, nerr.BadRequest("invalid job schedule: " + err.Error())
		}
	}

	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionCreate, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: name, Kind: domain.ActorJob}, ""))
	return job, nil
}

// Put replaces the job's spec (§4.4 step 2): writes a new spec row and
// re-registers the cron schedule (removing it if the new spec drops one).
func (e *JobEngine) Put(ctx context.Context, name string, data domain.JobSpecData) (domain.Job, error) {
	job, err := e.jobs.ReadByPK(ctx, name)
	if err != nil {
		return domain.Job{}, err
	}
	data.Name = name

	spec, err := newSpec(name, data)
	if err != nil {
		return domain.Job{}, err
	}
	if err := e.specs.Create(ctx, spec); err != nil {
		return domain.Job{}, err
	}
	job.Spec = spec
	if err := e.jobs.UpdateByPK(ctx, name, job); err != nil {
		return domain.Job{}, err
	}

	e.sched.Remove(name)
	if data.Schedule != "" {
		if err := e.registerSchedule(name, data.Schedule); err != nil {
			return domain.Job{}, nerr.BadRequest("invalid job schedule: " + err.Error())
		}
	}

	status, err := e.statuses.ReadByPK(ctx, name)
	if err != nil {
		return domain.Job{}, err
	}
	if status.Actual == domain.StatusStart {
		status.Advance(domain.StatusStart)
	} else {
		status.Advance(domain.StatusCreate)
	}
	if err := e.statuses.UpdateByPK(ctx, name, status); err != nil {
		return domain.Job{}, err
	}

	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionUpdate, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: name, Kind: domain.ActorJob}, ""))
	return job, nil
}

// Revert writes a historical spec forward as the job's new current spec,
// then proceeds as Put (§4.4 step 4).
func (e *JobEngine) Revert(ctx context.Context, name, specID string) (domain.Job, error) {
	old, err := e.specs.ReadByPK(ctx, specID)
	if err != nil {
		return domain.Job{}, err
	}
	if old.KindKey != name {
		return domain.Job{}, nerr.BadRequest("spec does not belong to job " + name)
	}
	var data domain.JobSpecData
	if err := json.Unmarshal(old.Data, &data); err != nil {
		return domain.Job{}, nerr.Internal("decode historical spec", err)
	}
	return e.Put(ctx, name, data)
}

// Delete marks the job for destruction, removes its cron schedule, and
// emits Destroying; the reconciler performs the actual teardown (§4.4 step 5).
func (e *JobEngine) Delete(ctx context.Context, name string) error {
	e.sched.Remove(name)
	status, err := e.statuses.ReadByPK(ctx, name)
	if err != nil {
		return err
	}
	status.Advance(domain.StatusDestroy)
	if err := e.statuses.UpdateByPK(ctx, name, status); err != nil {
		return err
	}
	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionDestroying, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: name, Kind: domain.ActorJob}, ""))
	return nil
}

// Start marks the job wanted=Start and emits Starting; the reconciler runs
// the container sequence (§4.4 step 6).
func (e *JobEngine) Start(ctx context.Context, name string) error {
	status, err := e.statuses.ReadByPK(ctx, name)
	if err != nil {
		return err
	}
	status.Advance(domain.StatusStart)
	if err := e.statuses.UpdateByPK(ctx, name, status); err != nil {
		return err
	}
	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionStarting, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: name, Kind: domain.ActorJob}, ""))
	return nil
}

// Destroy removes every process the job recorded, plus its history and
// status row, then deletes the job itself (§4.6 wanted=Destroy).
func (e *JobEngine) Destroy(ctx context.Context, name string) error {
	all, err := e.processes.ReadBy(ctx, store.NewFilter().With("kind_key", store.Eq(name)))
	if err != nil {
		return err
	}
	ids := make([]string, len(all))
	for i, p := range all {
		ids[i] = p.Key
	}
	if err := e.proc.DeleteProcesses(ctx, ids); err != nil {
		e.log.WithError(err).Warn("job destroy: failed removing some processes")
	}
	_ = e.processes.DeleteBy(ctx, store.NewFilter().With("kind_key", store.Eq(name)))
	_ = e.specs.DeleteBy(ctx, store.NewFilter().With("kind_key", store.Eq(name)))
	_ = e.statuses.DeleteByPK(ctx, name)
	if err := e.jobs.DeleteByPK(ctx, name); err != nil {
		return err
	}
	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionDestroy, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: name, Kind: domain.ActorJob}, ""))
	return nil
}

// Run executes a job's containers sequentially, used by the reconciler for
// wanted=Start and by the cron scheduler on each firing (§4.4 job run
// loop). Each container must exit 0 before the next starts; a non-zero
// exit stops the sequence and settles actual=Fail.
func (e *JobEngine) Run(ctx context.Context, name string) error {
	job, err := e.jobs.ReadByPK(ctx, name)
	if err != nil {
		return err
	}
	var data domain.JobSpecData
	if err := json.Unmarshal(job.Spec.Data, &data); err != nil {
		return nerr.Internal("decode job spec", err)
	}
	secrets, err := e.resolveSecrets(ctx, data.Secrets)
	if err != nil {
		return err
	}

	for ordinal, containerSpec := range data.Containers {
		result, err := e.proc.RunJobStep(ctx, name, ordinal, containerSpec, secrets)
		if err != nil {
			e.settleFail(ctx, name, err.Error())
			return err
		}
		if err := e.processes.Create(ctx, result.Process); err != nil {
			e.log.WithError(err).Warn("job run: failed recording process")
		}
		if result.StatusCode != 0 {
			note := fmt.Sprintf("container %d exited with status %d", ordinal, result.StatusCode)
			e.settleFail(ctx, name, note)
			return nerr.Interrupted(note)
		}
	}

	status, err := e.statuses.ReadByPK(ctx, name)
	if err != nil {
		return err
	}
	status.Settle(domain.StatusFinish)
	if err := e.statuses.UpdateByPK(ctx, name, status); err != nil {
		return err
	}
	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionStart, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: name, Kind: domain.ActorJob}, "job finished"))
	return nil
}

func (e *JobEngine) settleFail(ctx context.Context, name, note string) {
	status, err := e.statuses.ReadByPK(ctx, name)
	if err != nil {
		return
	}
	status.Settle(domain.StatusFail)
	_ = e.statuses.UpdateByPK(ctx, name, status)
	e.bus.SpawnEmit(buildEvent(domain.EventWarning, domain.ActionStart, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: name, Kind: domain.ActorJob}, note))
}

func (e *JobEngine) resolveSecrets(ctx context.Context, keys []string) ([]domain.Secret, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return e.secrets.ReadBy(ctx, store.NewFilter().With("key", store.In(keys)))
}

func (e *JobEngine) registerSchedule(name, expr string) error {
	return e.sched.Register(name, expr, func(ctx context.Context) error {
		return e.Run(ctx, name)
	})
}
