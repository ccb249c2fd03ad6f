package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/nanocl-io/nanocld/internal/config"
	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/engine"
	"github.com/nanocl-io/nanocld/internal/eventbus"
	"github.com/nanocl-io/nanocld/internal/jobsched"
	"github.com/nanocl-io/nanocld/internal/process"
	"github.com/nanocl-io/nanocld/internal/store"
	"github.com/nanocl-io/nanocld/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

func newTestJobEngine(t *testing.T, srv string) (*JobEngine, store.Repo[domain.Status], store.Repo[domain.Process]) {
	t.Helper()
	eng, err := engine.New(engine.Config{Endpoint: srv})
	require.NoError(t, err)
	cfg := &config.Config{Hostname: "node-1", Gateway: "10.0.0.1", StateDir: t.TempDir()}
	layer := process.New(eng, cfg, nil)

	jobs := memstore.New(memstore.Mapper[domain.Job]{
		PK:        func(j domain.Job) string { return j.Name },
		CreatedAt: func(domain.Job) time.Time { return time.Now() },
		Kind:      "job",
	})
	specs := memstore.New(memstore.Mapper[domain.Spec]{
		PK:        func(s domain.Spec) string { return s.ID },
		CreatedAt: func(s domain.Spec) time.Time { return s.CreatedAt },
		Kind:      "spec",
	})
	statuses := memstore.New(memstore.Mapper[domain.Status]{
		PK:        func(s domain.Status) string { return s.KindKey },
		CreatedAt: func(domain.Status) time.Time { return time.Now() },
		Kind:      "status",
	})
	processes := memstore.New(memstore.Mapper[domain.Process]{
		PK:        func(p domain.Process) string { return p.Key },
		CreatedAt: func(p domain.Process) time.Time { return p.CreatedAt },
		Kind:      "process",
	})
	secrets := memstore.New(memstore.Mapper[domain.Secret]{
		PK:        func(s domain.Secret) string { return s.Key },
		CreatedAt: func(domain.Secret) time.Time { return time.Now() },
		Kind:      "secret",
	})

	bus := eventbus.New(10, time.Hour, nil)
	sched := jobsched.New(nil)
	e := NewJobEngine(jobs, specs, statuses, processes, secrets, bus, layer, sched, "node-1", nil)
	return e, statuses, processes
}

func demoJobSpec() domain.JobSpecData {
	return domain.JobSpecData{
		Containers: []domain.ContainerSpec{
			{Image: "alpine", Cmd: []string{"echo", "step-1"}},
			{Image: "alpine", Cmd: []string{"echo", "step-2"}},
		},
	}
}

func TestJobRunExecutesContainersSequentiallyAndFinishes(t *testing.T) {
	fake := newFakeDockerEngine()
	srv := fake.server(t)
	defer srv.Close()
	e, statuses, processes := newTestJobEngine(t, srv.URL)

	ctx := context.Background()
	job, err := e.Create(ctx, "migrate", demoJobSpec())
	require.NoError(t, err)

	require.NoError(t, e.Run(ctx, job.Name))

	status, err := statuses.ReadByPK(ctx, job.Name)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinish, status.Actual)

	procs, err := processes.ReadBy(ctx, store.NewFilter().With("kind_key", store.Eq(job.Name)))
	require.NoError(t, err)
	require.Len(t, procs, 2)
}

func TestJobRunStopsAtFirstNonZeroExit(t *testing.T) {
	fake := newFakeDockerEngine()
	srv := fake.server(t)
	defer srv.Close()
	e, statuses, processes := newTestJobEngine(t, srv.URL)

	ctx := context.Background()
	job, err := e.Create(ctx, "migrate", demoJobSpec())
	require.NoError(t, err)

	// The first container created by this engine instance will be ct-1.
	fake.setExitCode("ct-1", 1)

	err = e.Run(ctx, job.Name)
	require.Error(t, err)

	status, err := statuses.ReadByPK(ctx, job.Name)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFail, status.Actual)

	procs, err := processes.ReadBy(ctx, store.NewFilter().With("kind_key", store.Eq(job.Name)))
	require.NoError(t, err)
	require.Len(t, procs, 1, "the second container must never run after the first fails")
}

func TestJobCreateWithScheduleRegistersCron(t *testing.T) {
	fake := newFakeDockerEngine()
	srv := fake.server(t)
	defer srv.Close()
	e, _, _ := newTestJobEngine(t, srv.URL)

	spec := demoJobSpec()
	spec.Schedule = "@every 1h"
	_, err := e.Create(context.Background(), "nightly", spec)
	require.NoError(t, err)
}
