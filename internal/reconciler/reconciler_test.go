package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/nanocl-io/nanocld/internal/config"
	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/engine"
	"github.com/nanocl-io/nanocld/internal/eventbus"
	"github.com/nanocl-io/nanocld/internal/jobsched"
	"github.com/nanocl-io/nanocld/internal/lifecycle"
	"github.com/nanocl-io/nanocld/internal/process"
	"github.com/nanocl-io/nanocld/internal/store"
	"github.com/nanocl-io/nanocld/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

type testHarness struct {
	bus       *eventbus.Bus
	cargo     *lifecycle.CargoEngine
	job       *lifecycle.JobEngine
	vm        *lifecycle.VMEngine
	statuses  store.Repo[domain.Status]
	processes store.Repo[domain.Process]
	images    store.Repo[domain.VMImage]
}

func newTestHarness(t *testing.T, srv string) *testHarness {
	t.Helper()
	eng, err := engine.New(engine.Config{Endpoint: srv})
	require.NoError(t, err)
	cfg := &config.Config{Hostname: "node-1", Gateway: "10.0.0.1", StateDir: t.TempDir()}
	layer := process.New(eng, cfg, nil)
	bus := eventbus.New(10, time.Hour, nil)

	cargoes := memstore.New(memstore.Mapper[domain.Cargo]{
		PK: func(c domain.Cargo) string { return c.Key }, CreatedAt: func(domain.Cargo) time.Time { return time.Now() }, Kind: "cargo",
	})
	jobs := memstore.New(memstore.Mapper[domain.Job]{
		PK: func(j domain.Job) string { return j.Name }, CreatedAt: func(domain.Job) time.Time { return time.Now() }, Kind: "job",
	})
	vms := memstore.New(memstore.Mapper[domain.VM]{
		PK: func(v domain.VM) string { return v.Key }, CreatedAt: func(domain.VM) time.Time { return time.Now() }, Kind: "vm",
	})
	images := memstore.New(memstore.Mapper[domain.VMImage]{
		PK: func(i domain.VMImage) string { return i.Name }, CreatedAt: func(domain.VMImage) time.Time { return time.Now() }, Kind: "vm_image",
	})
	specs := memstore.New(memstore.Mapper[domain.Spec]{
		PK: func(s domain.Spec) string { return s.ID }, CreatedAt: func(s domain.Spec) time.Time { return s.CreatedAt }, Kind: "spec",
	})
	statuses := memstore.New(memstore.Mapper[domain.Status]{
		PK: func(s domain.Status) string { return s.KindKey }, CreatedAt: func(domain.Status) time.Time { return time.Now() }, Kind: "status",
	})
	processes := memstore.New(memstore.Mapper[domain.Process]{
		PK: func(p domain.Process) string { return p.Key }, CreatedAt: func(p domain.Process) time.Time { return p.CreatedAt }, Kind: "process",
	})
	secrets := memstore.New(memstore.Mapper[domain.Secret]{
		PK: func(s domain.Secret) string { return s.Key }, CreatedAt: func(domain.Secret) time.Time { return time.Now() }, Kind: "secret",
	})

	require.NoError(t, images.Create(context.Background(), domain.VMImage{
		Name: "ubuntu-22.04", Kind: domain.VMImageBase, Path: "/var/lib/nanocl/vms/ubuntu.img",
	}))

	cargoEngine := lifecycle.NewCargoEngine(cargoes, specs, statuses, processes, secrets, bus, layer, "node-1", 50*time.Millisecond, nil)
	jobEngine := lifecycle.NewJobEngine(jobs, specs, statuses, processes, secrets, bus, layer, jobsched.New(nil), "node-1", nil)
	vmEngine := lifecycle.NewVMEngine(vms, images, specs, statuses, processes, secrets, bus, layer, "node-1", nil)

	return &testHarness{bus: bus, cargo: cargoEngine, job: jobEngine, vm: vmEngine, statuses: statuses, processes: processes, images: images}
}

func demoCargoSpec() domain.CargoSpecData {
	return domain.CargoSpecData{
		Container:   domain.ContainerSpec{Image: "nginx:alpine"},
		Replication: domain.Replication{Mode: domain.ReplicationStatic, Number: 1},
	}
}

func TestReconcilerBringsUpCargoOnStarting(t *testing.T) {
	fake := newFakeDockerEngine()
	srv := fake.server(t)
	defer srv.Close()
	h := newTestHarness(t, srv.URL)

	r := New(h.statuses, h.bus, h.cargo, h.job, h.vm, "node-1", nil)
	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	defer r.Stop(ctx)

	cargo, err := h.cargo.Create(ctx, "default", "web", demoCargoSpec())
	require.NoError(t, err)
	require.NoError(t, h.cargo.Start(ctx, cargo.Key))

	require.Eventually(t, func() bool {
		status, err := h.statuses.ReadByPK(ctx, cargo.Key)
		return err == nil && status.Actual == domain.StatusStart
	}, time.Second, 10*time.Millisecond)
}

func TestReconcilerTearsDownCargoOnStopping(t *testing.T) {
	fake := newFakeDockerEngine()
	srv := fake.server(t)
	defer srv.Close()
	h := newTestHarness(t, srv.URL)

	r := New(h.statuses, h.bus, h.cargo, h.job, h.vm, "node-1", nil)
	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	defer r.Stop(ctx)

	cargo, err := h.cargo.Create(ctx, "default", "web", demoCargoSpec())
	require.NoError(t, err)
	require.NoError(t, h.cargo.Start(ctx, cargo.Key))
	require.Eventually(t, func() bool {
		status, err := h.statuses.ReadByPK(ctx, cargo.Key)
		return err == nil && status.Actual == domain.StatusStart
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, h.cargo.Stop(ctx, cargo.Key))
	require.Eventually(t, func() bool {
		status, err := h.statuses.ReadByPK(ctx, cargo.Key)
		return err == nil && status.Actual == domain.StatusStop
	}, time.Second, 10*time.Millisecond)
}

func TestReconcilerDestroysVMOnDestroying(t *testing.T) {
	fake := newFakeDockerEngine()
	srv := fake.server(t)
	defer srv.Close()
	h := newTestHarness(t, srv.URL)

	r := New(h.statuses, h.bus, h.cargo, h.job, h.vm, "node-1", nil)
	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	defer r.Stop(ctx)

	vm, err := h.vm.Create(ctx, "default", "box", domain.VMSpecData{ImageRef: "ubuntu-22.04"})
	require.NoError(t, err)
	require.NoError(t, h.vm.Delete(ctx, vm.Key))

	require.Eventually(t, func() bool {
		_, err := h.statuses.ReadByPK(ctx, vm.Key)
		return err != nil
	}, time.Second, 10*time.Millisecond, "vm status row should be removed after Destroy")
}

func TestReconcilerRunsJobOnStarting(t *testing.T) {
	fake := newFakeDockerEngine()
	srv := fake.server(t)
	defer srv.Close()
	h := newTestHarness(t, srv.URL)

	r := New(h.statuses, h.bus, h.cargo, h.job, h.vm, "node-1", nil)
	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	defer r.Stop(ctx)

	job, err := h.job.Create(ctx, "migrate", domain.JobSpecData{
		Containers: []domain.ContainerSpec{{Image: "alpine", Cmd: []string{"echo", "hi"}}},
	})
	require.NoError(t, err)
	require.NoError(t, h.job.Start(ctx, job.Name))

	require.Eventually(t, func() bool {
		status, err := h.statuses.ReadByPK(ctx, job.Name)
		return err == nil && status.Actual == domain.StatusFinish
	}, time.Second, 10*time.Millisecond)
}
