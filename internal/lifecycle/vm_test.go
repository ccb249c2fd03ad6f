package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/nanocl-io/nanocld/internal/config"
	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/engine"
	"github.com/nanocl-io/nanocld/internal/eventbus"
	"github.com/nanocl-io/nanocld/internal/process"
	"github.com/nanocl-io/nanocld/internal/store"
	"github.com/nanocl-io/nanocld/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

func newTestVMEngine(t *testing.T, srv string) (*VMEngine, store.Repo[domain.VMImage], store.Repo[domain.Status]) {
	t.Helper()
	eng, err := engine.New(engine.Config{Endpoint: srv})
	require.NoError(t, err)
	cfg := &config.Config{Hostname: "node-1", Gateway: "10.0.0.1", StateDir: t.TempDir()}
	layer := process.New(eng, cfg, nil)

	vms := memstore.New(memstore.Mapper[domain.VM]{
		PK:        func(v domain.VM) string { return v.Key },
		CreatedAt: func(domain.VM) time.Time { return time.Now() },
		Kind:      "vm",
	})
	images := memstore.New(memstore.Mapper[domain.VMImage]{
		PK:        func(i domain.VMImage) string { return i.Name },
		CreatedAt: func(domain.VMImage) time.Time { return time.Now() },
		Kind:      "vm_image",
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

	require.NoError(t, images.Create(context.Background(), domain.VMImage{
		Name: "ubuntu-22.04", Kind: domain.VMImageBase, Path: "/var/lib/nanocl/vms/ubuntu.img",
	}))

	bus := eventbus.New(10, time.Hour, nil)
	e := NewVMEngine(vms, images, specs, statuses, processes, secrets, bus, layer, "node-1", nil)
	return e, images, statuses
}

func TestVMCreateRejectsUnknownImage(t *testing.T) {
	fake := newFakeDockerEngine()
	srv := fake.server(t)
	defer srv.Close()
	e, _, _ := newTestVMEngine(t, srv.URL)

	_, err := e.Create(context.Background(), "demo", "box", domain.VMSpecData{ImageRef: "missing"})
	require.Error(t, err)
}

func TestVMLifecycleCreateStartStop(t *testing.T) {
	fake := newFakeDockerEngine()
	srv := fake.server(t)
	defer srv.Close()
	e, _, statuses := newTestVMEngine(t, srv.URL)

	ctx := context.Background()
	vm, err := e.Create(ctx, "demo", "box", domain.VMSpecData{ImageRef: "ubuntu-22.04", CPU: 2, Memory: 2048})
	require.NoError(t, err)

	require.NoError(t, e.Start(ctx, vm.Key))
	require.NoError(t, e.BringUp(ctx, vm.Key))

	status, err := statuses.ReadByPK(ctx, vm.Key)
	require.NoError(t, err)
	require.Equal(t, domain.StatusStart, status.Actual)

	require.NoError(t, e.Stop(ctx, vm.Key))
	require.NoError(t, e.TearDown(ctx, vm.Key))

	status, err = statuses.ReadByPK(ctx, vm.Key)
	require.NoError(t, err)
	require.Equal(t, domain.StatusStop, status.Actual)
}

func TestDeleteImageRefusedWhileSnapshotsExist(t *testing.T) {
	fake := newFakeDockerEngine()
	srv := fake.server(t)
	defer srv.Close()
	e, images, _ := newTestVMEngine(t, srv.URL)

	ctx := context.Background()
	require.NoError(t, images.Create(ctx, domain.VMImage{
		Name: "ubuntu-22.04-snap1", Kind: domain.VMImageSnapshot, Parent: "ubuntu-22.04", Path: "/tmp/snap1.img",
	}))

	err := e.DeleteImage(ctx, "ubuntu-22.04")
	require.Error(t, err)
}
