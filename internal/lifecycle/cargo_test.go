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

func newTestCargoEngine(t *testing.T, srv string) (*CargoEngine, store.Repo[domain.Process], store.Repo[domain.Status]) {
	t.Helper()
	eng, err := engine.New(engine.Config{Endpoint: srv})
	require.NoError(t, err)
	cfg := &config.Config{Hostname: "node-1", Gateway: "10.0.0.1", StateDir: t.TempDir()}
	layer := process.New(eng, cfg, nil)

	cargoes := memstore.New(memstore.Mapper[domain.Cargo]{
		PK:        func(c domain.Cargo) string { return c.Key },
		CreatedAt: func(domain.Cargo) time.Time { return time.Now() },
		Kind:      "cargo",
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
	e := NewCargoEngine(cargoes, specs, statuses, processes, secrets, bus, layer, "node-1", 50*time.Millisecond, nil)
	return e, processes, statuses
}

func demoCargoSpec() domain.CargoSpecData {
	return domain.CargoSpecData{
		Container:   domain.ContainerSpec{Image: "nginx:alpine"},
		Replication: domain.Replication{Mode: domain.ReplicationStatic, Number: 2},
	}
}

func TestCargoCreateSetsStatusCreate(t *testing.T) {
	fake := newFakeDockerEngine()
	srv := fake.server(t)
	defer srv.Close()
	e, _, statuses := newTestCargoEngine(t, srv.URL)

	cargo, err := e.Create(context.Background(), "demo", "api", demoCargoSpec())
	require.NoError(t, err)
	require.Equal(t, "api.demo", cargo.Key)

	status, err := statuses.ReadByPK(context.Background(), "api.demo")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCreate, status.Wanted)
	require.Equal(t, domain.StatusCreate, status.Actual)
}

func TestCargoBringUpCreatesAndStartsReplicas(t *testing.T) {
	fake := newFakeDockerEngine()
	srv := fake.server(t)
	defer srv.Close()
	e, processes, statuses := newTestCargoEngine(t, srv.URL)

	ctx := context.Background()
	cargo, err := e.Create(ctx, "demo", "api", demoCargoSpec())
	require.NoError(t, err)
	require.NoError(t, e.Start(ctx, cargo.Key))
	require.NoError(t, e.BringUp(ctx, cargo.Key))

	procs, err := processes.ReadBy(ctx, store.NewFilter().With("kind_key", store.Eq(cargo.Key)))
	require.NoError(t, err)
	require.Len(t, procs, 2)

	status, err := statuses.ReadByPK(ctx, cargo.Key)
	require.NoError(t, err)
	require.Equal(t, domain.StatusStart, status.Actual)
}

func TestCargoUpdateRenamesOldAndCreatesNew(t *testing.T) {
	fake := newFakeDockerEngine()
	srv := fake.server(t)
	defer srv.Close()
	e, processes, statuses := newTestCargoEngine(t, srv.URL)

	ctx := context.Background()
	cargo, err := e.Create(ctx, "demo", "api", demoCargoSpec())
	require.NoError(t, err)
	require.NoError(t, e.Start(ctx, cargo.Key))
	require.NoError(t, e.BringUp(ctx, cargo.Key))

	oldProcs, err := processes.ReadBy(ctx, store.NewFilter().With("kind_key", store.Eq(cargo.Key)))
	require.NoError(t, err)
	require.Len(t, oldProcs, 2)

	newSpecData := demoCargoSpec()
	newSpecData.Container.Image = "nginx:latest"
	_, err = e.Put(ctx, cargo.Key, newSpecData)
	require.NoError(t, err)

	status, err := statuses.ReadByPK(ctx, cargo.Key)
	require.NoError(t, err)
	require.Equal(t, domain.StatusStart, status.Actual)

	// New processes recorded immediately; old ones still present until the
	// drain window elapses.
	all, err := processes.ReadBy(ctx, store.NewFilter().With("kind_key", store.Eq(cargo.Key)))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(all), 2)

	time.Sleep(150 * time.Millisecond)
	for _, p := range oldProcs {
		_, err := processes.ReadByPK(ctx, p.Key)
		require.Error(t, err, "old process should be cleaned up after the drain window")
	}
}

func TestCargoDestroyRemovesRowsAndProcesses(t *testing.T) {
	fake := newFakeDockerEngine()
	srv := fake.server(t)
	defer srv.Close()
	e, processes, statuses := newTestCargoEngine(t, srv.URL)

	ctx := context.Background()
	cargo, err := e.Create(ctx, "demo", "api", demoCargoSpec())
	require.NoError(t, err)
	require.NoError(t, e.Start(ctx, cargo.Key))
	require.NoError(t, e.BringUp(ctx, cargo.Key))
	require.NoError(t, e.Destroy(ctx, cargo.Key))

	_, err = statuses.ReadByPK(ctx, cargo.Key)
	require.Error(t, err)
	procs, err := processes.ReadBy(ctx, store.NewFilter().With("kind_key", store.Eq(cargo.Key)))
	require.NoError(t, err)
	require.Empty(t, procs)
}
