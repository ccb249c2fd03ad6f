// Command nanocld is the daemon entry point: it loads configuration, wires
// the store, event bus, process layer, lifecycle engines, reconciler, job
// scheduler, and HTTP surface, then serves until SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nanocl-io/nanocld/internal/config"
	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/engine"
	"github.com/nanocl-io/nanocld/internal/eventbus"
	"github.com/nanocl-io/nanocld/internal/httpapi"
	"github.com/nanocl-io/nanocld/internal/jobsched"
	"github.com/nanocl-io/nanocld/internal/lifecycle"
	"github.com/nanocl-io/nanocld/internal/metrics"
	"github.com/nanocl-io/nanocld/internal/process"
	"github.com/nanocl-io/nanocld/internal/reconciler"
	"github.com/nanocl-io/nanocld/internal/resourcekind"
	"github.com/nanocl-io/nanocld/internal/store"
	"github.com/nanocl-io/nanocld/internal/storeset"
	"github.com/nanocl-io/nanocld/pkg/logger"
)

// metricsPollInterval governs how often the event bus and process-store
// gauges are refreshed; both are cheap, cumulative reads, so this just
// bounds /metrics staleness rather than protecting anything from load.
const metricsPollInterval = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	lg := logger.New(logger.LoggingConfig{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stdout"})
	lg.Infof("starting nanocld on %s (env=%s)", cfg.Hostname, cfg.Env)

	set, closeStore := buildStoreSet(cfg, lg)
	defer closeStore()

	eng, err := engine.New(engine.Config{Endpoint: cfg.EngineEndpoint})
	if err != nil {
		lg.Fatalf("build engine client: %v", err)
	}

	proc := process.New(eng, cfg, lg)
	bus := eventbus.New(cfg.EventQueueCapacity, cfg.EventLivenessEvery, lg)

	sched := jobsched.New(lg)
	cargoEngine := lifecycle.NewCargoEngine(set.Cargoes, set.Specs, set.Statuses, set.Processes, set.Secrets, bus, proc, cfg.Hostname, cfg.UpdateDrain, lg)
	jobEngine := lifecycle.NewJobEngine(set.Jobs, set.Specs, set.Statuses, set.Processes, set.Secrets, bus, proc, sched, cfg.Hostname, lg)
	vmEngine := lifecycle.NewVMEngine(set.VMs, set.VMImages, set.Specs, set.Statuses, set.Processes, set.Secrets, bus, proc, cfg.Hostname, lg)
	resourceEngine := lifecycle.NewResourceEngine(set.Resources, set.ResourceKinds, resourcekind.NewValidator(), resourcekind.NewControllerClient(), bus, cfg.Hostname, lg)

	rec := reconciler.New(set.Statuses, bus, cargoEngine, jobEngine, vmEngine, cfg.Hostname, lg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus.Start(ctx)
	if err := rec.Start(ctx); err != nil {
		lg.Fatalf("start reconciler: %v", err)
	}
	if err := sched.Start(ctx); err != nil {
		lg.Fatalf("start job scheduler: %v", err)
	}

	var promRegisterer prometheus.Registerer = prometheus.DefaultRegisterer
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New(promRegisterer)
		rec.SetMetrics(m)
		go pollMetrics(ctx, m, bus, set.Processes, lg)
	}

	srv := httpapi.New(set, bus, eng, proc, cargoEngine, jobEngine, vmEngine, resourceEngine, m, cfg.Hostname, lg)
	httpServer := &http.Server{
		Handler:           srv.Router(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	ln, err := listen(cfg.Listen)
	if err != nil {
		lg.Fatalf("listen on %s: %v", cfg.Listen, err)
	}

	go func() {
		lg.Infof("listening on %s", cfg.Listen)
		if serveErr := httpServer.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			lg.Fatalf("http server: %v", serveErr)
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		lg.Errorf("http server shutdown: %v", err)
	}
	if err := rec.Stop(shutdownCtx); err != nil {
		lg.Errorf("reconciler stop: %v", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		lg.Errorf("job scheduler stop: %v", err)
	}
	bus.Stop()
	lg.Info("stopped")
}

// buildStoreSet opens a Postgres-backed set when NANOCL_STORE_ENDPOINT
// resolves to a reachable database, falling back to the in-memory set for
// development and testing (§2 Ambient Stack).
func buildStoreSet(cfg *config.Config, lg *logger.Logger) (*storeset.Set, func()) {
	if cfg.IsTesting() {
		lg.Info("testing environment: using in-memory store")
		return storeset.NewMemory(), func() {}
	}

	db, err := sql.Open("postgres", cfg.StoreEndpoint)
	if err != nil {
		lg.Warnf("open store: %v; falling back to in-memory store", err)
		return storeset.NewMemory(), func() {}
	}
	db.SetMaxOpenConns(cfg.StoreMaxOpenConns)
	db.SetConnMaxIdleTime(cfg.StoreIdleTimeout)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		lg.Warnf("ping store: %v; falling back to in-memory store", err)
		_ = db.Close()
		return storeset.NewMemory(), func() {}
	}

	return storeset.NewPostgres(db), func() { _ = db.Close() }
}

// pollMetrics snapshots the event bus's dispatcher counters and the
// per-kind live process counts into their gauges every metricsPollInterval,
// until ctx is cancelled.
func pollMetrics(ctx context.Context, m *metrics.Metrics, bus *eventbus.Bus, processes store.Repo[domain.Process], lg *logger.Logger) {
	ticker := time.NewTicker(metricsPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := bus.Stats()
			m.ObserveEventBus(metrics.EventBusStats{
				SubscriberCount: stats.SubscriberCount,
				EventsEmitted:   stats.EventsEmitted,
				EventsDropped:   stats.EventsDropped,
			})

			for _, kind := range []domain.ProcessKind{domain.ProcessKindCargo, domain.ProcessKindJob, domain.ProcessKindVM} {
				n, err := processes.CountBy(ctx, store.NewFilter().With("kind", store.Eq(string(kind))))
				if err != nil {
					lg.WithError(err).Warn("count processes for metrics")
					continue
				}
				m.SetProcessCount(string(kind), n)
			}
		}
	}
}

// listen resolves a "unix:///path" or "tcp://host:port" NANOCL_LISTEN value
// into a net.Listener, mirroring the engine client's own endpoint parsing.
func listen(addr string) (net.Listener, error) {
	switch {
	case strings.HasPrefix(addr, "unix://"):
		path := strings.TrimPrefix(addr, "unix://")
		_ = os.Remove(path)
		return net.Listen("unix", path)
	case strings.HasPrefix(addr, "tcp://"):
		return net.Listen("tcp", strings.TrimPrefix(addr, "tcp://"))
	default:
		return net.Listen("tcp", addr)
	}
}
