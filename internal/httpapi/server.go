// Package httpapi is the daemon's HTTP boundary (§4.7): a resource-style
// REST surface over gorilla/mux, newline-delimited JSON event/log
// streaming, and a WebSocket VM-attach bridge over gorilla/websocket. It
// never embeds domain logic — every handler translates a request into
// calls on a lifecycle engine, store.Repo, or engine client, and translates
// the result (or nerr.Error) back into the wire format.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/engine"
	"github.com/nanocl-io/nanocld/internal/eventbus"
	"github.com/nanocl-io/nanocld/internal/lifecycle"
	"github.com/nanocl-io/nanocld/internal/metrics"
	"github.com/nanocl-io/nanocld/internal/nerr"
	"github.com/nanocl-io/nanocld/internal/process"
	"github.com/nanocl-io/nanocld/internal/storeset"
	"github.com/nanocl-io/nanocld/pkg/logger"
)

// Server bundles every collaborator the HTTP surface dispatches into.
type Server struct {
	store   *storeset.Set
	bus     *eventbus.Bus
	eng     *engine.Client
	proc    *process.Layer
	cargo   *lifecycle.CargoEngine
	job     *lifecycle.JobEngine
	vm      *lifecycle.VMEngine
	res     *lifecycle.ResourceEngine
	metrics *metrics.Metrics
	node    string
	log     *logger.Logger
}

// New builds a Server. metrics may be nil to disable the Prometheus route
// and middleware (dev/test mode).
func New(
	set *storeset.Set,
	bus *eventbus.Bus,
	eng *engine.Client,
	proc *process.Layer,
	cargo *lifecycle.CargoEngine,
	job *lifecycle.JobEngine,
	vm *lifecycle.VMEngine,
	res *lifecycle.ResourceEngine,
	m *metrics.Metrics,
	node string,
	log *logger.Logger,
) *Server {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Server{
		store: set, bus: bus, eng: eng, proc: proc,
		cargo: cargo, job: job, vm: vm, res: res,
		metrics: m, node: node, log: log,
	}
}

// Router builds the full mux.Router, wired with logging/metrics middleware
// and every resource-style route of spec.md §4.7.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(s.log))
	if s.metrics != nil {
		r.Use(metricsMiddleware(s.metrics))
		r.Handle("/metrics", promHandler()).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()

	s.registerNamespaceRoutes(v1)
	s.registerCargoRoutes(v1)
	s.registerJobRoutes(v1)
	s.registerVMRoutes(v1)
	s.registerVMImageRoutes(v1)
	s.registerResourceRoutes(v1)
	s.registerSecretRoutes(v1)
	s.registerProcessRoutes(v1)
	s.registerEventRoutes(v1)
	s.registerNodeRoutes(v1)

	return r
}

// --- response helpers -----------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	status := nerr.HTTPStatus(err)
	body := map[string]interface{}{"status": status, "msg": err.Error()}
	if e := nerr.As(err); e != nil {
		body["code"] = e.Code
		if e.Details != nil {
			body["details"] = e.Details
		}
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return nerr.BadRequestf("invalid request body: %v", err)
	}
	return nil
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

// objectKey builds the "<name>.<namespace>" primary key spec.md §4.3
// defines for cargoes and VMs.
func objectKey(name, namespace string) string {
	if namespace == "" {
		namespace = domain.DefaultNamespace
	}
	return name + "." + namespace
}
