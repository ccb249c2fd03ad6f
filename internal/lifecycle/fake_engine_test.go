package lifecycle

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nanocl-io/nanocld/internal/engine"
	"github.com/stretchr/testify/require"
)

// fakeDockerEngine is a minimal in-memory stand-in for the Docker-Engine
// HTTP API, enough to exercise the lifecycle engines' process-layer calls
// without a real container runtime.
type fakeDockerEngine struct {
	mu       sync.Mutex
	next     int
	configs  map[string]engine.ContainerConfig
	names    map[string]string
	statuses map[string]int64
}

func newFakeDockerEngine() *fakeDockerEngine {
	return &fakeDockerEngine{
		configs:  make(map[string]engine.ContainerConfig),
		names:    make(map[string]string),
		statuses: make(map[string]int64),
	}
}

func (f *fakeDockerEngine) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	versioned := http.StripPrefix("/v1.43", mux)

	mux.HandleFunc("/containers/create", func(w http.ResponseWriter, r *http.Request) {
		var cfg engine.ContainerConfig
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cfg))

		f.mu.Lock()
		f.next++
		id := fmt.Sprintf("ct-%d", f.next)
		f.configs[id] = cfg
		f.names[id] = r.URL.Query().Get("name")
		f.mu.Unlock()

		_ = json.NewEncoder(w).Encode(engine.CreateResponse{ID: id})
	})

	mux.HandleFunc("/containers/", func(w http.ResponseWriter, r *http.Request) {
		id, action := splitContainerPath(r.URL.Path)
		switch {
		case action == "start" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusNoContent)
		case action == "stop" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusNoContent)
		case action == "rename" && r.Method == http.MethodPost:
			f.mu.Lock()
			f.names[id] = r.URL.Query().Get("name")
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		case action == "wait" && r.Method == http.MethodPost:
			f.mu.Lock()
			code := f.statuses[id]
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(engine.WaitResponse{StatusCode: code})
		case action == "json" && r.Method == http.MethodGet:
			f.mu.Lock()
			cfg := f.configs[id]
			name := f.names[id]
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(engine.InspectResponse{
				ID:     id,
				Name:   name,
				State:  json.RawMessage(`{"Status":"running"}`),
				Config: cfg,
			})
		case action == "" && r.Method == http.MethodDelete:
			f.mu.Lock()
			delete(f.configs, id)
			delete(f.names, id)
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})

	return httptest.NewServer(versioned)
}

// setExitCode makes the next wait on container id report the given status
// code, simulating an init/job container's exit.
func (f *fakeDockerEngine) setExitCode(id string, code int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = code
}

func splitContainerPath(path string) (id, action string) {
	const prefix = "/containers/"
	rest := path[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:]
		}
	}
	return rest, ""
}
