package httpapi

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
// HTTP API, enough to exercise HTTP handlers that call into the engine
// client without a real container runtime.
type fakeDockerEngine struct {
	mu      sync.Mutex
	next    int
	configs map[string]engine.ContainerConfig
	names   map[string]string
}

func newFakeDockerEngine() *fakeDockerEngine {
	return &fakeDockerEngine{
		configs: make(map[string]engine.ContainerConfig),
		names:   make(map[string]string),
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
			_ = json.NewEncoder(w).Encode(engine.WaitResponse{StatusCode: 0})
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
