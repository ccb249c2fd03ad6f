package httpapi

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nanocl-io/nanocld/internal/nerr"
	"github.com/nanocl-io/nanocld/internal/store"
)

// rawStreamMediaType is the media type spec.md §4.7 assigns to container
// logs and wait responses.
const rawStreamMediaType = "application/vdn.nanocl.raw-stream"

func (s *Server) registerProcessRoutes(r *mux.Router) {
	r.HandleFunc("/processes", s.listProcesses).Methods(http.MethodGet)
	r.HandleFunc("/processes/{kind}/{name}/start", s.startProcess).Methods(http.MethodPost)
	r.HandleFunc("/processes/{kind}/{name}/stop", s.stopProcess).Methods(http.MethodPost)
	r.HandleFunc("/processes/{kind}/{name}/restart", s.restartProcess).Methods(http.MethodPost)
	r.HandleFunc("/processes/{kind}/{name}/kill", s.killProcess).Methods(http.MethodPost)
	r.HandleFunc("/processes/{kind}/{name}/stats", s.statsProcess).Methods(http.MethodGet)
	r.HandleFunc("/processes/{name}/inspect", s.inspectProcess).Methods(http.MethodGet)
	r.HandleFunc("/processes/{name}/wait", s.waitProcess).Methods(http.MethodGet)
	r.HandleFunc("/processes/{name}/logs", s.logsProcess).Methods(http.MethodGet)
}

func (s *Server) listProcesses(w http.ResponseWriter, r *http.Request) {
	f := store.NewFilter()
	if kind := r.URL.Query().Get("kind"); kind != "" {
		f.With("kind", store.Eq(kind))
	}
	if kindKey := r.URL.Query().Get("kind_key"); kindKey != "" {
		f.With("kind_key", store.Eq(kindKey))
	}
	processes, err := s.store.Processes.ReadBy(r.Context(), f)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, processes)
}

func (s *Server) findProcessByName(r *http.Request, name string) (string, error) {
	procs, err := s.store.Processes.ReadBy(r.Context(), store.NewFilter().With("name", store.Eq(name)).WithLimit(1))
	if err != nil {
		return "", err
	}
	if len(procs) == 0 {
		return "", nerr.NotFound("process", name)
	}
	return procs[0].Key, nil
}

func (s *Server) startProcess(w http.ResponseWriter, r *http.Request) {
	id, err := s.findProcessByName(r, pathVar(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.proc.StartProcesses(r.Context(), []string{id}); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) stopProcess(w http.ResponseWriter, r *http.Request) {
	id, err := s.findProcessByName(r, pathVar(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.proc.StopProcess(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// restartProcess stops then starts the process; the engine assigns no new
// container id, so the process's identity (key, name, labels) survives.
func (s *Server) restartProcess(w http.ResponseWriter, r *http.Request) {
	id, err := s.findProcessByName(r, pathVar(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.proc.StopProcess(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.proc.StartProcesses(r.Context(), []string{id}); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// killProcess has no distinct signal-delivery primitive in this core's
// engine client; it stops the container the same way stopProcess does.
func (s *Server) killProcess(w http.ResponseWriter, r *http.Request) {
	s.stopProcess(w, r)
}

func (s *Server) inspectProcess(w http.ResponseWriter, r *http.Request) {
	name := pathVar(r, "name")
	proc, err := s.store.Processes.ReadOneBy(r.Context(), store.NewFilter().With("name", store.Eq(name)))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proc)
}

func (s *Server) waitProcess(w http.ResponseWriter, r *http.Request) {
	id, err := s.findProcessByName(r, pathVar(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	condition := r.URL.Query().Get("condition")
	if condition == "" {
		condition = "not-running"
	}
	result, err := s.eng.WaitContainer(r.Context(), id, condition)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", rawStreamMediaType)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) logsProcess(w http.ResponseWriter, r *http.Request) {
	id, err := s.findProcessByName(r, pathVar(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	follow := r.URL.Query().Get("follow") == "true"
	stream, err := s.eng.LogsStream(r.Context(), id, follow)
	if err != nil {
		writeErr(w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", rawStreamMediaType)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	copyStreamFlushing(w, stream, flusher)
}

func (s *Server) statsProcess(w http.ResponseWriter, r *http.Request) {
	id, err := s.findProcessByName(r, pathVar(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	statsStream, err := s.eng.StatsStream(r.Context(), id, r.URL.Query().Get("stream") == "true")
	if err != nil {
		writeErr(w, err)
		return
	}
	defer statsStream.Close()

	w.Header().Set("Content-Type", rawStreamMediaType)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	copyStreamFlushing(w, statsStream, flusher)
}

// copyStreamFlushing copies src to w in small chunks, flushing after each
// write so a streaming client (follow=true logs, stream=true stats) sees
// data as it arrives instead of buffered at response end.
func copyStreamFlushing(w io.Writer, src io.Reader, flusher http.Flusher) {
	reader := bufio.NewReader(src)
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}
