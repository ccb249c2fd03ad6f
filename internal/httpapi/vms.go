package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/nerr"
	"github.com/nanocl-io/nanocld/internal/store"
)

func (s *Server) registerVMRoutes(r *mux.Router) {
	r.HandleFunc("/vms", s.listVMs).Methods(http.MethodGet)
	r.HandleFunc("/vms", s.createVM).Methods(http.MethodPost)
	r.HandleFunc("/vms/count", s.countVMs).Methods(http.MethodGet)
	r.HandleFunc("/vms/{name}", s.putVM).Methods(http.MethodPut)
	r.HandleFunc("/vms/{name}", s.deleteVM).Methods(http.MethodDelete)
	r.HandleFunc("/vms/{name}/inspect", s.inspectVM).Methods(http.MethodGet)
	r.HandleFunc("/vms/{name}/histories", s.vmHistories).Methods(http.MethodGet)
	r.HandleFunc("/vms/{name}/histories/{spec_id}/revert", s.revertVM).Methods(http.MethodPatch)
	r.HandleFunc("/vms/{name}/start", s.startVM).Methods(http.MethodPost)
	r.HandleFunc("/vms/{name}/stop", s.stopVM).Methods(http.MethodPost)
	r.HandleFunc("/vms/{name}/attach", s.attachVM).Methods(http.MethodGet)
}

func (s *Server) listVMs(w http.ResponseWriter, r *http.Request) {
	vms, err := s.store.VMs.ReadBy(r.Context(), store.NewFilter())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vms)
}

func (s *Server) countVMs(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.VMs.CountBy(r.Context(), store.NewFilter())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) createVM(w http.ResponseWriter, r *http.Request) {
	var data domain.VMSpecData
	if err := decodeJSON(r, &data); err != nil {
		writeErr(w, err)
		return
	}
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		namespace = domain.DefaultNamespace
	}
	vm, err := s.vm.Create(r.Context(), namespace, data.Name, data)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, vm)
}

func (s *Server) putVM(w http.ResponseWriter, r *http.Request) {
	var data domain.VMSpecData
	if err := decodeJSON(r, &data); err != nil {
		writeErr(w, err)
		return
	}
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	vm, err := s.vm.Put(r.Context(), key, data)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

func (s *Server) deleteVM(w http.ResponseWriter, r *http.Request) {
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	if err := s.vm.Delete(r.Context(), key); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) inspectVM(w http.ResponseWriter, r *http.Request) {
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	vm, err := s.store.VMs.ReadByPK(r.Context(), key)
	if err != nil {
		writeErr(w, err)
		return
	}
	status, err := s.store.Statuses.ReadByPK(r.Context(), key)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		domain.VM
		Status domain.Status `json:"status"`
	}{vm, status})
}

func (s *Server) vmHistories(w http.ResponseWriter, r *http.Request) {
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	specs, err := s.store.Specs.ReadBy(r.Context(), store.NewFilter().With("kind_key", store.Eq(key)))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, specs)
}

func (s *Server) revertVM(w http.ResponseWriter, r *http.Request) {
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	vm, err := s.vm.Revert(r.Context(), key, pathVar(r, "spec_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

func (s *Server) startVM(w http.ResponseWriter, r *http.Request) {
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	if err := s.vm.Start(r.Context(), key); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) stopVM(w http.ResponseWriter, r *http.Request) {
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	if err := s.vm.Stop(r.Context(), key); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// detachSequence is the ctrl-c byte a client sends to end an attach session
// without stopping the VM's process (§4.7).
const detachSequence = byte(0x03)

const attachHeartbeat = 15 * time.Second

// attachVM bridges a WebSocket connection to the VM's single engine process
// attach stream (stdin/stdout/stderr), with a periodic heartbeat ping and a
// ctrl-c byte sequence that detaches without killing the process.
func (s *Server) attachVM(w http.ResponseWriter, r *http.Request) {
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	procs, err := s.store.Processes.ReadBy(r.Context(), store.NewFilter().With("kind_key", store.Eq(key)).WithLimit(1))
	if err != nil {
		writeErr(w, err)
		return
	}
	if len(procs) == 0 {
		writeErr(w, nerr.NotFound("process", key))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("vm attach: websocket upgrade failed")
		return
	}
	defer conn.Close()

	stream, err := s.eng.AttachStream(r.Context(), procs[0].Key)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}
	defer stream.Close()

	done := make(chan struct{})
	go s.pumpAttachOutput(conn, stream, done)
	s.pumpAttachInput(conn, stream, done)
}

func (s *Server) pumpAttachOutput(conn *websocket.Conn, stream io.Reader, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) pumpAttachInput(conn *websocket.Conn, stream io.Writer, done <-chan struct{}) {
	ticker := time.NewTicker(attachHeartbeat)
	defer ticker.Stop()

	msgCh := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			msgCh <- data
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case err := <-errCh:
			_ = err
			return
		case data := <-msgCh:
			if len(data) == 1 && data[0] == detachSequence {
				return
			}
			if _, err := stream.Write(data); err != nil {
				return
			}
		}
	}
}
