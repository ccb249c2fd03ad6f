package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/lifecycle"
	"github.com/nanocl-io/nanocld/internal/store"
)

func (s *Server) registerCargoRoutes(r *mux.Router) {
	r.HandleFunc("/cargoes", s.listCargoes).Methods(http.MethodGet)
	r.HandleFunc("/cargoes", s.createCargo).Methods(http.MethodPost)
	r.HandleFunc("/cargoes/count", s.countCargoes).Methods(http.MethodGet)
	r.HandleFunc("/cargoes/{name}", s.putCargo).Methods(http.MethodPut)
	r.HandleFunc("/cargoes/{name}", s.patchCargo).Methods(http.MethodPatch)
	r.HandleFunc("/cargoes/{name}", s.deleteCargo).Methods(http.MethodDelete)
	r.HandleFunc("/cargoes/{name}/inspect", s.inspectCargo).Methods(http.MethodGet)
	r.HandleFunc("/cargoes/{name}/histories", s.cargoHistories).Methods(http.MethodGet)
	r.HandleFunc("/cargoes/{name}/histories/{spec_id}/revert", s.revertCargo).Methods(http.MethodPatch)
	r.HandleFunc("/cargoes/{name}/start", s.startCargo).Methods(http.MethodPost)
	r.HandleFunc("/cargoes/{name}/stop", s.stopCargo).Methods(http.MethodPost)
}

func cargoFilter(r *http.Request) *store.Filter {
	f := store.NewFilter()
	if ns := r.URL.Query().Get("namespace"); ns != "" {
		f.With("namespace_name", store.Eq(ns))
	}
	return f
}

func (s *Server) listCargoes(w http.ResponseWriter, r *http.Request) {
	cargoes, err := s.store.Cargoes.ReadBy(r.Context(), cargoFilter(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cargoes)
}

func (s *Server) countCargoes(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Cargoes.CountBy(r.Context(), cargoFilter(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) createCargo(w http.ResponseWriter, r *http.Request) {
	var data domain.CargoSpecData
	if err := decodeJSON(r, &data); err != nil {
		writeErr(w, err)
		return
	}
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		namespace = domain.DefaultNamespace
	}
	cargo, err := s.cargo.Create(r.Context(), namespace, data.Name, data)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cargo)
}

func (s *Server) putCargo(w http.ResponseWriter, r *http.Request) {
	var data domain.CargoSpecData
	if err := decodeJSON(r, &data); err != nil {
		writeErr(w, err)
		return
	}
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	cargo, err := s.cargo.Put(r.Context(), key, data)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cargo)
}

func (s *Server) patchCargo(w http.ResponseWriter, r *http.Request) {
	var patch lifecycle.CargoPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeErr(w, err)
		return
	}
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	cargo, err := s.cargo.Patch(r.Context(), key, patch)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cargo)
}

func (s *Server) deleteCargo(w http.ResponseWriter, r *http.Request) {
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	if err := s.cargo.Delete(r.Context(), key); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) inspectCargo(w http.ResponseWriter, r *http.Request) {
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	cargo, err := s.store.Cargoes.ReadByPK(r.Context(), key)
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
		domain.Cargo
		Status domain.Status `json:"status"`
	}{cargo, status})
}

func (s *Server) cargoHistories(w http.ResponseWriter, r *http.Request) {
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	specs, err := s.store.Specs.ReadBy(r.Context(), store.NewFilter().With("kind_key", store.Eq(key)))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, specs)
}

func (s *Server) revertCargo(w http.ResponseWriter, r *http.Request) {
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	cargo, err := s.cargo.Revert(r.Context(), key, pathVar(r, "spec_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cargo)
}

func (s *Server) startCargo(w http.ResponseWriter, r *http.Request) {
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	if err := s.cargo.Start(r.Context(), key); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) stopCargo(w http.ResponseWriter, r *http.Request) {
	key := objectKey(pathVar(r, "name"), r.URL.Query().Get("namespace"))
	if err := s.cargo.Stop(r.Context(), key); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
