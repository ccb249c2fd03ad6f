package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/store"
)

func (s *Server) registerResourceRoutes(r *mux.Router) {
	r.HandleFunc("/resources", s.listResources).Methods(http.MethodGet)
	r.HandleFunc("/resources", s.createResource).Methods(http.MethodPost)
	r.HandleFunc("/resources/count", s.countResources).Methods(http.MethodGet)
	r.HandleFunc("/resources/{name}", s.inspectResource).Methods(http.MethodGet)
	r.HandleFunc("/resources/{name}", s.deleteResource).Methods(http.MethodDelete)

	r.HandleFunc("/resource_kinds", s.listResourceKinds).Methods(http.MethodGet)
	r.HandleFunc("/resource_kinds/{name}", s.inspectResourceKind).Methods(http.MethodGet)
}

func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	f := store.NewFilter()
	if kind := r.URL.Query().Get("kind"); kind != "" {
		f.With("kind", store.Eq(kind))
	}
	resources, err := s.store.Resources.ReadBy(r.Context(), f)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resources)
}

func (s *Server) countResources(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Resources.CountBy(r.Context(), store.NewFilter())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	var resource domain.Resource
	if err := decodeJSON(r, &resource); err != nil {
		writeErr(w, err)
		return
	}
	created, err := s.res.HookCreate(r.Context(), resource)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) inspectResource(w http.ResponseWriter, r *http.Request) {
	resource, err := s.store.Resources.ReadByPK(r.Context(), pathVar(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resource)
}

func (s *Server) deleteResource(w http.ResponseWriter, r *http.Request) {
	resource, err := s.store.Resources.ReadByPK(r.Context(), pathVar(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.res.HookDelete(r.Context(), resource); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listResourceKinds(w http.ResponseWriter, r *http.Request) {
	kinds, err := s.store.ResourceKinds.ReadBy(r.Context(), store.NewFilter())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kinds)
}

func (s *Server) inspectResourceKind(w http.ResponseWriter, r *http.Request) {
	kind, err := s.store.ResourceKinds.ReadByPK(r.Context(), pathVar(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kind)
}
