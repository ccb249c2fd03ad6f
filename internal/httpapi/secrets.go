package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/nerr"
	"github.com/nanocl-io/nanocld/internal/store"
)

func (s *Server) registerSecretRoutes(r *mux.Router) {
	r.HandleFunc("/secrets", s.listSecrets).Methods(http.MethodGet)
	r.HandleFunc("/secrets", s.createSecret).Methods(http.MethodPost)
	r.HandleFunc("/secrets/{key}", s.inspectSecret).Methods(http.MethodGet)
	r.HandleFunc("/secrets/{key}", s.deleteSecret).Methods(http.MethodDelete)
}

func (s *Server) listSecrets(w http.ResponseWriter, r *http.Request) {
	secrets, err := s.store.Secrets.ReadBy(r.Context(), store.NewFilter())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, secrets)
}

func (s *Server) createSecret(w http.ResponseWriter, r *http.Request) {
	var secret domain.Secret
	if err := decodeJSON(r, &secret); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.store.Secrets.Create(r.Context(), secret); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, secret)
}

func (s *Server) inspectSecret(w http.ResponseWriter, r *http.Request) {
	secret, err := s.store.Secrets.ReadByPK(r.Context(), pathVar(r, "key"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, secret)
}

func (s *Server) deleteSecret(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Secrets.DeleteByPK(r.Context(), pathVar(r, "key")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) registerNamespaceRoutes(r *mux.Router) {
	r.HandleFunc("/namespaces", s.listNamespaces).Methods(http.MethodGet)
	r.HandleFunc("/namespaces", s.createNamespace).Methods(http.MethodPost)
	r.HandleFunc("/namespaces/{name}", s.inspectNamespace).Methods(http.MethodGet)
	r.HandleFunc("/namespaces/{name}", s.deleteNamespace).Methods(http.MethodDelete)
}

func (s *Server) listNamespaces(w http.ResponseWriter, r *http.Request) {
	namespaces, err := s.store.Namespaces.ReadBy(r.Context(), store.NewFilter())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, namespaces)
}

func (s *Server) createNamespace(w http.ResponseWriter, r *http.Request) {
	var ns domain.Namespace
	if err := decodeJSON(r, &ns); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.store.Namespaces.Create(r.Context(), ns); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ns)
}

func (s *Server) inspectNamespace(w http.ResponseWriter, r *http.Request) {
	ns, err := s.store.Namespaces.ReadByPK(r.Context(), pathVar(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

// deleteNamespace refuses deletion while the namespace still owns cargoes
// or VMs (nerr.Conflict), mirroring the cascading-delete guard spec.md §4.1
// describes for parent/child object kinds.
func (s *Server) deleteNamespace(w http.ResponseWriter, r *http.Request) {
	name := pathVar(r, "name")
	ctx := r.Context()

	cargoes, err := s.store.Cargoes.CountBy(ctx, store.NewFilter().With("namespace_name", store.Eq(name)))
	if err != nil {
		writeErr(w, err)
		return
	}
	vms, err := s.store.VMs.CountBy(ctx, store.NewFilter().With("namespace_name", store.Eq(name)))
	if err != nil {
		writeErr(w, err)
		return
	}
	if cargoes > 0 || vms > 0 {
		writeErr(w, nerr.Conflict(fmt.Sprintf("namespace %q is not empty", name)))
		return
	}
	if err := s.store.Namespaces.DeleteByPK(ctx, name); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
