package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/store"
)

func (s *Server) registerVMImageRoutes(r *mux.Router) {
	r.HandleFunc("/vm_images", s.listVMImages).Methods(http.MethodGet)
	r.HandleFunc("/vm_images", s.createVMImage).Methods(http.MethodPost)
	r.HandleFunc("/vm_images/count", s.countVMImages).Methods(http.MethodGet)
	r.HandleFunc("/vm_images/{name}", s.inspectVMImage).Methods(http.MethodGet)
	r.HandleFunc("/vm_images/{name}", s.deleteVMImage).Methods(http.MethodDelete)
}

func (s *Server) listVMImages(w http.ResponseWriter, r *http.Request) {
	images, err := s.store.VMImages.ReadBy(r.Context(), store.NewFilter())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, images)
}

func (s *Server) countVMImages(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.VMImages.CountBy(r.Context(), store.NewFilter())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

// createVMImage registers a disk image already materialised on disk at
// Path (image import/conversion is out of scope, per spec.md's Non-goals).
func (s *Server) createVMImage(w http.ResponseWriter, r *http.Request) {
	var img domain.VMImage
	if err := decodeJSON(r, &img); err != nil {
		writeErr(w, err)
		return
	}
	if img.Kind == "" {
		img.Kind = domain.VMImageBase
	}
	if err := s.store.VMImages.Create(r.Context(), img); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

func (s *Server) inspectVMImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.store.VMImages.ReadByPK(r.Context(), pathVar(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, img)
}

func (s *Server) deleteVMImage(w http.ResponseWriter, r *http.Request) {
	if err := s.vm.DeleteImage(r.Context(), pathVar(r, "name")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
