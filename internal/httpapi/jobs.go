package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/store"
)

func (s *Server) registerJobRoutes(r *mux.Router) {
	r.HandleFunc("/jobs", s.listJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs", s.createJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs/count", s.countJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{name}", s.putJob).Methods(http.MethodPut)
	r.HandleFunc("/jobs/{name}", s.deleteJob).Methods(http.MethodDelete)
	r.HandleFunc("/jobs/{name}/inspect", s.inspectJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{name}/histories", s.jobHistories).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{name}/histories/{spec_id}/revert", s.revertJob).Methods(http.MethodPatch)
	r.HandleFunc("/jobs/{name}/start", s.startJob).Methods(http.MethodPost)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.Jobs.ReadBy(r.Context(), store.NewFilter())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) countJobs(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Jobs.CountBy(r.Context(), store.NewFilter())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var data domain.JobSpecData
	if err := decodeJSON(r, &data); err != nil {
		writeErr(w, err)
		return
	}
	job, err := s.job.Create(r.Context(), data.Name, data)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) putJob(w http.ResponseWriter, r *http.Request) {
	var data domain.JobSpecData
	if err := decodeJSON(r, &data); err != nil {
		writeErr(w, err)
		return
	}
	job, err := s.job.Put(r.Context(), pathVar(r, "name"), data)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.job.Delete(r.Context(), pathVar(r, "name")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) inspectJob(w http.ResponseWriter, r *http.Request) {
	name := pathVar(r, "name")
	job, err := s.store.Jobs.ReadByPK(r.Context(), name)
	if err != nil {
		writeErr(w, err)
		return
	}
	status, err := s.store.Statuses.ReadByPK(r.Context(), name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		domain.Job
		Status domain.Status `json:"status"`
	}{job, status})
}

func (s *Server) jobHistories(w http.ResponseWriter, r *http.Request) {
	specs, err := s.store.Specs.ReadBy(r.Context(), store.NewFilter().With("kind_key", store.Eq(pathVar(r, "name"))))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, specs)
}

func (s *Server) revertJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.job.Revert(r.Context(), pathVar(r, "name"), pathVar(r, "spec_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	if err := s.job.Start(r.Context(), pathVar(r, "name")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
