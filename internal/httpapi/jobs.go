package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"researchd/internal/store"
	"researchd/internal/timespec"
	logx "researchd/pkg/logx"
)

type jobRequest struct {
	Name    string `json:"name"`
	Info    string `json:"info"`
	Spec    string `json:"spec"`
	Prompt  string `json:"prompt"`
	Enabled *bool  `json:"enabled"`
}

func (jr *jobRequest) validate() error {
	if strings.TrimSpace(jr.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(jr.Prompt) == "" {
		return errors.New("prompt is required")
	}
	spec := strings.TrimSpace(jr.Spec)
	if spec == "" {
		return errors.New("spec is required")
	}
	if _, err := timespec.Parse(spec); err != nil {
		return err
	}
	return nil
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, total, err := s.jobs.List(r.Context())
	if err != nil {
		s.log.Error("listing jobs failed", logx.Err(err))
		respondError(w, http.StatusInternalServerError, "listing jobs failed")
		return
	}
	respondList(w, jobs, int64(total))
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	job := &store.Job{
		Name:    strings.TrimSpace(req.Name),
		Info:    req.Info,
		Spec:    strings.TrimSpace(req.Spec),
		Prompt:  req.Prompt,
		Enabled: enabled,
	}
	if err := s.jobs.Create(r.Context(), job); err != nil {
		s.log.Error("creating job failed", logx.Err(err))
		respondError(w, http.StatusInternalServerError, "creating job failed")
		return
	}
	s.log.Info("job created", logx.Int64("job_id", job.ID), logx.String("name", job.Name))
	respondOK(w, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.jobs.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "loading job failed")
		return
	}
	respondOK(w, job)
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.jobs.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "loading job failed")
		return
	}
	job.Name = strings.TrimSpace(req.Name)
	job.Info = req.Info
	job.Spec = strings.TrimSpace(req.Spec)
	job.Prompt = req.Prompt
	if req.Enabled != nil {
		job.Enabled = *req.Enabled
	}
	if err := s.jobs.Update(r.Context(), job); err != nil {
		s.log.Error("updating job failed", logx.Int64("job_id", id), logx.Err(err))
		respondError(w, http.StatusInternalServerError, "updating job failed")
		return
	}
	respondOK(w, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	if err := s.jobs.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "job not found")
			return
		}
		s.log.Error("deleting job failed", logx.Int64("job_id", id), logx.Err(err))
		respondError(w, http.StatusInternalServerError, "deleting job failed")
		return
	}
	// Drop scheduler state so the id cannot pin tracker entries.
	s.tracker.Forget(id)
	s.log.Info("job deleted", logx.Int64("job_id", id))
	respondOK(w, map[string]int64{"id": id})
}

func (s *Server) handleToggleJob(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.jobs.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "loading job failed")
		return
	}
	if err := s.jobs.SetEnabled(r.Context(), id, !job.Enabled); err != nil {
		s.log.Error("toggling job failed", logx.Int64("job_id", id), logx.Err(err))
		respondError(w, http.StatusInternalServerError, "toggling job failed")
		return
	}
	job.Enabled = !job.Enabled
	s.log.Info("job toggled", logx.Int64("job_id", id), logx.Bool("enabled", job.Enabled))
	respondOK(w, job)
}

func (s *Server) handleLatestExecution(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	exec, err := s.execs.LatestForJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "job has no executions")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "loading execution failed")
		return
	}
	respondOK(w, exec)
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	if _, err := s.jobs.GetByID(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "job not found")
		return
	} else if err != nil {
		respondError(w, http.StatusInternalServerError, "loading job failed")
		return
	}
	stats, err := s.execs.StatsForJob(r.Context(), id)
	if err != nil {
		s.log.Error("computing job stats failed", logx.Int64("job_id", id), logx.Err(err))
		respondError(w, http.StatusInternalServerError, "computing stats failed")
		return
	}
	respondOK(w, stats)
}
