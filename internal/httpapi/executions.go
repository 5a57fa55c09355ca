package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"researchd/internal/store"
	logx "researchd/pkg/logx"
)

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter store.ExecutionFilter

	if raw := q.Get("job_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid job_id")
			return
		}
		filter.JobID = &id
	}
	if raw := q.Get("status"); raw != "" {
		st := store.RunStatus(raw)
		if !st.Valid() {
			respondError(w, http.StatusBadRequest, "invalid status, want running|succeeded|failed")
			return
		}
		filter.Status = &st
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}
	if raw := q.Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			respondError(w, http.StatusBadRequest, "invalid size, want 1..200")
			return
		}
		filter.Size = n
	}

	execs, total, err := s.execs.List(r.Context(), filter)
	if err != nil {
		s.log.Error("listing executions failed", logx.Err(err))
		respondError(w, http.StatusInternalServerError, "listing executions failed")
		return
	}
	respondList(w, execs, int64(total))
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid execution id")
		return
	}
	exec, err := s.execs.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "loading execution failed")
		return
	}
	respondOK(w, exec)
}
