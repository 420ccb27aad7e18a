package api

import (
	"net/http"
	"strings"

	"srcweb/internal/errors"
	"srcweb/internal/jobs"
)

func (s *Server) requireJobs(w http.ResponseWriter) bool {
	if s.Jobs == nil {
		WriteError(w, errors.Newf(errors.InternalError, "job history is disabled"), http.StatusServiceUnavailable)
		return false
	}
	return true
}

// handleListJobs handles GET /jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.requireJobs(w) {
		return
	}

	opts := jobs.ListJobsOptions{}
	if status := r.URL.Query().Get("status"); status != "" {
		opts.Status = []jobs.JobStatus{jobs.JobStatus(status)}
	}
	if typ := r.URL.Query().Get("type"); typ != "" {
		opts.Type = []jobs.JobType{jobs.JobType(typ)}
	}
	if limit := QueryParamInt(r, "limit", 20); limit > 0 {
		opts.Limit = limit
	}
	opts.Offset = max(QueryParamInt(r, "offset", 0), 0)

	resp, err := s.Jobs.ListJobs(opts)
	if err != nil {
		InternalError(w, "failed to list jobs", err)
		return
	}
	WriteJSON(w, resp, http.StatusOK)
}

// handleJobRoutes handles /jobs/:id routes
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/jobs/")
	parts := strings.SplitN(path, "/", 2)
	jobID := parts[0]

	if jobID == "" {
		BadRequest(w, "missing job id")
		return
	}
	if !s.requireJobs(w) {
		return
	}

	if len(parts) > 1 && parts[1] == "cancel" {
		s.handleCancelJob(w, r, jobID)
		return
	}
	s.handleGetJob(w, r, jobID)
}

// handleGetJob handles GET /jobs/:id
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}

	job, err := s.Jobs.GetJob(jobID)
	if err != nil {
		InternalError(w, "failed to load job", err)
		return
	}
	if job == nil {
		NotFound(w, "job not found: "+jobID)
		return
	}
	WriteJSON(w, job, http.StatusOK)
}

// handleCancelJob handles POST /jobs/:id/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, http.MethodPost)
		return
	}

	job, err := s.Jobs.GetJob(jobID)
	if err != nil {
		InternalError(w, "failed to load job", err)
		return
	}
	if job == nil {
		NotFound(w, "job not found: "+jobID)
		return
	}
	if err := s.Jobs.Cancel(jobID); err != nil {
		WriteError(w, errors.New(errors.InvalidArgument, "job cannot be cancelled", err), http.StatusConflict)
		return
	}
	WriteJSON(w, map[string]interface{}{
		"jobId":  jobID,
		"status": jobs.JobCancelled,
	}, http.StatusOK)
}

// handleReload handles POST /analysis/reload. With history enabled the
// reload runs as a reindex job; otherwise it runs inline.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, http.MethodPost)
		return
	}

	if s.Jobs == nil {
		stats, err := s.Host.Reload(r.Context())
		if err != nil {
			WriteErr(w, err)
			return
		}
		s.Files.Reset()
		WriteJSON(w, stats, http.StatusOK)
		return
	}

	job, err := jobs.NewJob(jobs.JobTypeReindex, jobs.ReindexScope{Reason: "api"})
	if err != nil {
		InternalError(w, "failed to create job", err)
		return
	}
	if err := s.Jobs.Submit(job); err != nil {
		InternalError(w, "failed to submit job", err)
		return
	}
	WriteJSON(w, map[string]interface{}{
		"jobId":  job.ID,
		"status": job.Status,
	}, http.StatusAccepted)
}
