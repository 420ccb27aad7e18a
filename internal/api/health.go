package api

import (
	"net/http"
	"runtime"
	"time"

	"srcweb/internal/analysis"
	"srcweb/internal/build"
	"srcweb/internal/version"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Version     string    `json:"version"`
	IndexLoaded bool      `json:"indexLoaded"`
}

// StatusResponse describes the build and index state.
type StatusResponse struct {
	Build        build.Status           `json:"build"`
	Index        *analysis.Stats        `json:"index,omitempty"`
	PullEntries  int                    `json:"pullEntries"`
	CachedFiles  int                    `json:"cachedFiles"`
	Jobs         map[string]interface{} `json:"jobs,omitempty"`
	Uptime       string                 `json:"uptime"`
	NumGoroutine int                    `json:"numGoroutine"`
}

// handleHealth handles GET /health. The server is healthy once it runs,
// even before any analysis data is loaded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}
	WriteJSON(w, HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC(),
		Version:     version.Version,
		IndexLoaded: s.Host.Loaded(),
	}, http.StatusOK)
}

// handleStatus handles GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}

	resp := StatusResponse{
		Build:        s.Builds.Status(),
		PullEntries:  s.Pull.Len(),
		CachedFiles:  s.Files.Len(),
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if idx, err := s.Host.Index(); err == nil {
		stats := idx.Stats()
		resp.Index = &stats
	}
	if s.Jobs != nil {
		resp.Jobs = s.Jobs.Stats()
	}
	WriteJSON(w, resp, http.StatusOK)
}

// handleConfig handles GET /config
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}
	WriteJSON(w, s.Config, http.StatusOK)
}
