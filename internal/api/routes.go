package api

import (
	"net/http"

	"srcweb/internal/metrics"
	"srcweb/internal/version"
)

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/status", s.handleStatus)
	s.router.HandleFunc("/config", s.handleConfig)

	// Builds
	s.router.HandleFunc("/build", s.handleBuild) // SSE
	s.router.HandleFunc("/pull", s.handlePull)   // GET ?key=&wait=1

	// Cross-reference queries
	s.router.HandleFunc("/search", s.handleSearch) // ?needle= or ?id=
	s.router.HandleFunc("/def", s.handleDefinition)
	s.router.HandleFunc("/refs", s.handleReferences)
	s.router.HandleFunc("/symbol_roots", s.handleSymbolRoots)
	s.router.HandleFunc("/symbol_children", s.handleSymbolChildren)
	s.router.HandleFunc("/src/", s.handleSource)
	s.router.HandleFunc("/edit", s.handleEdit)

	// Jobs
	s.router.HandleFunc("/jobs", s.handleListJobs)
	s.router.HandleFunc("/jobs/", s.handleJobRoutes) // GET /:id, POST /:id/cancel
	s.router.HandleFunc("/analysis/reload", s.handleReload)

	s.router.Handle("/metrics", metrics.Handler())

	s.router.HandleFunc("/", s.handleRoot)
}

// handleRoot handles requests to the root path
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		NotFound(w, "no route for "+r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}

	WriteJSON(w, map[string]interface{}{
		"name":    "srcweb",
		"version": version.Version,
		"endpoints": []string{
			"GET /build - Run a build, streaming diagnostics as server-sent events",
			"GET /pull?key=... - Poll for a build's reprocessed snippets (&wait=1 blocks)",
			"GET /search?needle=... | ?id=... - Identifier or id search",
			"GET /def?id=... - Definition lookup",
			"GET /refs?id=... - References grouped by file",
			"GET /symbol_roots - Crate root modules",
			"GET /symbol_children?id=... - Child definitions",
			"GET /src/:path - Highlighted source lines, or a directory listing",
			"GET /edit?file=...&line=...&col=... - Open a location in the configured editor",
			"GET /jobs - Build and reindex history",
			"GET /jobs/:id - Job status",
			"POST /jobs/:id/cancel - Cancel a queued reindex",
			"POST /analysis/reload - Reload analysis data without building",
			"GET /config - Effective configuration",
			"GET /health - Health check",
			"GET /status - Build and index status",
			"GET /metrics - Prometheus metrics",
		},
	}, http.StatusOK)
}
