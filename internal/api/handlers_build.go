package api

import (
	"context"
	"net/http"
	"time"

	"srcweb/internal/pull"
	"srcweb/internal/streaming"
)

// pullWaitTimeout bounds how long /pull?wait=1 holds a request.
var pullWaitTimeout = 30 * time.Second

// handleBuild handles GET /build. The build runs detached from the
// request; a client that disconnects stops receiving events only.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}

	stream := streaming.NewStream(context.Background(), streaming.DefaultConfig())
	key := s.Builds.Start(stream)
	w.Header().Set("X-Pull-Key", key)

	// Lift any server write deadline for the life of the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	if err := streaming.WriteSSE(r.Context(), w, stream); err != nil {
		s.Logger.Debug("Build stream ended early", "key", key, "error", err)
	}
}

// handlePull handles GET /pull?key=...[&wait=1]
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		BadRequest(w, "missing key parameter")
		return
	}

	var res pull.Result
	if QueryParamBool(r, "wait", false) {
		ctx, cancel := context.WithTimeout(r.Context(), pullWaitTimeout)
		res = s.Pull.Wait(ctx, key)
		cancel()
	} else {
		res = s.Pull.Poll(key)
	}

	status := http.StatusOK
	if res.Status == pull.StatusUnknown {
		status = http.StatusNotFound
	}
	WriteJSON(w, res, status)
}
