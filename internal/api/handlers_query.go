package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"srcweb/internal/editor"
)

// SourceResponse is the body of GET /src/:path.
type SourceResponse struct {
	Path  string   `json:"path"`
	Lines []string `json:"lines"`
}

// handleSearch handles GET /search?needle=... and GET /search?id=...
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}

	q := r.URL.Query()
	switch {
	case q.Get("needle") != "":
		res, err := s.Query.IdentSearch(q.Get("needle"))
		if err != nil {
			WriteErr(w, err)
			return
		}
		WriteJSON(w, res, http.StatusOK)
	case q.Get("id") != "":
		id, err := QueryParamDefID(r, "id")
		if err != nil {
			WriteErr(w, err)
			return
		}
		res, err := s.Query.IDSearch(id)
		if err != nil {
			WriteErr(w, err)
			return
		}
		WriteJSON(w, res, http.StatusOK)
	default:
		BadRequest(w, "search needs a needle or id parameter")
	}
}

// handleDefinition handles GET /def?id=...
func (s *Server) handleDefinition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}
	id, err := QueryParamDefID(r, "id")
	if err != nil {
		WriteErr(w, err)
		return
	}
	def, err := s.Query.Definition(id)
	if err != nil {
		WriteErr(w, err)
		return
	}
	WriteJSON(w, def, http.StatusOK)
}

// handleReferences handles GET /refs?id=...
func (s *Server) handleReferences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}
	id, err := QueryParamDefID(r, "id")
	if err != nil {
		WriteErr(w, err)
		return
	}
	refs, err := s.Query.References(id)
	if err != nil {
		WriteErr(w, err)
		return
	}
	WriteJSON(w, refs, http.StatusOK)
}

// handleSymbolRoots handles GET /symbol_roots
func (s *Server) handleSymbolRoots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}
	roots, err := s.Query.SymbolRoots()
	if err != nil {
		WriteErr(w, err)
		return
	}
	WriteJSON(w, roots, http.StatusOK)
}

// handleSymbolChildren handles GET /symbol_children?id=...
func (s *Server) handleSymbolChildren(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}
	id, err := QueryParamDefID(r, "id")
	if err != nil {
		WriteErr(w, err)
		return
	}
	kids, err := s.Query.SymbolChildren(id)
	if err != nil {
		WriteErr(w, err)
		return
	}
	WriteJSON(w, kids, http.StatusOK)
}

// handleSource handles GET /src/:path, a project-relative path. Files come
// back highlighted, directories as a listing.
func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}

	rel, ok := projectRelative(GetPathParam(r, "/src/"))
	if !ok {
		BadRequest(w, "path must be relative to the project directory")
		return
	}
	abs := filepath.Join(s.ProjectDir, rel)

	if s.Files.IsDir(abs) {
		listing, err := s.Files.List(abs)
		if err != nil {
			WriteErr(w, err)
			return
		}
		listing.Path = filepath.ToSlash(rel)
		WriteJSON(w, listing, http.StatusOK)
		return
	}

	lines, err := s.Files.Highlighted(abs)
	if err != nil {
		WriteErr(w, err)
		return
	}
	WriteJSON(w, SourceResponse{Path: filepath.ToSlash(rel), Lines: lines}, http.StatusOK)
}

// handleEdit handles GET|POST /edit?file=...&line=...&col=..., opening the
// location with the configured edit command.
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		MethodNotAllowed(w, http.MethodGet, http.MethodPost)
		return
	}

	rel, ok := projectRelative(r.URL.Query().Get("file"))
	if !ok {
		BadRequest(w, "file must be relative to the project directory")
		return
	}
	abs := filepath.Join(s.ProjectDir, rel)
	if _, err := os.Stat(abs); err != nil {
		NotFound(w, "no such file: "+filepath.ToSlash(rel))
		return
	}

	launcher := s.Editor
	if launcher == nil {
		launcher = &editor.Launcher{}
	}
	if err := launcher.Open(abs, QueryParamInt(r, "line", 1), QueryParamInt(r, "col", 1)); err != nil {
		WriteErr(w, err)
		return
	}
	WriteJSON(w, struct{}{}, http.StatusOK)
}

// projectRelative cleans a client-supplied path, rejecting anything that is
// empty, absolute or escapes the project directory.
func projectRelative(raw string) (string, bool) {
	rel := filepath.Clean(filepath.FromSlash(raw))
	if rel == "." || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}
