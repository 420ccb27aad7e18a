// Package query answers read-only browsing queries (identifier search,
// definition and reference lookup, symbol trees) against the current
// analysis index, rendering result lines from the file cache.
package query

import (
	"log/slog"
	"path/filepath"
	"strings"

	"srcweb/internal/analysis"
	"srcweb/internal/span"
)

// RootsMode selects which crates SymbolRoots lists.
type RootsMode string

const (
	// RootsWorkspace lists only crates of the Cargo workspace.
	RootsWorkspace RootsMode = "workspace"
	// RootsAll lists workspace crates and every locked dependency.
	RootsAll RootsMode = "all"
)

// DefaultContextLines is the number of lines shown around a result line.
const DefaultContextLines = 2

// IndexSource provides the current index. analysis.Host implements it.
type IndexSource interface {
	Index() (*analysis.Index, error)
}

// Files provides highlighted source lines. filecache.Cache implements it.
type Files interface {
	Highlighted(path string) ([]string, error)
}

// Options configures an Engine.
type Options struct {
	Index IndexSource
	Files Files
	// ProjectDir is stripped from file names in results.
	ProjectDir string
	// WorkspaceRoot holds Cargo.toml; defaults to ProjectDir.
	WorkspaceRoot string
	Roots         RootsMode
	ContextLines  int
	Logger        *slog.Logger
}

// Engine is the query coordinator for the browsing endpoints.
type Engine struct {
	index         IndexSource
	files         Files
	projectDir    string
	workspaceRoot string
	roots         RootsMode
	contextLines  int
	logger        *slog.Logger
}

// NewEngine creates a query engine.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		index:         opts.Index,
		files:         opts.Files,
		projectDir:    opts.ProjectDir,
		workspaceRoot: opts.WorkspaceRoot,
		roots:         opts.Roots,
		contextLines:  opts.ContextLines,
		logger:        opts.Logger,
	}
	if e.workspaceRoot == "" {
		e.workspaceRoot = e.projectDir
	}
	if e.roots == "" {
		e.roots = RootsWorkspace
	}
	if e.contextLines < 0 {
		e.contextLines = DefaultContextLines
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// relPath makes an index file name relative to the project directory when
// it lies inside it.
func (e *Engine) relPath(file string) string {
	if e.projectDir == "" || !filepath.IsAbs(file) {
		return file
	}
	rel, err := filepath.Rel(e.projectDir, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return file
	}
	return filepath.ToSlash(rel)
}

// lineResult renders the line a span starts on with its context. ok is
// false when the file cannot be read or the span lies outside it.
func (e *Engine) lineResult(sp span.Span) (LineResult, bool) {
	res := LineResult{
		LineStart:   sp.RowStart,
		ColumnStart: sp.ColStart,
		ColumnEnd:   sp.ColEnd,
	}
	lines, err := e.files.Highlighted(sp.File)
	if err != nil {
		e.logger.Debug("Result line unavailable", "file", sp.File, "error", err)
		return res, false
	}
	row := sp.RowStart - 1
	if row < 0 || row >= len(lines) {
		return res, false
	}
	res.Line = lines[row]

	from := max(row-e.contextLines, 0)
	to := min(row+e.contextLines, len(lines)-1)
	res.PreContext = strings.Join(lines[from:row], "\n")
	res.PostContext = strings.Join(lines[row+1:to+1], "\n")
	return res, true
}
