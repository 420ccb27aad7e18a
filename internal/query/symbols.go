package query

import (
	"srcweb/internal/analysis"
	"srcweb/internal/cargo"
)

// SymbolResult is one node of the symbol tree.
type SymbolResult struct {
	ID        analysis.DefID   `json:"id"`
	Name      string           `json:"name"`
	Kind      analysis.DefKind `json:"kind"`
	FileName  string           `json:"file_name"`
	LineStart int              `json:"line_start"`
}

func (e *Engine) symbol(def *analysis.Def) SymbolResult {
	return SymbolResult{
		ID:        def.ID,
		Name:      def.Name,
		Kind:      def.Kind,
		FileName:  e.relPath(def.Span.File),
		LineStart: def.Span.RowStart,
	}
}

// SymbolRoots lists crate root modules, limited to the crates selected by
// the roots mode. When the Cargo manifest cannot be read every indexed
// crate is listed.
func (e *Engine) SymbolRoots() ([]SymbolResult, error) {
	idx, err := e.index.Index()
	if err != nil {
		return nil, err
	}

	var crates []string
	switch e.roots {
	case RootsAll:
		crates, err = cargo.AllCrates(e.workspaceRoot)
	default:
		crates, err = cargo.WorkspaceCrates(e.workspaceRoot)
	}
	if err != nil {
		e.logger.Warn("Cargo metadata unavailable, listing all crates", "root", e.workspaceRoot, "error", err)
		crates = nil
	}

	roots := idx.Roots(crates)
	out := make([]SymbolResult, 0, len(roots))
	for _, r := range roots {
		def, err := idx.Definition(r.ID)
		if err != nil {
			return nil, err
		}
		sym := e.symbol(def)
		sym.Name = r.Crate
		out = append(out, sym)
	}
	return out, nil
}

// SymbolChildren lists the definitions directly under id.
func (e *Engine) SymbolChildren(id analysis.DefID) ([]SymbolResult, error) {
	idx, err := e.index.Index()
	if err != nil {
		return nil, err
	}
	kids, err := idx.Children(id)
	if err != nil {
		return nil, err
	}
	out := make([]SymbolResult, 0, len(kids))
	for _, kid := range kids {
		def, err := idx.Definition(kid)
		if err != nil {
			return nil, err
		}
		out = append(out, e.symbol(def))
	}
	return out, nil
}

// Definition returns the definition of id with its file made project
// relative.
func (e *Engine) Definition(id analysis.DefID) (*analysis.Def, error) {
	idx, err := e.index.Index()
	if err != nil {
		return nil, err
	}
	def, err := idx.Definition(id)
	if err != nil {
		return nil, err
	}
	def.Span.File = e.relPath(def.Span.File)
	return def, nil
}

// References returns the references of id bucketed by file.
func (e *Engine) References(id analysis.DefID) ([]FileResult, error) {
	idx, err := e.index.Index()
	if err != nil {
		return nil, err
	}
	refs, err := idx.References(id)
	if err != nil {
		return nil, err
	}
	return e.bucket(refs), nil
}
