package analysis

import (
	"encoding/json"
	"path/filepath"

	"srcweb/internal/span"
)

// CrateRecord is one save-analysis file: everything the compiler knew about
// a single crate.
type CrateRecord struct {
	Prelude   *Prelude   `json:"prelude"`
	Imports   []Import   `json:"imports"`
	Defs      []RawDef   `json:"defs"`
	Refs      []RawRef   `json:"refs"`
	MacroRefs []MacroRef `json:"macro_refs"`

	// Source is the artifact path the record was read from.
	Source string `json:"-"`
}

type Prelude struct {
	CrateName      string          `json:"crate_name"`
	CrateRoot      string          `json:"crate_root"`
	ExternalCrates []ExternalCrate `json:"external_crates"`
	Span           SpanData        `json:"span"`
}

// ExternalCrate is an entry of the prelude's crate list. Num is the local
// crate number used in CompilerIDs.
type ExternalCrate struct {
	Name     string `json:"name"`
	Num      uint32 `json:"num"`
	FileName string `json:"file_name"`
}

type RawDef struct {
	Kind     DefKind      `json:"kind"`
	ID       CompilerID   `json:"id"`
	Span     SpanData     `json:"span"`
	Name     string       `json:"name"`
	QualName string       `json:"qualname"`
	Value    string       `json:"value"`
	Parent   *CompilerID  `json:"parent,omitempty"`
	Docs     string       `json:"docs,omitempty"`
	Sig      *Signature   `json:"sig,omitempty"`
	Children []CompilerID `json:"children,omitempty"`
}

// Signature is a rendered signature with the offsets of names inside it.
type Signature struct {
	Text string       `json:"text"`
	Defs []SigElement `json:"defs,omitempty"`
	Refs []SigElement `json:"refs,omitempty"`
}

type SigElement struct {
	ID    CompilerID `json:"id"`
	Start int        `json:"start"`
	End   int        `json:"end"`
}

type RawRef struct {
	Kind  RefKind    `json:"kind"`
	Span  SpanData   `json:"span"`
	RefID CompilerID `json:"ref_id"`
}

type MacroRef struct {
	Span       SpanData `json:"span"`
	QualName   string   `json:"qualname"`
	CalleeSpan SpanData `json:"callee_span"`
}

type Import struct {
	Kind  string     `json:"kind"`
	ID    CompilerID `json:"id"`
	Span  SpanData   `json:"span"`
	Name  string     `json:"name"`
	Value string     `json:"value"`
}

// SpanData is a span as serialized by the compiler. Rows and columns are
// 1-based; columns count characters.
type SpanData struct {
	FileName    string `json:"file_name"`
	ByteStart   uint32 `json:"byte_start"`
	ByteEnd     uint32 `json:"byte_end"`
	LineStart   int    `json:"line_start"`
	LineEnd     int    `json:"line_end"`
	ColumnStart int    `json:"column_start"`
	ColumnEnd   int    `json:"column_end"`
}

// Lower converts to a span.Span, joining relative file names onto projectDir.
func (s SpanData) Lower(projectDir string) span.Span {
	file := s.FileName
	if !filepath.IsAbs(file) && projectDir != "" {
		file = filepath.Join(projectDir, file)
	}
	return span.New(file, s.LineStart, s.ColumnStart, s.LineEnd, s.ColumnEnd)
}

// DefKind is the kind of a definition. Kinds this package does not know
// decode as DefKindUnknown instead of failing the whole record.
type DefKind string

const (
	DefKindEnum       DefKind = "Enum"
	DefKindTuple      DefKind = "Tuple"
	DefKindStruct     DefKind = "Struct"
	DefKindUnion      DefKind = "Union"
	DefKindTrait      DefKind = "Trait"
	DefKindFunction   DefKind = "Function"
	DefKindMethod     DefKind = "Method"
	DefKindMacro      DefKind = "Macro"
	DefKindMod        DefKind = "Mod"
	DefKindType       DefKind = "Type"
	DefKindLocal      DefKind = "Local"
	DefKindStatic     DefKind = "Static"
	DefKindConst      DefKind = "Const"
	DefKindField      DefKind = "Field"
	DefKindExternType DefKind = "ExternType"
	DefKindUnknown    DefKind = "Unknown"
)

var knownDefKinds = map[DefKind]bool{
	DefKindEnum: true, DefKindTuple: true, DefKindStruct: true, DefKindUnion: true,
	DefKindTrait: true, DefKindFunction: true, DefKindMethod: true, DefKindMacro: true,
	DefKindMod: true, DefKindType: true, DefKindLocal: true, DefKindStatic: true,
	DefKindConst: true, DefKindField: true, DefKindExternType: true,
}

func (k *DefKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*k = DefKind(s)
	if !knownDefKinds[*k] {
		*k = DefKindUnknown
	}
	return nil
}

// RefKind is the kind of a reference. Unknown kinds are kept verbatim;
// ingestion does not branch on them.
type RefKind string

const (
	RefKindFunction RefKind = "Function"
	RefKindMod      RefKind = "Mod"
	RefKindType     RefKind = "Type"
	RefKindVariable RefKind = "Variable"
)
