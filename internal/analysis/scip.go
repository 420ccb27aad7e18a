package analysis

import (
	"fmt"
	"os"
	"strings"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	"srcweb/internal/errors"
)

// scipSymbol is a parsed SCIP symbol string:
//
//	<scheme> <manager> <package> <version> <descriptor>
//
// e.g. "rust-analyzer cargo serde 1.0.0 de/Deserialize#".
// Local symbols ("local 12") have no package.
type scipSymbol struct {
	Package    string
	Descriptor string
	Raw        string
}

func parseSCIPSymbol(raw string) (scipSymbol, error) {
	if strings.HasPrefix(raw, "local ") {
		return scipSymbol{Descriptor: raw, Raw: raw}, nil
	}
	parts := strings.SplitN(raw, " ", 5)
	if len(parts) < 4 {
		return scipSymbol{}, fmt.Errorf("invalid SCIP symbol %q", raw)
	}
	sym := scipSymbol{Package: crateName(parts[2]), Raw: raw}
	if len(parts) == 4 {
		sym.Descriptor = parts[3]
	} else {
		sym.Descriptor = parts[4]
	}
	return sym, nil
}

func (s scipSymbol) local() bool { return s.Package == "" }

// name returns the last descriptor component without its suffix markers.
func (s scipSymbol) name() string {
	d := strings.TrimRight(s.Descriptor, ".#/!")
	d = strings.TrimSuffix(d, "()")
	if i := strings.LastIndexAny(d, "/#."); i >= 0 {
		d = d[i+1:]
	}
	d = strings.TrimSuffix(d, "()")
	return strings.Trim(d, "`")
}

// qualName renders the descriptor as a Rust path.
func (s scipSymbol) qualName() string {
	d := strings.TrimRight(s.Descriptor, ".#/!")
	d = strings.ReplaceAll(d, "()", "")
	d = strings.NewReplacer("/", "::", "#", "::", ".", "::", "`", "").Replace(d)
	if s.Package == "" {
		return d
	}
	return s.Package + "::" + d
}

// kindFromDescriptor infers a kind from descriptor suffixes when the index
// carries no explicit kind.
func (s scipSymbol) kindFromDescriptor() DefKind {
	d := s.Descriptor
	switch {
	case s.local():
		return DefKindLocal
	case strings.HasSuffix(d, "!"):
		return DefKindMacro
	case strings.HasSuffix(d, ")."):
		return DefKindFunction
	case strings.HasSuffix(d, "#"):
		return DefKindStruct
	case strings.HasSuffix(d, "/"):
		return DefKindMod
	default:
		return DefKindField
	}
}

func kindFromSCIP(k scippb.SymbolInformation_Kind) (DefKind, bool) {
	switch k {
	case scippb.SymbolInformation_Function:
		return DefKindFunction, true
	case scippb.SymbolInformation_Method:
		return DefKindMethod, true
	case scippb.SymbolInformation_Struct:
		return DefKindStruct, true
	case scippb.SymbolInformation_Enum:
		return DefKindEnum, true
	case scippb.SymbolInformation_Union:
		return DefKindUnion, true
	case scippb.SymbolInformation_Trait:
		return DefKindTrait, true
	case scippb.SymbolInformation_Module, scippb.SymbolInformation_Namespace:
		return DefKindMod, true
	case scippb.SymbolInformation_Field:
		return DefKindField, true
	case scippb.SymbolInformation_Constant:
		return DefKindConst, true
	case scippb.SymbolInformation_StaticVariable:
		return DefKindStatic, true
	case scippb.SymbolInformation_TypeAlias:
		return DefKindType, true
	case scippb.SymbolInformation_Macro:
		return DefKindMacro, true
	case scippb.SymbolInformation_Variable:
		return DefKindLocal, true
	}
	return DefKindUnknown, false
}

// crateName normalizes a cargo package name to the crate name rustc uses.
func crateName(pkg string) string {
	return strings.ReplaceAll(pkg, "-", "_")
}

// LoadSCIP reads a SCIP index and converts it into crate records.
func LoadSCIP(path string) ([]CrateRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.IndexMissing, fmt.Sprintf("SCIP index not found at %s", path), err)
		}
		return nil, errors.New(errors.InternalError, fmt.Sprintf("failed to read SCIP index from %s", path), err)
	}
	var index scippb.Index
	if err := proto.Unmarshal(data, &index); err != nil {
		return nil, errors.New(errors.ParseError, fmt.Sprintf("failed to parse SCIP index from %s", path), err)
	}
	return RecordsFromSCIP(&index), nil
}

// scipCrate accumulates one package's record. Local indices are assigned per
// package on first sight of a symbol, so every record that mentions a symbol
// agrees on its index.
type scipCrate struct {
	name    string
	record  CrateRecord
	externs map[string]uint32
}

type scipConverter struct {
	crates  map[string]*scipCrate
	order   []string
	indices map[string]map[string]uint32 // package -> symbol -> local index
	info    map[string]*scippb.SymbolInformation
}

// RecordsFromSCIP converts a SCIP index into one CrateRecord per package
// owning at least one document, dependencies first. A document belongs to the package of its
// first non-local definition. Local symbols are scoped to their document.
func RecordsFromSCIP(index *scippb.Index) []CrateRecord {
	c := &scipConverter{
		crates:  make(map[string]*scipCrate),
		indices: make(map[string]map[string]uint32),
		info:    make(map[string]*scippb.SymbolInformation),
	}
	for _, doc := range index.Documents {
		for _, si := range doc.Symbols {
			c.info[si.Symbol] = si
		}
	}
	for _, si := range index.ExternalSymbols {
		if _, ok := c.info[si.Symbol]; !ok {
			c.info[si.Symbol] = si
		}
	}

	for _, doc := range index.Documents {
		c.addDocument(doc)
	}

	return c.records()
}

// records returns every package after the packages it references, so
// references between packages survive ingestion. Cycles fall back to first
// sight order.
func (c *scipConverter) records() []CrateRecord {
	out := make([]CrateRecord, 0, len(c.order))
	seen := make(map[string]bool, len(c.order))
	var visit func(name string)
	visit = func(name string) {
		k, ok := c.crates[name]
		if !ok || seen[name] {
			return
		}
		seen[name] = true
		for _, ext := range k.record.Prelude.ExternalCrates {
			visit(ext.Name)
		}
		out = append(out, k.record)
	}
	for _, name := range c.order {
		visit(name)
	}
	return out
}

func (c *scipConverter) crate(name, root string) *scipCrate {
	if k, ok := c.crates[name]; ok {
		return k
	}
	k := &scipCrate{
		name: name,
		record: CrateRecord{
			Prelude: &Prelude{CrateName: name, CrateRoot: root},
			Source:  "scip",
			Defs: []RawDef{{
				Kind:     DefKindMod,
				ID:       rootID,
				Span:     SpanData{FileName: root, LineStart: 1, ColumnStart: 1, LineEnd: 1, ColumnEnd: 1},
				Name:     name,
				QualName: name,
			}},
		},
		externs: make(map[string]uint32),
	}
	c.crates[name] = k
	c.order = append(c.order, name)
	return k
}

// rootID is the crate root module; SCIP has no symbol for it.
var rootID = CompilerID{Krate: 0, Index: 0}

// localIndex returns the crate-local index of sym within pkg. Index 0 is
// reserved for the crate root module.
func (c *scipConverter) localIndex(pkg, sym string) uint32 {
	m, ok := c.indices[pkg]
	if !ok {
		m = make(map[string]uint32)
		c.indices[pkg] = m
	}
	if i, ok := m[sym]; ok {
		return i
	}
	i := uint32(len(m) + 1)
	m[sym] = i
	return i
}

// compilerID expresses a symbol of pkg relative to crate k, adding pkg to
// k's external crate list when needed.
func (c *scipConverter) compilerID(k *scipCrate, pkg, sym string) CompilerID {
	index := c.localIndex(pkg, sym)
	if pkg == k.name {
		return CompilerID{Krate: 0, Index: index}
	}
	num, ok := k.externs[pkg]
	if !ok {
		num = uint32(len(k.externs) + 1)
		k.externs[pkg] = num
		k.record.Prelude.ExternalCrates = append(k.record.Prelude.ExternalCrates, ExternalCrate{Name: pkg, Num: num})
	}
	return CompilerID{Krate: num, Index: index}
}

func (c *scipConverter) addDocument(doc *scippb.Document) {
	owner := ""
	for _, occ := range doc.Occurrences {
		if occ.SymbolRoles&int32(scippb.SymbolRole_Definition) == 0 {
			continue
		}
		if sym, err := parseSCIPSymbol(occ.Symbol); err == nil && !sym.local() {
			owner = sym.Package
			break
		}
	}
	if owner == "" {
		return
	}
	k := c.crate(owner, doc.RelativePath)

	for _, occ := range doc.Occurrences {
		sym, err := parseSCIPSymbol(occ.Symbol)
		if err != nil {
			continue
		}
		pkg, key := sym.Package, sym.Raw
		if sym.local() {
			pkg, key = owner, doc.RelativePath+"#"+sym.Raw
		}
		sp, ok := scipSpan(doc.RelativePath, occ.Range)
		if !ok {
			continue
		}
		id := c.compilerID(k, pkg, key)

		if occ.SymbolRoles&int32(scippb.SymbolRole_Definition) != 0 && pkg == owner {
			k.record.Defs = append(k.record.Defs, c.def(k, sym, id, sp, owner))
			continue
		}
		k.record.Refs = append(k.record.Refs, RawRef{Kind: RefKindVariable, Span: sp, RefID: id})
	}
}

func (c *scipConverter) def(k *scipCrate, sym scipSymbol, id CompilerID, sp SpanData, owner string) RawDef {
	d := RawDef{
		Kind:     sym.kindFromDescriptor(),
		ID:       id,
		Span:     sp,
		Name:     sym.name(),
		QualName: sym.qualName(),
	}
	if si := c.info[sym.Raw]; si != nil {
		if kind, ok := kindFromSCIP(si.Kind); ok {
			d.Kind = kind
		}
		if si.DisplayName != "" {
			d.Name = si.DisplayName
		}
		if len(si.Documentation) > 0 {
			// rust-analyzer puts the signature in a code block first.
			d.Value = strings.Trim(strings.TrimPrefix(si.Documentation[0], "```rust"), "`\n ")
			d.Docs = strings.Join(si.Documentation[1:], "\n\n")
		}
		if si.EnclosingSymbol != "" {
			if parent, err := parseSCIPSymbol(si.EnclosingSymbol); err == nil && parent.Package == owner {
				pid := c.compilerID(k, owner, parent.Raw)
				d.Parent = &pid
			}
		}
	}
	if d.Parent == nil && d.Kind != DefKindLocal {
		root := rootID
		d.Parent = &root
	}
	return d
}

// scipSpan converts a zero-based SCIP range to a one-based SpanData.
// Ranges are [line, startChar, endChar] or [startLine, startChar, endLine, endChar].
func scipSpan(file string, r []int32) (SpanData, bool) {
	var sl, sc, el, ec int32
	switch len(r) {
	case 3:
		sl, sc, el, ec = r[0], r[1], r[0], r[2]
	case 4:
		sl, sc, el, ec = r[0], r[1], r[2], r[3]
	default:
		return SpanData{}, false
	}
	return SpanData{
		FileName:    file,
		LineStart:   int(sl) + 1,
		ColumnStart: int(sc) + 1,
		LineEnd:     int(el) + 1,
		ColumnEnd:   int(ec) + 1,
	}, true
}
