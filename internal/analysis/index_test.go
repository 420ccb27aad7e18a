package analysis

import (
	"slices"
	"testing"

	"srcweb/internal/errors"
	"srcweb/internal/span"
)

func sd(file string, line, colStart, colEnd int) SpanData {
	return SpanData{FileName: file, LineStart: line, LineEnd: line, ColumnStart: colStart, ColumnEnd: colEnd}
}

func cid(krate, index uint32) CompilerID { return CompilerID{Krate: krate, Index: index} }

// testRecords models an app crate using a util crate:
//
//	util: mod util (0), fn helper (1)
//	app:  mod app (0), fn main (1), struct helper (2, same name as util::helper)
func testRecords() []CrateRecord {
	util := CrateRecord{
		Prelude: &Prelude{CrateName: "util"},
		Defs: []RawDef{
			{Kind: DefKindMod, ID: cid(0, 0), Span: sd("util/lib.rs", 1, 1, 1), Name: "util", QualName: "util"},
			{Kind: DefKindFunction, ID: cid(0, 1), Span: sd("util/lib.rs", 3, 8, 14), Name: "helper",
				QualName: "util::helper", Value: "pub fn helper() -> u32", Parent: &CompilerID{0, 0}},
		},
	}
	app := CrateRecord{
		Prelude: &Prelude{CrateName: "app", ExternalCrates: []ExternalCrate{{Name: "util", Num: 1}}},
		Imports: []Import{{Kind: "Use", ID: cid(1, 1), Span: sd("src/main.rs", 1, 11, 17), Name: "helper", Value: "util::helper"}},
		Defs: []RawDef{
			{Kind: DefKindMod, ID: cid(0, 0), Span: sd("src/main.rs", 1, 1, 1), Name: "app", QualName: "app"},
			{Kind: DefKindFunction, ID: cid(0, 1), Span: sd("src/main.rs", 3, 4, 8), Name: "main",
				QualName: "app::main", Value: "fn main()", Parent: &CompilerID{0, 0}},
			{Kind: DefKindStruct, ID: cid(0, 2), Span: sd("src/main.rs", 9, 8, 14), Name: "helper",
				QualName: "app::helper", Parent: &CompilerID{0, 0}},
			{Kind: DefKindLocal, ID: cid(0xFFFFFFFF, 5), Span: sd("src/main.rs", 4, 9, 10), Name: "x", Value: "u32"},
		},
		Refs: []RawRef{
			{Kind: RefKindFunction, Span: sd("src/main.rs", 4, 13, 19), RefID: cid(1, 1)},
			{Kind: RefKindFunction, Span: sd("src/main.rs", 5, 13, 19), RefID: cid(1, 1)},
			{Kind: RefKindType, Span: sd("src/main.rs", 6, 5, 11), RefID: cid(0, 2)},
			// Dangling: util has no definition 99.
			{Kind: RefKindVariable, Span: sd("src/main.rs", 7, 1, 2), RefID: cid(1, 99)},
		},
	}
	// util first: app's references into util resolve only because util's
	// definitions are already indexed.
	return []CrateRecord{util, app}
}

// Global crate ids follow ingestion order: util is 0, app is 1.
func utilID(index uint32) DefID { return MakeDefID(0, index) }
func appID(index uint32) DefID  { return MakeDefID(1, index) }

func mustIngest(t *testing.T, records []CrateRecord) *Index {
	t.Helper()
	idx, errs := Ingest(records, IngestOptions{ProjectDir: "/proj"})
	if len(errs) != 0 {
		t.Fatalf("Ingest errors: %v", errs)
	}
	return idx
}

func TestIngest_Definitions(t *testing.T) {
	idx := mustIngest(t, testRecords())

	helper := utilID(1)
	def, err := idx.Definition(helper)
	if err != nil {
		t.Fatalf("Definition(util::helper) error: %v", err)
	}
	if def.QualName != "util::helper" || def.Crate != "util" {
		t.Errorf("unexpected def %+v", def)
	}
	if def.Span.File != "/proj/util/lib.rs" {
		t.Errorf("span file = %q, want project-joined path", def.Span.File)
	}
	if stats := idx.Stats(); stats.Defs != 5 || stats.Crates != 2 {
		t.Errorf("stats = %+v, want 5 defs in 2 crates", stats)
	}
}

func TestIngest_NullDefinitionKeepsTitle(t *testing.T) {
	idx := mustIngest(t, testRecords())
	sp := span.New("/proj/src/main.rs", 4, 9, 4, 10)
	if title, ok := idx.Title(sp); !ok || title != "u32" {
		t.Errorf("Title(local x) = %q, %v", title, ok)
	}
	if _, ok := idx.ClassID(sp); ok {
		t.Error("definition with null id should not get a class id")
	}
}

func TestIngest_ReferencesRoundTrip(t *testing.T) {
	idx := mustIngest(t, testRecords())
	helper := utilID(1)

	refs, err := idx.References(helper)
	if err != nil {
		t.Fatal(err)
	}
	want := []span.Span{
		span.New("/proj/src/main.rs", 4, 13, 4, 19),
		span.New("/proj/src/main.rs", 5, 13, 5, 19),
	}
	if !slices.Equal(refs, want) {
		t.Errorf("References = %v, want %v", refs, want)
	}
	for _, r := range refs {
		target, ok := idx.GotoDef(r)
		if !ok || target != span.New("/proj/util/lib.rs", 3, 8, 3, 14) {
			t.Errorf("GotoDef(%v) = %v, %v", r, target, ok)
		}
		if id, _ := idx.ClassID(r); id != helper {
			t.Errorf("ClassID(%v) = %v, want %v", r, id, helper)
		}
	}

	// Hover on a reference falls back to the definition value.
	if title, ok := idx.Title(want[0]); !ok || title != "pub fn helper() -> u32" {
		t.Errorf("Title(ref) = %q, %v", title, ok)
	}
}

func TestIngest_DropsDanglingReferences(t *testing.T) {
	idx := mustIngest(t, testRecords())
	if _, ok := idx.GotoDef(span.New("/proj/src/main.rs", 7, 1, 7, 2)); ok {
		t.Error("reference to a missing definition should be dropped")
	}
	if got := idx.Stats().Refs; got != 3 {
		t.Errorf("refs = %d, want 3", got)
	}
}

func TestIngest_DropsForwardReferences(t *testing.T) {
	records := testRecords()
	// app before util: util::helper is not indexed yet when app's
	// references are read.
	idx := mustIngest(t, []CrateRecord{records[1], records[0]})

	helper := MakeDefID(1, 1) // util is interned second, as app's external crate
	if _, err := idx.Definition(helper); err != nil {
		t.Fatalf("Definition(util::helper) error: %v", err)
	}
	refs, err := idx.References(helper)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 0 {
		t.Errorf("References = %v, want none for a crate ingested later", refs)
	}
	if _, ok := idx.GotoDef(span.New("/proj/src/main.rs", 4, 13, 4, 19)); ok {
		t.Error("forward reference should be dropped")
	}
	// app's reference to its own struct still resolves.
	if got := idx.Stats().Refs; got != 1 {
		t.Errorf("refs = %d, want 1", got)
	}
}

func TestIndex_AllSpans(t *testing.T) {
	idx := mustIngest(t, testRecords())
	spans, err := idx.AllSpans(utilID(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 3 || spans[0].File != "/proj/util/lib.rs" {
		t.Errorf("AllSpans = %v, want definition first then 2 refs", spans)
	}
}

func TestIndex_Search(t *testing.T) {
	idx := mustIngest(t, testRecords())

	got := idx.Search("helper")
	slices.Sort(got)
	want := []DefID{utilID(1), appID(2)}
	if !slices.Equal(got, want) {
		t.Errorf("Search(helper) = %v, want %v", got, want)
	}

	missing := idx.Search("nope")
	if missing == nil || len(missing) != 0 {
		t.Errorf("Search(nope) = %#v, want empty non-nil slice", missing)
	}
}

func TestIndex_ChildrenAndRoots(t *testing.T) {
	idx := mustIngest(t, testRecords())

	roots := idx.Roots(nil)
	if len(roots) != 2 || roots[0].Crate != "app" || roots[1].Crate != "util" {
		t.Fatalf("Roots = %+v", roots)
	}
	if filtered := idx.Roots([]string{"util"}); len(filtered) != 1 || filtered[0].ID != utilID(0) {
		t.Errorf("Roots(util) = %+v", filtered)
	}

	kids, err := idx.Children(roots[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(kids, []DefID{appID(1), appID(2)}) {
		t.Errorf("Children(app) = %v", kids)
	}
	leaf, err := idx.Children(appID(1))
	if err != nil || len(leaf) != 0 {
		t.Errorf("Children(main) = %v, %v", leaf, err)
	}
}

func TestIndex_UnknownID(t *testing.T) {
	idx := mustIngest(t, testRecords())
	unknown := MakeDefID(7, 7)

	if _, err := idx.Definition(unknown); !errors.Is(err, errors.NotFound) {
		t.Errorf("Definition: expected NotFound, got %v", err)
	}
	if _, err := idx.References(unknown); !errors.Is(err, errors.NotFound) {
		t.Errorf("References: expected NotFound, got %v", err)
	}
	if _, err := idx.Children(unknown); !errors.Is(err, errors.NotFound) {
		t.Errorf("Children: expected NotFound, got %v", err)
	}
}

func TestIngest_SkipsBadCrate(t *testing.T) {
	records := testRecords()
	records = append(records, CrateRecord{
		Prelude: &Prelude{CrateName: "broken", ExternalCrates: []ExternalCrate{{Name: "x", Num: 2}}},
		Defs:    []RawDef{{Kind: DefKindFunction, ID: cid(0, 1), Span: sd("b.rs", 1, 1, 2), Name: "f"}},
	})

	idx, errs := Ingest(records, IngestOptions{ProjectDir: "/proj"})
	if len(errs) != 1 || !errors.Is(errs[0], errors.InvariantViolation) {
		t.Fatalf("errs = %v, want one InvariantViolation", errs)
	}
	if len(idx.Search("f")) != 0 {
		t.Error("definitions of the rejected crate should not be ingested")
	}
	if idx.Stats().Defs != 5 {
		t.Errorf("other crates should still be ingested, got %+v", idx.Stats())
	}
}

func TestIngest_Blacklist(t *testing.T) {
	idx, _ := Ingest(testRecords(), IngestOptions{Blacklist: []string{"util"}})
	if got := idx.Search("main"); len(got) != 1 {
		t.Errorf("app should be ingested, Search(main) = %v", got)
	}
	for _, r := range idx.Roots(nil) {
		if r.Crate == "util" {
			t.Error("blacklisted crate should have no root")
		}
	}
}
