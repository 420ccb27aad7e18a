package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"srcweb/internal/analysis"
	"srcweb/internal/build"
	"srcweb/internal/config"
	"srcweb/internal/editor"
	"srcweb/internal/filecache"
	"srcweb/internal/jobs"
	"srcweb/internal/pull"
	"srcweb/internal/query"
	"srcweb/internal/slogutil"
)

const mainRS = `fn helper() -> u32 {
    1
}

fn main() {
    let x = helper();
}
`

type staticSource struct {
	records []analysis.CrateRecord
}

func (s staticSource) Load(context.Context) ([]analysis.CrateRecord, []error, error) {
	return s.records, nil, nil
}

func testRecords() []analysis.CrateRecord {
	sd := func(line, from, to int) analysis.SpanData {
		return analysis.SpanData{FileName: "src/main.rs", LineStart: line, LineEnd: line, ColumnStart: from, ColumnEnd: to}
	}
	root := analysis.CompilerID{}
	return []analysis.CrateRecord{{
		Prelude: &analysis.Prelude{CrateName: "app"},
		Defs: []analysis.RawDef{
			{Kind: analysis.DefKindMod, ID: analysis.CompilerID{}, Span: sd(1, 1, 1), Name: "app", QualName: "app"},
			{Kind: analysis.DefKindFunction, ID: analysis.CompilerID{Index: 1}, Span: sd(1, 4, 10), Name: "helper",
				QualName: "app::helper", Value: "fn helper() -> u32", Parent: &root},
			{Kind: analysis.DefKindFunction, ID: analysis.CompilerID{Index: 2}, Span: sd(5, 4, 8), Name: "main",
				QualName: "app::main", Parent: &root},
		},
		Refs: []analysis.RawRef{
			{Kind: analysis.RefKindFunction, Span: sd(6, 13, 19), RefID: analysis.CompilerID{Index: 1}},
		},
	}}
}

type testEnv struct {
	server *Server
	dir    string
}

func newTestServer(t *testing.T) testEnv {
	t.Helper()
	logger := slogutil.NewDiscardLogger()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "main.rs"), []byte(mainRS), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[package]\nname = \"app\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	host := analysis.NewHost(staticSource{records: testRecords()}, analysis.IngestOptions{ProjectDir: dir}, logger)
	if _, err := host.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	files, err := filecache.New(filecache.Options{Root: dir, MaxFiles: 16, Lookup: host, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}

	store, err := jobs.OpenMemoryStore(logger)
	if err != nil {
		t.Fatal(err)
	}
	runner := jobs.NewRunner(store, logger, jobs.RunnerConfig{RecoveryInterval: time.Hour})
	runner.RegisterHandler(jobs.JobTypeReindex, build.ReindexHandler(host, files, logger))
	if err := runner.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = runner.Stop(5 * time.Second)
		_ = store.Close()
	})

	cache := pull.NewCache(logger)
	cfg := config.DefaultConfig()
	orch := build.NewOrchestrator(build.Options{
		Command: build.Command{
			Program: "sh",
			Args:    []string{"-c", "echo 'Compiling app v0.1.0' >&2; exit 0"},
			Dir:     dir,
		},
		ContextLines: cfg.ContextLines,
		Indexer:      host,
		Files:        files,
		Pull:         cache,
		Jobs:         store,
		Logger:       logger,
	})

	server := NewServer(":0", Deps{
		Config:     cfg,
		ProjectDir: dir,
		Host:       host,
		Query: query.NewEngine(query.Options{
			Index: host, Files: files, ProjectDir: dir, ContextLines: cfg.ContextLines, Logger: logger,
		}),
		Files:  files,
		Pull:   cache,
		Builds: orch,
		Jobs:   runner,
		Logger: logger,
	})
	return testEnv{server: server, dir: dir}
}

func (e testEnv) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decode[HealthResponse](t, w)
	if resp.Status != "healthy" || !resp.IndexLoaded {
		t.Errorf("health = %+v", resp)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("response should carry a request id")
	}
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodGet, "/search?needle=helper")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	res := decode[query.SearchResult](t, w)
	if len(res.Defs) != 1 {
		t.Fatalf("defs = %+v, want one", res.Defs)
	}
	def := res.Defs[0]
	if def.File != "src/main.rs" || def.Line.LineStart != 1 {
		t.Errorf("def = %+v", def)
	}
	if len(def.Refs) != 1 || def.Refs[0].Lines[0].LineStart != 6 {
		t.Errorf("refs = %+v", def.Refs)
	}
	if !strings.Contains(def.Refs[0].Lines[0].Line, "helper") {
		t.Errorf("ref line %q should contain the identifier", def.Refs[0].Lines[0].Line)
	}

	w = env.do(t, http.MethodGet, "/search?needle=absent")
	if w.Code != http.StatusOK || len(decode[query.SearchResult](t, w).Defs) != 0 {
		t.Errorf("unknown name: status %d body %s, want empty result", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/search?id="+analysis.MakeDefID(0, 1).String())
	if w.Code != http.StatusOK || len(decode[query.SearchResult](t, w).Defs) != 1 {
		t.Errorf("id search: status %d body %s", w.Code, w.Body.String())
	}
}

func TestQueryEndpoints_Errors(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		name   string
		method string
		target string
		status int
		code   string
	}{
		{"search without params", http.MethodGet, "/search", http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"bad id", http.MethodGet, "/def?id=abc", http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"missing id", http.MethodGet, "/refs", http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"unknown def", http.MethodGet, "/def?id=12345", http.StatusNotFound, "NOT_FOUND"},
		{"unknown search id", http.MethodGet, "/search?id=12345", http.StatusNotFound, "NOT_FOUND"},
		{"unknown children", http.MethodGet, "/symbol_children?id=12345", http.StatusNotFound, "NOT_FOUND"},
		{"missing source", http.MethodGet, "/src/src/nope.rs", http.StatusNotFound, "NOT_FOUND"},
		{"wrong method", http.MethodPost, "/search?needle=x", http.StatusMethodNotAllowed, "INVALID_ARGUMENT"},
		{"unknown route", http.MethodGet, "/nope", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.target)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if got := decode[ErrorResponse](t, w).Code; got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestDefinitionAndTreeEndpoints(t *testing.T) {
	env := newTestServer(t)
	helper := analysis.MakeDefID(0, 1).String()

	w := env.do(t, http.MethodGet, "/def?id="+helper)
	if w.Code != http.StatusOK {
		t.Fatalf("def status = %d", w.Code)
	}
	if def := decode[analysis.Def](t, w); def.QualName != "app::helper" || def.Span.File != "src/main.rs" {
		t.Errorf("def = %+v", def)
	}

	w = env.do(t, http.MethodGet, "/refs?id="+helper)
	if refs := decode[[]query.FileResult](t, w); len(refs) != 1 || refs[0].FileName != "src/main.rs" {
		t.Errorf("refs = %+v", refs)
	}

	w = env.do(t, http.MethodGet, "/symbol_roots")
	roots := decode[[]query.SymbolResult](t, w)
	if len(roots) != 1 || roots[0].Name != "app" {
		t.Fatalf("roots = %+v", roots)
	}

	w = env.do(t, http.MethodGet, "/symbol_children?id="+roots[0].ID.String())
	kids := decode[[]query.SymbolResult](t, w)
	if len(kids) != 2 || kids[0].Name != "helper" || kids[1].Name != "main" {
		t.Errorf("children = %+v", kids)
	}
}

func TestSourceEndpoint(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, http.MethodGet, "/src/src/main.rs")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[SourceResponse](t, w)
	if resp.Path != "src/main.rs" || len(resp.Lines) != 7 {
		t.Errorf("path %q with %d lines, want src/main.rs with 7", resp.Path, len(resp.Lines))
	}
	if !strings.Contains(resp.Lines[5], "class_id") {
		t.Errorf("line 6 should link the helper reference: %q", resp.Lines[5])
	}
}

func TestSourceEndpoint_Directory(t *testing.T) {
	env := newTestServer(t)
	if err := os.MkdirAll(filepath.Join(env.dir, "src", "net"), 0o755); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodGet, "/src/src")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	listing := decode[filecache.DirectoryListing](t, w)
	want := []filecache.Listing{
		{Kind: filecache.KindDirectory, Name: "net", Path: "src/net"},
		{Kind: filecache.KindFile, Name: "main.rs", Path: "src/main.rs"},
	}
	if listing.Path != "src" || len(listing.Files) != len(want) {
		t.Fatalf("listing = %+v", listing)
	}
	for i := range want {
		if listing.Files[i] != want[i] {
			t.Errorf("Files[%d] = %+v, want %+v", i, listing.Files[i], want[i])
		}
	}

	if w := env.do(t, http.MethodGet, "/src/nope"); w.Code != http.StatusNotFound {
		t.Errorf("missing path status = %d, want 404", w.Code)
	}
}

func TestEditEndpoint(t *testing.T) {
	env := newTestServer(t)

	if w := env.do(t, http.MethodGet, "/edit?file=src/main.rs&line=5&col=13"); w.Code != http.StatusBadRequest {
		t.Errorf("unconfigured editor status = %d, want 400", w.Code)
	}

	env.server.Editor = &editor.Launcher{
		Template: "touch $file-$line-$col",
		Dir:      env.dir,
		Logger:   slogutil.NewDiscardLogger(),
	}
	for _, target := range []string{"/edit?file=/etc/passwd", "/edit?file=../x.rs", "/edit"} {
		if w := env.do(t, http.MethodGet, target); w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", target, w.Code)
		}
	}
	if w := env.do(t, http.MethodGet, "/edit?file=src/nope.rs"); w.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", w.Code)
	}

	w := env.do(t, http.MethodGet, "/edit?file=src/main.rs&line=5&col=13")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "{}" {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	marker := filepath.Join(env.dir, "src", "main.rs-5-13")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(marker); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("edit command never ran: %s missing", marker)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPullEndpoint(t *testing.T) {
	env := newTestServer(t)

	if w := env.do(t, http.MethodGet, "/pull"); w.Code != http.StatusBadRequest {
		t.Errorf("missing key status = %d, want 400", w.Code)
	}
	w := env.do(t, http.MethodGet, "/pull?key=nope")
	if w.Code != http.StatusNotFound || decode[pull.Result](t, w).Status != pull.StatusUnknown {
		t.Errorf("unknown key: status %d body %s", w.Code, w.Body.String())
	}

	key := env.server.Pull.Create()
	w = env.do(t, http.MethodGet, "/pull?key="+key)
	if w.Code != http.StatusOK || decode[pull.Result](t, w).Status != pull.StatusPending {
		t.Errorf("pending key: status %d body %s", w.Code, w.Body.String())
	}
}

func TestBuildEndpoint(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodGet, "/build")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	msg := strings.Index(body, "event: message\ndata: Compiling app v0.1.0\n\n")
	closing := strings.Index(body, "event: close\n")
	if msg < 0 || closing < msg {
		t.Fatalf("unexpected event stream:\n%s", body)
	}

	key := w.Header().Get("X-Pull-Key")
	if !strings.Contains(body, `"pull_data_key":"`+key+`"`) {
		t.Errorf("close summary should carry pull key %s:\n%s", key, body)
	}

	w = env.do(t, http.MethodGet, "/pull?wait=1&key="+key)
	res := decode[pull.Result](t, w)
	if res.Status != pull.StatusReady {
		t.Fatalf("pull status = %s, want ready", res.Status)
	}

	// The build is recorded in history once the orchestrator is done.
	deadline := time.Now().Add(5 * time.Second)
	for env.server.Builds.Status().State != build.StateDone {
		if time.Now().After(deadline) {
			t.Fatal("build did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
	list := decode[jobs.ListJobsResponse](t, env.do(t, http.MethodGet, "/jobs?type=build"))
	if list.TotalCount != 1 || list.Jobs[0].Status != jobs.JobCompleted {
		t.Errorf("jobs = %+v", list)
	}
}

func TestReloadEndpoint(t *testing.T) {
	env := newTestServer(t)

	if w := env.do(t, http.MethodGet, "/analysis/reload"); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", w.Code)
	}

	w := env.do(t, http.MethodPost, "/analysis/reload")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	jobID, _ := decode[map[string]interface{}](t, w)["jobId"].(string)
	if jobID == "" {
		t.Fatal("response should carry a job id")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		w = env.do(t, http.MethodGet, "/jobs/"+jobID)
		if w.Code != http.StatusOK {
			t.Fatalf("job status = %d", w.Code)
		}
		job := decode[jobs.Job](t, w)
		if job.Status == jobs.JobCompleted {
			break
		}
		if job.Status == jobs.JobFailed || time.Now().After(deadline) {
			t.Fatalf("reindex job did not complete: %+v", job)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if w := env.do(t, http.MethodGet, "/jobs/missing"); w.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", w.Code)
	}
}

func TestStatusConfigAndMetrics(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodGet, "/status")
	status := decode[StatusResponse](t, w)
	if status.Build.State != build.StateIdle || status.Index == nil || status.Index.Defs != 3 {
		t.Errorf("status = %+v", status)
	}

	env.server.Config.VcsLink = "https://example.com/blob/main/$file#L$line"
	w = env.do(t, http.MethodGet, "/config")
	cfg := decode[config.Config](t, w)
	if cfg.Server.Port != 7878 {
		t.Errorf("config port = %d", cfg.Server.Port)
	}
	if cfg.VcsLink != "https://example.com/blob/main/$file#L$line" {
		t.Errorf("config vcsLink = %q", cfg.VcsLink)
	}

	w = env.do(t, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "srcweb_") {
		t.Errorf("metrics status %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/")
	if w.Code != http.StatusOK {
		t.Errorf("root status = %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, http.MethodOptions, "/search")
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight status %d headers %v", w.Code, w.Header())
	}
}
