package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"srcweb/internal/build"
	"srcweb/internal/diagnostics"
)

func init() {
	color.NoColor = true
}

func TestIsEqual(t *testing.T) {
	tests := []struct {
		name string
		a    interface{}
		b    interface{}
		want bool
	}{
		{"equal strings", "hello", "hello", true},
		{"different strings", "hello", "world", false},
		{"equal ints", 42, 42, true},
		{"int vs float", 2, 2.0, true},
		{"different bools", true, false, false},
		{"nil values", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("isEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestComputeDiff(t *testing.T) {
	current := map[string]interface{}{
		"contextLines": 4.0,
		"buildOnLoad":  true,
		"build": map[string]interface{}{
			"command": "cargo",
			"profile": "release",
		},
		"server": map[string]interface{}{
			"port": 7878.0,
		},
	}
	defaults := map[string]interface{}{
		"contextLines": 2.0,
		"buildOnLoad":  true,
		"build": map[string]interface{}{
			"command": "cargo",
			"profile": "debug",
		},
		"server": map[string]interface{}{
			"port": 7878.0,
		},
	}

	diff := computeDiff(current, defaults)
	if len(diff) != 2 {
		t.Fatalf("diff = %v, want contextLines and build", diff)
	}
	if diff["contextLines"] != 4.0 {
		t.Errorf("contextLines = %v", diff["contextLines"])
	}
	b, ok := diff["build"].(map[string]interface{})
	if !ok || len(b) != 1 || b["profile"] != "release" {
		t.Errorf("build diff = %v", diff["build"])
	}
}

func TestFlatten(t *testing.T) {
	out := map[string]interface{}{}
	flatten("", map[string]interface{}{
		"a": 1,
		"b": map[string]interface{}{"c": 2, "d": map[string]interface{}{"e": 3}},
	}, out)

	want := map[string]interface{}{"a": 1, "b.c": 2, "b.d.e": 3}
	if len(out) != len(want) {
		t.Fatalf("flatten = %v", out)
	}
	for k, v := range want {
		if out[k] != v {
			t.Errorf("out[%q] = %v, want %v", k, out[k], v)
		}
	}
}

func TestGetEnvVarMappingsSorted(t *testing.T) {
	vars := GetEnvVarMappings()
	if len(vars) == 0 {
		t.Fatal("no env vars")
	}
	for i := 1; i < len(vars); i++ {
		if vars[i-1] > vars[i] {
			t.Errorf("not sorted at %d: %s > %s", i, vars[i-1], vars[i])
		}
	}
	for _, v := range vars {
		if !strings.HasPrefix(v, "SRCWEB_") {
			t.Errorf("unexpected variable %q", v)
		}
	}
}

func TestPlainLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`<span class="kw">fn</span> main() {}`, "fn main() {}"},
		{`  <span class="ident" data-id="3">a</span> &lt; b &amp;&amp; c`, "a < b && c"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := plainLine(tt.in); got != tt.want {
			t.Errorf("plainLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTerminalSinkPrintsDiagnostic(t *testing.T) {
	var out, errOut bytes.Buffer
	sink := newTerminalSink(&out, &errOut, "/proj")

	d := &diagnostics.Diagnostic{
		Level:      diagnostics.LevelError,
		RawMessage: "mismatched types",
		Code:       &diagnostics.Code{Code: "E0308"},
		Spans: []*diagnostics.Span{
			{File: "/proj/src/main.rs", LineStart: 3, ColStart: 9, IsPrimary: true},
			{File: "/proj/src/main.rs", LineStart: 1, ColStart: 1},
		},
		Children: []*diagnostics.Diagnostic{
			{Level: diagnostics.LevelNote, RawMessage: "expected `u32`"},
		},
	}
	if err := sink.SendError(d); err != nil {
		t.Fatal(err)
	}
	if err := sink.SendMessage("   Compiling app v0.1.0"); err != nil {
		t.Fatal(err)
	}

	got := out.String()
	for _, want := range []string{
		"error[E0308]: mismatched types",
		"--> src/main.rs:3:9",
		"= note: expected `u32`",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "main.rs:1:1") {
		t.Errorf("secondary span printed:\n%s", got)
	}
	if !strings.Contains(errOut.String(), "Compiling app") {
		t.Errorf("message not written to stderr: %q", errOut.String())
	}
}

func TestTerminalSinkPrintsFailure(t *testing.T) {
	var out bytes.Buffer
	sink := newTerminalSink(&out, &bytes.Buffer{}, "/proj")
	_ = sink.SendError(build.Failure{Message: "exec: \"cargo\": not found"})
	if !strings.Contains(out.String(), `error: exec: "cargo": not found`) {
		t.Errorf("output = %q", out.String())
	}
}

func TestPrintSummary(t *testing.T) {
	tests := []struct {
		name    string
		summary build.Summary
		want    []string
	}{
		{
			name:    "clean build",
			summary: build.Summary{Success: true, Diagnostics: 2, ElapsedMs: 15},
			want:    []string{"build ok", "0 error(s), 2 other diagnostic(s) in 15ms"},
		},
		{
			name:    "errors",
			summary: build.Summary{Success: false, Diagnostics: 3, Errors: 1},
			want:    []string{"build failed", "1 error(s), 2 other"},
		},
		{
			name:    "spawn failure",
			summary: build.Summary{Failure: "no such program"},
			want:    []string{"build failed", "no such program"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printSummary(&buf, tt.summary)
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("summary %q missing %q", buf.String(), w)
				}
			}
		})
	}
}
