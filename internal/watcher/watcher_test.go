package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"srcweb/internal/slogutil"
)

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      string
	}{
		{EventCreate, "create"},
		{EventModify, "modify"},
		{EventDelete, "delete"},
		{EventRename, "rename"},
		{EventType(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.eventType.String()
			if got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if !config.Enabled {
		t.Error("Enabled should be true by default")
	}
	if config.DebounceMs != 200 {
		t.Errorf("DebounceMs = %d, want 200", config.DebounceMs)
	}
	w := New(t.TempDir(), config, slogutil.NewDiscardLogger(), nil)
	for _, p := range []string{"target/debug/foo", ".git/HEAD"} {
		if !w.IsIgnored(p) {
			t.Errorf("default config should ignore %q", p)
		}
	}
}

func TestWatcherIsIgnored(t *testing.T) {
	config := Config{
		IgnorePatterns: []string{
			"*.log",
			"*.tmp",
			"target/**",
			".git/**",
		},
	}
	w := New("/proj", config, slogutil.NewDiscardLogger(), nil)

	tests := []struct {
		path    string
		ignored bool
	}{
		{"debug.log", true},
		{"src/temp.tmp", true},
		{"target", true},
		{"target/debug/deps/x.json", true},
		{".git/config", true},
		{"targets.rs", false},
		{"src/main.rs", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := w.IsIgnored(tt.path)
			if got != tt.ignored {
				t.Errorf("IsIgnored(%q) = %v, want %v", tt.path, got, tt.ignored)
			}
		})
	}
}

func TestWatcherStartDisabled(t *testing.T) {
	w := New(t.TempDir(), Config{Enabled: false}, slogutil.NewDiscardLogger(), nil)
	if err := w.Start(); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if w.WatchedDirs() != 0 {
		t.Errorf("WatchedDirs() = %d, want 0", w.WatchedDirs())
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestWatcherSkipsIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"src/nested", "target/debug", ".git"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	w := New(root, DefaultConfig(), slogutil.NewDiscardLogger(), nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	// root, src, src/nested
	if got := w.WatchedDirs(); got != 3 {
		t.Errorf("WatchedDirs() = %d, want 3", got)
	}
	if stats := w.Stats(); stats["watchedDirs"] != 3 {
		t.Errorf("stats[watchedDirs] = %v, want 3", stats["watchedDirs"])
	}
}

func TestWatcherReportsWrites(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "main.rs")
	if err := os.WriteFile(path, []byte("fn main() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := make(chan []Event, 4)
	config := DefaultConfig()
	config.DebounceMs = 20
	w := New(root, config, slogutil.NewDiscardLogger(), func(events []Event) { got <- events })
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	for range 3 {
		if err := os.WriteFile(path, []byte("fn main() { }\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case events := <-got:
		if len(events) != 1 || events[0].Path != path {
			t.Errorf("events = %+v, want one event for %s", events, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestBatchDebouncerAdd(t *testing.T) {
	var received []Event
	var mu sync.Mutex

	emit := func(events []Event) {
		mu.Lock()
		received = events
		mu.Unlock()
	}

	b := NewBatchDebouncer(50*time.Millisecond, emit)

	b.Add(Event{Type: EventCreate, Path: "file1.rs"})
	b.Add(Event{Type: EventModify, Path: "file2.rs"})
	b.Add(Event{Type: EventDelete, Path: "file3.rs"})

	if b.EventCount() != 3 {
		t.Errorf("EventCount() = %d, want 3", b.EventCount())
	}

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	if len(received) != 3 {
		t.Errorf("Should have received 3 events, got %d", len(received))
	}
	mu.Unlock()
}

func TestBatchDebouncerCollapsesPaths(t *testing.T) {
	b := NewBatchDebouncer(time.Hour, nil)
	b.Add(Event{Type: EventCreate, Path: "a.rs"})
	b.Add(Event{Type: EventModify, Path: "b.rs"})
	b.Add(Event{Type: EventDelete, Path: "a.rs"})

	if b.EventCount() != 2 {
		t.Fatalf("EventCount() = %d, want 2", b.EventCount())
	}
	b.mu.Lock()
	first := b.events[0]
	b.mu.Unlock()
	if first.Path != "a.rs" || first.Type != EventDelete {
		t.Errorf("first event = %+v, want latest event for a.rs", first)
	}
	b.Cancel()
}

func TestBatchDebouncerCancel(t *testing.T) {
	var called bool
	var mu sync.Mutex

	emit := func(events []Event) {
		mu.Lock()
		called = true
		mu.Unlock()
	}

	b := NewBatchDebouncer(50*time.Millisecond, emit)
	b.Add(Event{Type: EventCreate, Path: "file.rs"})
	b.Cancel()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	if called {
		t.Error("Emit should not be called after cancel")
	}
	mu.Unlock()

	if b.EventCount() != 0 {
		t.Errorf("EventCount() = %d, want 0 after cancel", b.EventCount())
	}
}

func TestBatchDebouncerFlush(t *testing.T) {
	var received []Event
	var mu sync.Mutex

	emit := func(events []Event) {
		mu.Lock()
		received = events
		mu.Unlock()
	}

	b := NewBatchDebouncer(500*time.Millisecond, emit)
	b.Add(Event{Type: EventCreate, Path: "file.rs"})
	b.Flush()

	mu.Lock()
	if len(received) != 1 {
		t.Errorf("Should have received 1 event, got %d", len(received))
	}
	mu.Unlock()

	if b.EventCount() != 0 {
		t.Errorf("EventCount() = %d, want 0 after flush", b.EventCount())
	}
}

func TestBatchDebouncerNoEmitWithNoEvents(t *testing.T) {
	var called bool
	var mu sync.Mutex

	emit := func(events []Event) {
		mu.Lock()
		called = true
		mu.Unlock()
	}

	b := NewBatchDebouncer(10*time.Millisecond, emit)
	b.Flush()

	mu.Lock()
	if called {
		t.Error("Emit should not be called with no events")
	}
	mu.Unlock()
}
