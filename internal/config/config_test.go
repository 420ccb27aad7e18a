package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Build.Command != "cargo" || !slices.Equal(cfg.Build.Args, []string{"check"}) {
		t.Errorf("Build = %+v, want cargo check", cfg.Build)
	}
	if !cfg.Build.SaveAnalysis {
		t.Error("save-analysis should be enabled by default")
	}
	if cfg.ContextLines != 2 {
		t.Errorf("ContextLines = %d, want 2", cfg.ContextLines)
	}
	if cfg.Server.Port != 7878 {
		t.Errorf("Server.Port = %d, want 7878", cfg.Server.Port)
	}
	if cfg.SymbolRoots != "workspace" {
		t.Errorf("SymbolRoots = %q, want workspace", cfg.SymbolRoots)
	}
	if cfg.EditCommand != "" || cfg.VcsLink != "" {
		t.Errorf("editor settings should default to empty: %q, %q", cfg.EditCommand, cfg.VcsLink)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty command", func(c *Config) { c.Build.Command = "" }, "build.command"},
		{"negative context", func(c *Config) { c.ContextLines = -1 }, "contextLines"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad roots", func(c *Config) { c.SymbolRoots = "deps" }, "symbolRoots"},
		{"zero cache", func(c *Config) { c.FileCache.MaxFiles = 0 }, "fileCache.maxFiles"},
		{"negative debounce", func(c *Config) { c.Watch.DebounceMs = -5 }, "watch.debounceMs"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			cfgErr, ok := err.(*ConfigError)
			if !ok {
				t.Fatalf("Validate() error = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "server.port", Message: "bad"}
	if got, want := err.Error(), "config error in field 'server.port': bad"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestLoadConfig_Default(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Port != 7878 || cfg.Build.Command != "cargo" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
contextLines = 4
buildOnLoad = false
symbolRoots = "all"
editCommand = "code -g $file:$line:$col"
vcsLink = "https://example.com/blob/main/$file#L$line"

[build]
command = "cargo"
args = ["build", "--all-targets"]

[server]
port = 9000

[analysis]
blacklist = ["core", "std"]
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := LoadConfigWithDetails(dir)
	if err != nil {
		t.Fatalf("LoadConfigWithDetails() error = %v", err)
	}
	cfg := result.Config
	if result.ConfigPath != filepath.Join(dir, FileName) {
		t.Errorf("ConfigPath = %q", result.ConfigPath)
	}
	if cfg.ContextLines != 4 || cfg.BuildOnLoad || cfg.SymbolRoots != "all" {
		t.Errorf("top-level keys not applied: %+v", cfg)
	}
	if !slices.Equal(cfg.Build.Args, []string{"build", "--all-targets"}) {
		t.Errorf("Build.Args = %v", cfg.Build.Args)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want default kept", cfg.Server.Host)
	}
	if !cfg.Build.SaveAnalysis {
		t.Error("unset build.saveAnalysis should keep its default")
	}
	if !slices.Equal(cfg.Analysis.Blacklist, []string{"core", "std"}) {
		t.Errorf("Blacklist = %v", cfg.Analysis.Blacklist)
	}
	if cfg.EditCommand != "code -g $file:$line:$col" {
		t.Errorf("EditCommand = %q", cfg.EditCommand)
	}
	if cfg.VcsLink != "https://example.com/blob/main/$file#L$line" {
		t.Errorf("VcsLink = %q", cfg.VcsLink)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[server\nport = "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(dir); err == nil {
		t.Error("LoadConfig() should fail on malformed TOML")
	}
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ContextLines = 7
	cfg.Build.Args = []string{"check", "--workspace"}
	cfg.Logging.File = "srcweb.log"

	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.ContextLines != 7 || loaded.Logging.File != "srcweb.log" {
		t.Errorf("loaded = %+v", loaded)
	}
	if !slices.Equal(loaded.Build.Args, cfg.Build.Args) {
		t.Errorf("Build.Args = %v, want %v", loaded.Build.Args, cfg.Build.Args)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		applied  int
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "log level",
			env:     map[string]string{"SRCWEB_LOG_LEVEL": "DEBUG"},
			applied: 1,
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
				}
			},
		},
		{
			name:    "int and bool",
			env:     map[string]string{"SRCWEB_SERVER_PORT": "8080", "SRCWEB_WATCH_ENABLED": "false"},
			applied: 2,
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 8080 || cfg.Watch.Enabled {
					t.Errorf("Server.Port = %d, Watch.Enabled = %v", cfg.Server.Port, cfg.Watch.Enabled)
				}
			},
		},
		{
			name:    "lists",
			env:     map[string]string{"SRCWEB_BUILD_ARGS": "build --release", "SRCWEB_ANALYSIS_BLACKLIST": "std, core,"},
			applied: 2,
			validate: func(t *testing.T, cfg *Config) {
				if !slices.Equal(cfg.Build.Args, []string{"build", "--release"}) {
					t.Errorf("Build.Args = %v", cfg.Build.Args)
				}
				if !slices.Equal(cfg.Analysis.Blacklist, []string{"std", "core"}) {
					t.Errorf("Blacklist = %v", cfg.Analysis.Blacklist)
				}
			},
		},
		{
			name:    "editor",
			env:     map[string]string{"SRCWEB_EDIT_COMMAND": "vim +$line $file", "SRCWEB_VCS_LINK": "https://example.com/$file"},
			applied: 2,
			validate: func(t *testing.T, cfg *Config) {
				if cfg.EditCommand != "vim +$line $file" || cfg.VcsLink != "https://example.com/$file" {
					t.Errorf("EditCommand = %q, VcsLink = %q", cfg.EditCommand, cfg.VcsLink)
				}
			},
		},
		{
			name:    "invalid int ignored",
			env:     map[string]string{"SRCWEB_CONTEXT_LINES": "lots"},
			applied: 0,
			validate: func(t *testing.T, cfg *Config) {
				if cfg.ContextLines != 2 {
					t.Errorf("ContextLines = %d, want default 2", cfg.ContextLines)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := DefaultConfig()
			overrides := ApplyEnvOverrides(cfg)
			if len(overrides) != tt.applied {
				t.Errorf("len(overrides) = %d, want %d", len(overrides), tt.applied)
			}
			tt.validate(t, cfg)
		})
	}
}

func TestLoadConfigWithDetails_EnvConfigPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	if err := os.WriteFile(path, []byte("contextLines = 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, path)
	t.Setenv("SRCWEB_SERVER_PORT", "4000")

	result, err := LoadConfigWithDetails(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfigWithDetails() error = %v", err)
	}
	if result.ConfigPath != path || result.Config.ContextLines != 9 {
		t.Errorf("result = %+v", result)
	}
	if result.Config.Server.Port != 4000 || len(result.EnvOverrides) != 1 {
		t.Errorf("env override not applied: port %d, overrides %v", result.Config.Server.Port, result.EnvOverrides)
	}
}

func TestGetSupportedEnvVars(t *testing.T) {
	vars := GetSupportedEnvVars()
	for _, want := range []string{"SRCWEB_LOG_LEVEL", "SRCWEB_SERVER_PORT", EnvConfigPath} {
		if !slices.Contains(vars, want) {
			t.Errorf("GetSupportedEnvVars() missing %s", want)
		}
	}
}

func TestResolveDir(t *testing.T) {
	if got := ResolveDir("/proj", ".srcweb"); got != filepath.Join("/proj", ".srcweb") {
		t.Errorf("ResolveDir(relative) = %q", got)
	}
	if got := ResolveDir("/proj", "/var/lib/srcweb"); got != "/var/lib/srcweb" {
		t.Errorf("ResolveDir(absolute) = %q", got)
	}
}
