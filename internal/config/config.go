package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// FileName is the project configuration file.
const FileName = "srcweb.toml"

// Config represents the complete srcweb configuration.
type Config struct {
	Build           BuildConfig `json:"build" toml:"build" mapstructure:"build"`
	ContextLines    int         `json:"contextLines" toml:"contextLines" mapstructure:"contextLines"`
	BuildOnLoad     bool        `json:"buildOnLoad" toml:"buildOnLoad" mapstructure:"buildOnLoad"`
	SourceDirectory string      `json:"sourceDirectory" toml:"sourceDirectory" mapstructure:"sourceDirectory"`
	WorkspaceRoot   string      `json:"workspaceRoot,omitempty" toml:"workspaceRoot" mapstructure:"workspaceRoot"`
	SymbolRoots     string      `json:"symbolRoots" toml:"symbolRoots" mapstructure:"symbolRoots"`
	// EditCommand opens a file in an editor; $file, $line and $col are
	// substituted. Empty disables /edit.
	EditCommand string `json:"editCommand" toml:"editCommand" mapstructure:"editCommand"`
	// VcsLink is a URL template for viewing a file in version control,
	// with $file and $line substituted by the client.
	VcsLink   string          `json:"vcsLink" toml:"vcsLink" mapstructure:"vcsLink"`
	Server    ServerConfig    `json:"server" toml:"server" mapstructure:"server"`
	Analysis  AnalysisConfig  `json:"analysis" toml:"analysis" mapstructure:"analysis"`
	FileCache FileCacheConfig `json:"fileCache" toml:"fileCache" mapstructure:"fileCache"`
	Watch     WatchConfig     `json:"watch" toml:"watch" mapstructure:"watch"`
	History   HistoryConfig   `json:"history" toml:"history" mapstructure:"history"`
	Logging   LoggingConfig   `json:"logging" toml:"logging" mapstructure:"logging"`
}

// BuildConfig describes the build command.
type BuildConfig struct {
	Command      string   `json:"command" toml:"command" mapstructure:"command"`
	Args         []string `json:"args" toml:"args" mapstructure:"args"`
	SaveAnalysis bool     `json:"saveAnalysis" toml:"saveAnalysis" mapstructure:"saveAnalysis"`
	// Profile is the target/ subdirectory analysis files are read from.
	Profile string `json:"profile" toml:"profile" mapstructure:"profile"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host" toml:"host" mapstructure:"host"`
	Port int    `json:"port" toml:"port" mapstructure:"port"`
}

// AnalysisConfig contains index settings
type AnalysisConfig struct {
	ScipIndexPath string   `json:"scipIndexPath,omitempty" toml:"scipIndexPath" mapstructure:"scipIndexPath"`
	Blacklist     []string `json:"blacklist" toml:"blacklist" mapstructure:"blacklist"`
}

// FileCacheConfig bounds the source file cache
type FileCacheConfig struct {
	MaxFiles int `json:"maxFiles" toml:"maxFiles" mapstructure:"maxFiles"`
}

// WatchConfig contains file watcher settings
type WatchConfig struct {
	Enabled    bool `json:"enabled" toml:"enabled" mapstructure:"enabled"`
	DebounceMs int  `json:"debounceMs" toml:"debounceMs" mapstructure:"debounceMs"`
}

// HistoryConfig controls the persistent job history
type HistoryConfig struct {
	Enabled bool `json:"enabled" toml:"enabled" mapstructure:"enabled"`
	// Dir holds jobs.db; relative paths are under the project directory.
	Dir string `json:"dir" toml:"dir" mapstructure:"dir"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `json:"level" toml:"level" mapstructure:"level"`
	File  string `json:"file,omitempty" toml:"file" mapstructure:"file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Build: BuildConfig{
			Command:      "cargo",
			Args:         []string{"check"},
			SaveAnalysis: true,
			Profile:      "debug",
		},
		ContextLines:    2,
		BuildOnLoad:     true,
		SourceDirectory: "src",
		SymbolRoots:     "workspace",
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7878,
		},
		Analysis: AnalysisConfig{
			Blacklist: []string{},
		},
		FileCache: FileCacheConfig{
			MaxFiles: 512,
		},
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMs: 200,
		},
		History: HistoryConfig{
			Enabled: true,
			Dir:     ".srcweb",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadResult contains the loaded config and where it came from
type LoadResult struct {
	Config       *Config
	ConfigPath   string // empty when defaults are used
	EnvOverrides []EnvOverride
}

// LoadConfig loads configuration from srcweb.toml in projectDir, falling
// back to defaults, and applies SRCWEB_* environment overrides.
func LoadConfig(projectDir string) (*Config, error) {
	result, err := LoadConfigWithDetails(projectDir)
	if err != nil {
		return nil, err
	}
	return result.Config, nil
}

// LoadConfigWithDetails is LoadConfig reporting the file used and the
// environment overrides applied. SRCWEB_CONFIG_PATH names an explicit file.
func LoadConfigWithDetails(projectDir string) (*LoadResult, error) {
	result := &LoadResult{}

	path := os.Getenv(EnvConfigPath)
	if path == "" {
		candidate := filepath.Join(projectDir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadConfigFromPath(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		result.ConfigPath = path
	}

	result.EnvOverrides = ApplyEnvOverrides(cfg)
	result.Config = cfg
	return result, nil
}

// LoadConfigFromPath reads one configuration file over the defaults.
func LoadConfigFromPath(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("build.command", d.Build.Command)
	v.SetDefault("build.args", d.Build.Args)
	v.SetDefault("build.saveAnalysis", d.Build.SaveAnalysis)
	v.SetDefault("build.profile", d.Build.Profile)
	v.SetDefault("contextLines", d.ContextLines)
	v.SetDefault("buildOnLoad", d.BuildOnLoad)
	v.SetDefault("sourceDirectory", d.SourceDirectory)
	v.SetDefault("workspaceRoot", d.WorkspaceRoot)
	v.SetDefault("symbolRoots", d.SymbolRoots)
	v.SetDefault("editCommand", d.EditCommand)
	v.SetDefault("vcsLink", d.VcsLink)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("analysis.scipIndexPath", d.Analysis.ScipIndexPath)
	v.SetDefault("analysis.blacklist", d.Analysis.Blacklist)
	v.SetDefault("fileCache.maxFiles", d.FileCache.MaxFiles)
	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.debounceMs", d.Watch.DebounceMs)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.dir", d.History.Dir)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
}

// Save writes the configuration to srcweb.toml in projectDir.
func (c *Config) Save(projectDir string) error {
	f, err := os.Create(filepath.Join(projectDir, FileName))
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Build.Command == "" {
		return &ConfigError{Field: "build.command", Message: "must not be empty"}
	}
	if c.ContextLines < 0 {
		return &ConfigError{Field: "contextLines", Message: "must not be negative"}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "must be between 0 and 65535"}
	}
	if !slices.Contains([]string{"workspace", "all"}, c.SymbolRoots) {
		return &ConfigError{Field: "symbolRoots", Message: `must be "workspace" or "all"`}
	}
	if c.FileCache.MaxFiles <= 0 {
		return &ConfigError{Field: "fileCache.maxFiles", Message: "must be positive"}
	}
	if c.Watch.DebounceMs < 0 {
		return &ConfigError{Field: "watch.debounceMs", Message: "must not be negative"}
	}
	if !slices.Contains([]string{"debug", "info", "warn", "warning", "error"}, c.Logging.Level) {
		return &ConfigError{Field: "logging.level", Message: "unknown level " + c.Logging.Level}
	}
	return nil
}

// ResolveDir returns dir joined onto projectDir unless it is absolute.
func ResolveDir(projectDir, dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(projectDir, dir)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
