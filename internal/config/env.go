package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvConfigPath names an explicit configuration file.
const EnvConfigPath = "SRCWEB_CONFIG_PATH"

// EnvOverride records one environment variable applied to the config.
type EnvOverride struct {
	EnvVar string `json:"envVar"`
	Path   string `json:"path"`
	Value  string `json:"value"`
}

// envVars maps environment variables to config paths.
var envVars = []struct {
	name string
	path string
}{
	{"SRCWEB_BUILD_COMMAND", "build.command"},
	{"SRCWEB_BUILD_ARGS", "build.args"},
	{"SRCWEB_BUILD_SAVE_ANALYSIS", "build.saveAnalysis"},
	{"SRCWEB_BUILD_PROFILE", "build.profile"},
	{"SRCWEB_CONTEXT_LINES", "contextLines"},
	{"SRCWEB_BUILD_ON_LOAD", "buildOnLoad"},
	{"SRCWEB_SOURCE_DIRECTORY", "sourceDirectory"},
	{"SRCWEB_WORKSPACE_ROOT", "workspaceRoot"},
	{"SRCWEB_SYMBOL_ROOTS", "symbolRoots"},
	{"SRCWEB_EDIT_COMMAND", "editCommand"},
	{"SRCWEB_VCS_LINK", "vcsLink"},
	{"SRCWEB_SERVER_HOST", "server.host"},
	{"SRCWEB_SERVER_PORT", "server.port"},
	{"SRCWEB_SCIP_INDEX_PATH", "analysis.scipIndexPath"},
	{"SRCWEB_ANALYSIS_BLACKLIST", "analysis.blacklist"},
	{"SRCWEB_FILE_CACHE_MAX_FILES", "fileCache.maxFiles"},
	{"SRCWEB_WATCH_ENABLED", "watch.enabled"},
	{"SRCWEB_WATCH_DEBOUNCE_MS", "watch.debounceMs"},
	{"SRCWEB_HISTORY_ENABLED", "history.enabled"},
	{"SRCWEB_HISTORY_DIR", "history.dir"},
	{"SRCWEB_LOG_LEVEL", "logging.level"},
	{"SRCWEB_LOG_FILE", "logging.file"},
}

// GetSupportedEnvVars returns every environment variable ApplyEnvOverrides reads.
func GetSupportedEnvVars() []string {
	out := make([]string, 0, len(envVars)+1)
	for _, v := range envVars {
		out = append(out, v.name)
	}
	return append(out, EnvConfigPath)
}

// ApplyEnvOverrides applies set SRCWEB_* variables to cfg. Values that do
// not parse for their field are ignored.
func ApplyEnvOverrides(cfg *Config) []EnvOverride {
	var applied []EnvOverride
	for _, v := range envVars {
		value, ok := os.LookupEnv(v.name)
		if !ok {
			continue
		}
		if applyOverride(cfg, v.path, value) {
			applied = append(applied, EnvOverride{EnvVar: v.name, Path: v.path, Value: value})
		}
	}
	return applied
}

func applyOverride(cfg *Config, path, value string) bool {
	switch path {
	case "build.command":
		cfg.Build.Command = value
	case "build.args":
		cfg.Build.Args = strings.Fields(value)
	case "build.saveAnalysis":
		return setBool(&cfg.Build.SaveAnalysis, value)
	case "build.profile":
		cfg.Build.Profile = value
	case "contextLines":
		return setInt(&cfg.ContextLines, value)
	case "buildOnLoad":
		return setBool(&cfg.BuildOnLoad, value)
	case "sourceDirectory":
		cfg.SourceDirectory = value
	case "workspaceRoot":
		cfg.WorkspaceRoot = value
	case "symbolRoots":
		cfg.SymbolRoots = value
	case "editCommand":
		cfg.EditCommand = value
	case "vcsLink":
		cfg.VcsLink = value
	case "server.host":
		cfg.Server.Host = value
	case "server.port":
		return setInt(&cfg.Server.Port, value)
	case "analysis.scipIndexPath":
		cfg.Analysis.ScipIndexPath = value
	case "analysis.blacklist":
		cfg.Analysis.Blacklist = splitList(value)
	case "fileCache.maxFiles":
		return setInt(&cfg.FileCache.MaxFiles, value)
	case "watch.enabled":
		return setBool(&cfg.Watch.Enabled, value)
	case "watch.debounceMs":
		return setInt(&cfg.Watch.DebounceMs, value)
	case "history.enabled":
		return setBool(&cfg.History.Enabled, value)
	case "history.dir":
		cfg.History.Dir = value
	case "logging.level":
		cfg.Logging.Level = strings.ToLower(value)
	case "logging.file":
		cfg.Logging.File = value
	default:
		return false
	}
	return true
}

func setBool(dst *bool, value string) bool {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}
	*dst = b
	return true
}

func setInt(dst *int, value string) bool {
	n, err := strconv.Atoi(value)
	if err != nil {
		return false
	}
	*dst = n
	return true
}

func splitList(value string) []string {
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
