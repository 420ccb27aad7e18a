package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"srcweb/internal/config"
	"srcweb/internal/slogutil"
	"srcweb/internal/version"
)

var (
	projectFlag  string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "srcweb",
	Short: "srcweb - browse a Rust workspace while it builds",
	Long: `srcweb runs cargo with save-analysis enabled, streams the compiler's
diagnostics with highlighted source snippets, and serves cross-references
(definitions, references, identifier search, symbol trees) for the workspace.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("srcweb version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "C", ".", "Project directory containing Cargo.toml")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level override (debug, info, warn, error)")
}

// projectDir returns the absolute project directory.
func projectDir() (string, error) {
	dir, err := filepath.Abs(projectFlag)
	if err != nil {
		return "", fmt.Errorf("resolve project directory: %w", err)
	}
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("project directory: %w", err)
	}
	return dir, nil
}

// loadConfig loads and validates the project configuration.
func loadConfig(dir string) (*config.Config, error) {
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger logs to stderr and, when logging.file is set, to that file too.
// The returned closer releases the file.
func newLogger(dir string, cfg *config.Config) (*slog.Logger, io.Closer, error) {
	level := slogutil.LevelFromString(cfg.Logging.Level)
	console := slogutil.NewHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if cfg.Logging.File == "" {
		return slog.New(console), nopCloser{}, nil
	}

	fileLogger, f, err := slogutil.NewFileLogger(config.ResolveDir(dir, cfg.Logging.File), level)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slogutil.NewTeeHandler(console, fileLogger.Handler())), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
