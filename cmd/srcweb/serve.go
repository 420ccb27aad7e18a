package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"srcweb/internal/api"
	"srcweb/internal/build"
	"srcweb/internal/config"
	"srcweb/internal/editor"
	"srcweb/internal/jobs"
	"srcweb/internal/watcher"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP API server",
	Long: `Start the srcweb HTTP server. It runs builds on request, streams their
diagnostics as server-sent events, and answers cross-reference queries
against the workspace's save-analysis data.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	dir, err := projectDir()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return err
	}
	logger, logCloser, err := newLogger(dir, cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	a, err := newApp(dir, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var runner *jobs.Runner
	if a.store != nil {
		runner = jobs.NewRunner(a.store, logger, jobs.DefaultRunnerConfig())
		runner.RegisterHandler(jobs.JobTypeReindex, build.ReindexHandler(a.host, a.files, logger))
		if err := runner.Start(); err != nil {
			return fmt.Errorf("start job runner: %w", err)
		}
		defer func() {
			if err := runner.Stop(10 * time.Second); err != nil {
				logger.Warn("Job runner did not stop cleanly", "error", err)
			}
		}()
	}

	if cfg.Watch.Enabled {
		wcfg := watcher.DefaultConfig()
		wcfg.DebounceMs = cfg.Watch.DebounceMs
		w := watcher.New(watchRoot(a, cfg), wcfg, logger, func(events []watcher.Event) {
			for _, ev := range events {
				a.files.Invalidate(ev.Path)
			}
		})
		if err := w.Start(); err != nil {
			logger.Warn("File watcher disabled", "error", err)
		} else {
			defer w.Stop()
		}
	}

	if cfg.BuildOnLoad {
		a.builds.Start(build.DiscardSink{})
	} else {
		a.loadIndex(cmd.Context())
	}

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	server := api.NewServer(addr, api.Deps{
		Config:     cfg,
		ProjectDir: a.root,
		Host:       a.host,
		Query:      a.query,
		Files:      a.files,
		Pull:       a.pull,
		Builds:     a.builds,
		Jobs:       runner,
		Editor:     &editor.Launcher{Template: cfg.EditCommand, Dir: a.root, Logger: logger},
		Logger:     logger,
	})

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "srcweb listening on http://%s\n", addr)
		fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Error during shutdown", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")
	}
	return nil
}

// watchRoot is the source directory when it exists, else the project.
func watchRoot(a *app, cfg *config.Config) string {
	if cfg.SourceDirectory != "" {
		dir := config.ResolveDir(a.root, cfg.SourceDirectory)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return a.root
}
