package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"srcweb/internal/analysis"
	"srcweb/internal/build"
	"srcweb/internal/config"
	"srcweb/internal/filecache"
	"srcweb/internal/highlight"
	"srcweb/internal/jobs"
	"srcweb/internal/pull"
	"srcweb/internal/query"
)

// app holds the process-wide services every command shares.
type app struct {
	cfg        *config.Config
	projectDir string
	// root is the workspace root: target/ lives here and analysis file
	// names are relative to it.
	root string

	logger  *slog.Logger
	closers []io.Closer

	host   *analysis.Host
	files  *filecache.Cache
	query  *query.Engine
	pull   *pull.Cache
	builds *build.Orchestrator
	store  *jobs.Store // nil when history is disabled
}

func newApp(dir string, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, projectDir: dir, root: dir, logger: logger}
	if cfg.WorkspaceRoot != "" {
		a.root = config.ResolveDir(dir, cfg.WorkspaceRoot)
	}

	loader := &analysis.Loader{
		ProjectDir:    a.root,
		Profile:       cfg.Build.Profile,
		SCIPIndexPath: config.ResolveDir(a.root, cfg.Analysis.ScipIndexPath),
		Logger:        logger,
	}
	a.host = analysis.NewHost(loader, analysis.IngestOptions{
		ProjectDir: a.root,
		Blacklist:  cfg.Analysis.Blacklist,
		Logger:     logger,
	}, logger)

	files, err := filecache.New(filecache.Options{
		Root:     a.root,
		MaxFiles: cfg.FileCache.MaxFiles,
		Renderer: highlight.NewRenderer(a.root),
		Lookup:   a.host,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	a.files = files

	a.query = query.NewEngine(query.Options{
		Index:         a.host,
		Files:         files,
		ProjectDir:    a.root,
		WorkspaceRoot: a.root,
		Roots:         query.RootsMode(cfg.SymbolRoots),
		ContextLines:  cfg.ContextLines,
		Logger:        logger,
	})

	if cfg.History.Enabled {
		store, err := jobs.OpenStore(config.ResolveDir(dir, cfg.History.Dir), logger)
		if err != nil {
			return nil, err
		}
		a.store = store
		a.closers = append(a.closers, store)
		if n, err := store.CleanupOldJobs(30 * 24 * time.Hour); err == nil && n > 0 {
			logger.Debug("Pruned old jobs", "count", n)
		}
	}

	a.pull = pull.NewCache(logger)
	a.builds = build.NewOrchestrator(build.Options{
		Command: build.Command{
			Program:      cfg.Build.Command,
			Args:         cfg.Build.Args,
			Dir:          dir,
			SaveAnalysis: cfg.Build.SaveAnalysis,
		},
		ContextLines: cfg.ContextLines,
		Indexer:      a.host,
		Files:        files,
		Pull:         a.pull,
		Jobs:         a.store,
		Logger:       logger,
	})
	return a, nil
}

// loadIndex reads the analysis data left by a previous build. Missing data
// is not an error: the first build produces it.
func (a *app) loadIndex(ctx context.Context) {
	stats, err := a.host.Reload(ctx)
	if err != nil {
		a.logger.Warn("No analysis data loaded", "error", err)
		return
	}
	if stats.Defs == 0 {
		a.logger.Info("Analysis data is empty, run a build with save-analysis enabled")
	}
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
