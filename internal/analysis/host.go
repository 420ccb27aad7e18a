package analysis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"srcweb/internal/errors"
	"srcweb/internal/metrics"
	"srcweb/internal/span"
)

// Source produces the crate records for a reload.
type Source interface {
	Load(ctx context.Context) ([]CrateRecord, []error, error)
}

// Host owns the current Index. Reload builds a new index off to the side and
// swaps it in, so readers see either the old or the new index, never a mix.
type Host struct {
	mu     sync.RWMutex
	index  *Index
	source Source
	opts   IngestOptions
	logger *slog.Logger
}

// NewHost creates a Host with no index loaded.
func NewHost(source Source, opts IngestOptions, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &Host{source: source, opts: opts, logger: logger}
}

// Reload reads artifacts, ingests them and swaps the result in. On error the
// previous index stays in place.
func (h *Host) Reload(ctx context.Context) (Stats, error) {
	start := time.Now()

	records, soft, err := h.source.Load(ctx)
	if err != nil {
		return Stats{}, err
	}
	idx, skipped := Ingest(records, h.opts)
	idx.soft = len(soft) + len(skipped)
	h.Swap(idx)

	stats := idx.Stats()
	metrics.RecordIndexRebuild(time.Since(start), stats.Defs, stats.Refs, stats.Crates)
	h.logger.Info("Analysis reloaded",
		"crates", stats.Crates,
		"defs", stats.Defs,
		"refs", stats.Refs,
		"softErrors", stats.SoftErrors,
		"duration", time.Since(start),
	)
	return stats, nil
}

// Swap installs idx as the current index.
func (h *Host) Swap(idx *Index) {
	h.mu.Lock()
	h.index = idx
	h.mu.Unlock()
}

// Index returns the current index, or an IndexMissing error before the
// first successful reload.
func (h *Host) Index() (*Index, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.index == nil {
		return nil, errors.Newf(errors.IndexMissing, "no analysis data loaded")
	}
	return h.index, nil
}

// Loaded reports whether an index is installed.
func (h *Host) Loaded() bool {
	_, err := h.Index()
	return err == nil
}

func (h *Host) Title(sp span.Span) (string, bool) {
	idx, err := h.Index()
	if err != nil {
		return "", false
	}
	return idx.Title(sp)
}

func (h *Host) GotoDef(sp span.Span) (span.Span, bool) {
	idx, err := h.Index()
	if err != nil {
		return span.Span{}, false
	}
	return idx.GotoDef(sp)
}

func (h *Host) ClassID(sp span.Span) (DefID, bool) {
	idx, err := h.Index()
	if err != nil {
		return NullID, false
	}
	return idx.ClassID(sp)
}
