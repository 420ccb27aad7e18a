// Package filecache caches source files read from the project together
// with their highlighted rendering. Highlighting depends on the analysis
// index, so the whole cache is reset whenever the index is rebuilt.
package filecache

import (
	"context"
	stderrors "errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"srcweb/internal/errors"
	"srcweb/internal/highlight"
	"srcweb/internal/metrics"
)

// DefaultMaxFiles bounds the cache when Options.MaxFiles is unset.
const DefaultMaxFiles = 512

// Options configure a Cache.
type Options struct {
	// Root resolves relative paths.
	Root     string
	MaxFiles int
	Renderer *highlight.Renderer
	// Lookup annotates identifiers; nil renders plain syntax colouring.
	Lookup highlight.Lookup
	Logger *slog.Logger
}

type entry struct {
	text        string
	lines       []string
	highlighted []string
}

// Cache is safe for concurrent use. Concurrent loads of one file share a
// single read and render.
type Cache struct {
	root     string
	renderer *highlight.Renderer
	lookup   highlight.Lookup
	logger   *slog.Logger

	files *lru.Cache[string, *entry]
	group singleflight.Group
	// gen is bumped by Reset and Invalidate so loads that straddle either
	// are not cached.
	gen atomic.Uint64
}

func New(opts Options) (*Cache, error) {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.Renderer == nil {
		opts.Renderer = highlight.NewRenderer(opts.Root)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	files, err := lru.New[string, *entry](opts.MaxFiles)
	if err != nil {
		return nil, fmt.Errorf("create file cache: %w", err)
	}
	return &Cache{
		root:     opts.Root,
		renderer: opts.Renderer,
		lookup:   opts.Lookup,
		logger:   opts.Logger,
		files:    files,
	}, nil
}

// Resolve returns the absolute form of path under the cache root.
func (c *Cache) Resolve(path string) string {
	if filepath.IsAbs(path) || c.root == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(c.root, path)
}

// Text returns the whole file.
func (c *Cache) Text(path string) (string, error) {
	e, err := c.get(path, false)
	if err != nil {
		return "", err
	}
	return e.text, nil
}

// Lines returns rows [start, end) of the file, 0-indexed, each terminated
// by a newline.
func (c *Cache) Lines(path string, start, end int) (string, error) {
	e, err := c.get(path, false)
	if err != nil {
		return "", err
	}
	if start < 0 || start > end || end > len(e.lines) {
		return "", errors.Newf(errors.InvalidArgument,
			"lines [%d, %d) out of range for %s (%d lines)", start, end, path, len(e.lines))
	}
	var b strings.Builder
	for _, line := range e.lines[start:end] {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// Highlighted returns one HTML line per source line.
func (c *Cache) Highlighted(path string) ([]string, error) {
	e, err := c.get(path, true)
	if err != nil {
		return nil, err
	}
	return e.highlighted, nil
}

// Invalidate drops one file. A load of it already in flight returns its
// result to its callers but does not cache it.
func (c *Cache) Invalidate(path string) {
	c.gen.Add(1)
	c.files.Remove(c.Resolve(path))
}

// Reset drops every file.
func (c *Cache) Reset() {
	c.gen.Add(1)
	c.files.Purge()
}

// Len reports the number of cached files.
func (c *Cache) Len() int {
	return c.files.Len()
}

func (c *Cache) get(path string, highlighted bool) (*entry, error) {
	abs := c.Resolve(path)
	if e, ok := c.files.Get(abs); ok && (!highlighted || e.highlighted != nil) {
		metrics.RecordFileCacheLookup(true)
		return e, nil
	}
	metrics.RecordFileCacheLookup(false)

	key := abs
	if highlighted {
		key = "hl:" + abs
	}
	gen := c.gen.Load()
	v, err, _ := c.group.Do(key, func() (any, error) {
		e, err := c.load(abs, highlighted)
		if err != nil {
			return nil, err
		}
		if c.gen.Load() == gen {
			c.files.Add(abs, e)
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

func (c *Cache) load(abs string, highlighted bool) (*entry, error) {
	var e *entry
	if cached, ok := c.files.Peek(abs); ok {
		e = cached
	} else {
		data, err := os.ReadFile(abs)
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil, errors.New(errors.NotFound, "source file not found: "+abs, err)
			}
			if info, serr := os.Stat(abs); serr == nil && info.IsDir() {
				return nil, errors.Newf(errors.InvalidArgument, "%s is a directory", abs)
			}
			return nil, errors.New(errors.InternalError, "read source file: "+abs, err)
		}
		text := strings.ToValidUTF8(string(data), "\uFFFD")
		e = &entry{text: text, lines: splitLines(text)}
	}
	if !highlighted || e.highlighted != nil {
		return e, nil
	}

	rendered, err := c.renderer.Render(context.Background(), abs, []byte(e.text), c.lookup)
	if err != nil {
		c.logger.Warn("Highlighting failed, serving plain text", "file", abs, "error", err)
		rendered = make([]string, len(e.lines))
		for i, line := range e.lines {
			rendered[i] = html.EscapeString(line)
		}
	}
	return &entry{text: e.text, lines: e.lines, highlighted: rendered}, nil
}

// splitLines matches the renderer's line model: a trailing newline does not
// start another line.
func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
