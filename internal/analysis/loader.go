package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"srcweb/internal/errors"
	"srcweb/internal/metrics"
)

// Loader reads analysis artifacts produced by a build.
type Loader struct {
	// ProjectDir is the workspace root containing target/.
	ProjectDir string
	// Profile is the cargo profile directory, "debug" or "release".
	Profile string
	// SCIPIndexPath optionally names a SCIP index whose contents are loaded
	// alongside the save-analysis files.
	SCIPIndexPath string
	Logger        *slog.Logger
}

// ArtifactDirs returns the directories holding save-analysis files.
func (l *Loader) ArtifactDirs() []string {
	profile := l.Profile
	if profile == "" {
		profile = "debug"
	}
	target := filepath.Join(l.ProjectDir, "target", profile)
	return []string{
		filepath.Join(target, "save-analysis"),
		filepath.Join(target, "deps", "save-analysis"),
	}
}

// Load reads every artifact. Files that fail to parse are returned as soft
// errors and skipped; the returned error is reserved for cancellation and an
// unreadable SCIP index.
func (l *Loader) Load(ctx context.Context) ([]CrateRecord, []error, error) {
	logger := l.logger()

	var paths []string
	for _, dir := range l.ArtifactDirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("Cannot list analysis directory", "dir", dir, "error", err)
			}
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	records := make([]*CrateRecord, len(paths))
	softErrs := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := ReadRecord(path)
			if err != nil {
				softErrs[i] = err
				return nil
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var out []CrateRecord
	var soft []error
	for i := range paths {
		if softErrs[i] != nil {
			logger.Warn("Skipping malformed analysis file", "path", paths[i], "error", softErrs[i])
			metrics.RecordSoftError("analysis_file")
			soft = append(soft, softErrs[i])
			continue
		}
		out = append(out, *records[i])
	}

	if l.SCIPIndexPath != "" {
		scipRecords, err := LoadSCIP(l.SCIPIndexPath)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, scipRecords...)
	}

	logger.Debug("Loaded analysis artifacts", "files", len(paths), "records", len(out), "skipped", len(soft))
	return out, soft, nil
}

// ReadRecord decodes one save-analysis file.
func ReadRecord(path string) (*CrateRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.ParseError, fmt.Sprintf("cannot read %s", path), err)
	}
	var rec CrateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.New(errors.ParseError, fmt.Sprintf("malformed analysis in %s", path), err)
	}
	if rec.Prelude == nil {
		return nil, errors.Newf(errors.ParseError, "analysis in %s has no prelude", path)
	}
	rec.Source = path
	return &rec, nil
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
