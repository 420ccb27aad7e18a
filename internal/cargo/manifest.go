// Package cargo reads Cargo manifests and lockfiles to learn which crates
// belong to the workspace being browsed.
package cargo

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// ManifestFile is the manifest name Cargo looks for.
const ManifestFile = "Cargo.toml"

// Manifest is the subset of Cargo.toml this package needs.
type Manifest struct {
	Package   *Package   `toml:"package"`
	Lib       *Target    `toml:"lib"`
	Bins      []Target   `toml:"bin"`
	Workspace *Workspace `toml:"workspace"`
}

// Package is the [package] table.
type Package struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Edition string `toml:"edition"`
}

// Target is a [lib] or [[bin]] table.
type Target struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// Workspace is the [workspace] table.
type Workspace struct {
	Members []string `toml:"members"`
	Exclude []string `toml:"exclude"`
}

// ReadManifest parses the Cargo.toml at path.
func ReadManifest(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &m, nil
}

// CrateName converts a package or target name to the identifier rustc
// uses for the crate.
func CrateName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// CrateNames returns the crate names a manifest's package compiles to:
// the library (renamed by [lib] name when set) and every binary.
func (m *Manifest) CrateNames() []string {
	if m.Package == nil {
		return nil
	}
	var names []string
	lib := m.Package.Name
	if m.Lib != nil && m.Lib.Name != "" {
		lib = m.Lib.Name
	}
	names = append(names, CrateName(lib))
	for _, bin := range m.Bins {
		if bin.Name != "" {
			names = append(names, CrateName(bin.Name))
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// WorkspaceCrates returns the sorted crate names of the package at root
// and of every workspace member, with globbed members expanded.
func WorkspaceCrates(root string) ([]string, error) {
	m, err := ReadManifest(filepath.Join(root, ManifestFile))
	if err != nil {
		return nil, err
	}

	names := m.CrateNames()
	if m.Workspace == nil {
		return names, nil
	}

	excluded := make(map[string]bool, len(m.Workspace.Exclude))
	for _, ex := range m.Workspace.Exclude {
		excluded[filepath.Clean(filepath.Join(root, ex))] = true
	}

	for _, pattern := range m.Workspace.Members {
		dirs, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad workspace member pattern %q: %w", pattern, err)
		}
		for _, dir := range dirs {
			if excluded[filepath.Clean(dir)] {
				continue
			}
			path := filepath.Join(dir, ManifestFile)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			member, err := ReadManifest(path)
			if err != nil {
				return nil, err
			}
			names = append(names, member.CrateNames()...)
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}
