package cargo

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	toml "github.com/pelletier/go-toml/v2"
)

// LockFile is the lockfile name next to the workspace manifest.
const LockFile = "Cargo.lock"

// Lockfile is a parsed Cargo.lock.
type Lockfile struct {
	Version  int           `toml:"version"`
	Packages []LockPackage `toml:"package"`
}

// LockPackage is one [[package]] entry.
type LockPackage struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source"`
	Checksum     string   `toml:"checksum"`
	Dependencies []string `toml:"dependencies"`
}

// ReadLockfile parses the Cargo.lock at path.
func ReadLockfile(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var lock Lockfile
	if err := toml.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &lock, nil
}

// CrateNames returns the sorted crate names of every locked package.
func (l *Lockfile) CrateNames() []string {
	names := make([]string, 0, len(l.Packages))
	for _, p := range l.Packages {
		names = append(names, CrateName(p.Name))
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// AllCrates returns the workspace crates plus every crate in Cargo.lock.
// A missing lockfile is not an error.
func AllCrates(root string) ([]string, error) {
	names, err := WorkspaceCrates(root)
	if err != nil {
		return nil, err
	}
	lock, err := ReadLockfile(filepath.Join(root, LockFile))
	if err != nil {
		if _, statErr := os.Stat(filepath.Join(root, LockFile)); os.IsNotExist(statErr) {
			return names, nil
		}
		return nil, err
	}
	names = append(names, lock.CrateNames()...)
	slices.Sort(names)
	return slices.Compact(names), nil
}
