package filecache

import (
	"cmp"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"srcweb/internal/errors"
)

// ListingKind distinguishes the entries of a DirectoryListing.
type ListingKind string

const (
	KindDirectory ListingKind = "Directory"
	KindFile      ListingKind = "File"
)

// Listing is one entry of a directory. Path is relative to the cache root.
type Listing struct {
	Kind ListingKind `json:"kind"`
	Name string      `json:"name"`
	Path string      `json:"path"`
}

// DirectoryListing is the immediate contents of one directory.
type DirectoryListing struct {
	Path  string    `json:"path"`
	Files []Listing `json:"files"`
}

// List reads a directory without recursing. Directories sort before files,
// then by name; entries that are neither (symlinks, sockets) are left out.
// Listings are not cached.
func (c *Cache) List(path string) (*DirectoryListing, error) {
	abs := c.Resolve(path)
	entries, err := os.ReadDir(abs)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.New(errors.NotFound, "directory not found: "+abs, err)
		}
		if info, serr := os.Stat(abs); serr == nil && !info.IsDir() {
			return nil, errors.Newf(errors.InvalidArgument, "%s is not a directory", abs)
		}
		return nil, errors.New(errors.InternalError, "read directory: "+abs, err)
	}

	rel := c.relative(abs)
	files := make([]Listing, 0, len(entries))
	for _, e := range entries {
		var kind ListingKind
		switch {
		case e.IsDir():
			kind = KindDirectory
		case e.Type().IsRegular():
			kind = KindFile
		default:
			continue
		}
		files = append(files, Listing{
			Kind: kind,
			Name: e.Name(),
			Path: filepath.ToSlash(filepath.Join(rel, e.Name())),
		})
	}
	slices.SortFunc(files, func(a, b Listing) int {
		if a.Kind != b.Kind {
			if a.Kind == KindDirectory {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return &DirectoryListing{Path: filepath.ToSlash(rel), Files: files}, nil
}

// IsDir reports whether path names a directory.
func (c *Cache) IsDir(path string) bool {
	info, err := os.Stat(c.Resolve(path))
	return err == nil && info.IsDir()
}

func (c *Cache) relative(abs string) string {
	if c.root == "" {
		return abs
	}
	rel, err := filepath.Rel(c.root, abs)
	if err != nil {
		return abs
	}
	return rel
}
