// Package fsbrowse lists filesystem roots and directory contents for the
// library setup UI. Browsing is read-only and restricted to directories.
package fsbrowse

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nexalabs/nexa/internal/errs"
)

// Root is a top-level browse entry point.
type Root struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Entry is one directory child.
type Entry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// Browser answers root and directory listings. ExtraRoots supplements the
// platform roots with configured media locations.
type Browser struct {
	ExtraRoots []string
}

// Roots lists the browseable entry points: the filesystem root, the home
// directory, common mount points that exist, and any configured extras.
func (b *Browser) Roots() []Root {
	roots := []Root{{Name: "File System", Path: "/"}}
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, Root{Name: "Home", Path: home})
	}
	for _, mount := range []string{"/mnt", "/media", "/srv", "/Volumes"} {
		if info, err := os.Stat(mount); err == nil && info.IsDir() {
			roots = append(roots, Root{Name: filepath.Base(mount), Path: mount})
		}
	}
	for _, extra := range b.ExtraRoots {
		roots = append(roots, Root{Name: filepath.Base(extra), Path: extra})
	}
	return roots
}

// Browse lists the children of a directory, directories first, each group in
// name order. Hidden entries are skipped.
func (b *Browser) Browse(path string) ([]Entry, error) {
	if path == "" {
		return nil, errs.E(errs.FileSystemBrowse, "browse path is required")
	}
	path = filepath.Clean(path)
	if !filepath.IsAbs(path) {
		return nil, errs.Ef(errs.FileSystemBrowse, "browse path %q must be absolute", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Ef(errs.FileSystemBrowse, "path %q does not exist", path)
		}
		if os.IsPermission(err) {
			return nil, errs.Ef(errs.FileSystemBrowse, "access to %q denied", path)
		}
		return nil, errs.E(errs.FileSystemBrowse, "stat browse path", err)
	}
	if !info.IsDir() {
		return nil, errs.Ef(errs.FileSystemBrowse, "path %q is not a directory", path)
	}

	dirents, err := os.ReadDir(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, errs.Ef(errs.FileSystemBrowse, "access to %q denied", path)
		}
		return nil, errs.E(errs.FileSystemBrowse, "read directory", err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if strings.HasPrefix(d.Name(), ".") {
			continue
		}
		entry := Entry{
			Name:  d.Name(),
			Path:  filepath.Join(path, d.Name()),
			IsDir: d.IsDir(),
		}
		if !d.IsDir() {
			if fi, err := d.Info(); err == nil {
				entry.Size = fi.Size()
			}
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries, nil
}
