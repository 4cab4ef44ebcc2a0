// Package walker produces the lazy, depth-first sequence of files to index
// under a root directory.
package walker

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
)

// Walker yields file paths one at a time from an explicit stack of pending
// directories. It is single use: once exhausted it stays exhausted.
type Walker struct {
	root    string
	filter  Filter
	stack   []string
	pending []string
	started bool
	done    bool
	err     error
	skipped int
	logger  *slog.Logger
}

// New returns a Walker over root. Nothing is read until the first Next.
func New(root string, filter Filter) *Walker {
	return &Walker{
		root:   root,
		filter: filter,
		logger: slog.Default().With("component", "walker"),
	}
}

// Next returns the next selected file. It returns false when the walk is
// finished or has failed; check Err to tell the two apart.
func (w *Walker) Next() (string, bool) {
	for {
		if len(w.pending) > 0 {
			path := w.pending[0]
			w.pending = w.pending[1:]
			return path, true
		}
		if w.done {
			return "", false
		}
		if !w.started {
			w.started = true
			if !w.start() {
				return "", false
			}
			continue
		}
		if len(w.stack) == 0 {
			w.done = true
			return "", false
		}
		dir := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		w.expand(dir)
	}
}

// Err reports why the walk stopped early. Only an unusable root is fatal.
func (w *Walker) Err() error {
	return w.err
}

// Skipped returns the number of directories that could not be read.
func (w *Walker) Skipped() int {
	return w.skipped
}

func (w *Walker) start() bool {
	info, err := os.Stat(w.root)
	if err != nil {
		w.fail(fmt.Errorf("accessing root %s: %w", w.root, err))
		return false
	}
	if !info.IsDir() {
		if info.Mode().IsRegular() && w.filter.Included(w.root) {
			w.pending = append(w.pending, w.root)
		}
		w.done = true
		return true
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		w.fail(fmt.Errorf("reading root %s: %w", w.root, err))
		return false
	}
	w.collect(w.root, entries)
	return true
}

func (w *Walker) fail(err error) {
	w.err = err
	w.done = true
}

func (w *Walker) expand(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.skipped++
		w.logger.Warn("skipping unreadable directory", "path", dir, "error", err)
		return
	}
	w.collect(dir, entries)
}

func (w *Walker) collect(dir string, entries []fs.DirEntry) {
	var subdirs []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if w.filter.Excluded(path) {
			continue
		}
		switch kind(entry, path) {
		case kindDir:
			subdirs = append(subdirs, path)
		case kindFile:
			if w.filter.Included(path) {
				w.pending = append(w.pending, path)
			}
		}
	}
	// Pushed in reverse so the first subdirectory is expanded next.
	slices.Reverse(subdirs)
	w.stack = append(w.stack, subdirs...)
}

type entryKind int

const (
	kindOther entryKind = iota
	kindDir
	kindFile
)

// kind classifies an entry. Symlinks are resolved only to regular files;
// linked directories are not followed.
func kind(entry fs.DirEntry, path string) entryKind {
	mode := entry.Type()
	switch {
	case mode.IsDir():
		return kindDir
	case mode.IsRegular():
		return kindFile
	case mode&fs.ModeSymlink != 0:
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return kindFile
		}
	}
	return kindOther
}
