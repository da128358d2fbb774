package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/kailas-cloud/searchcore/internal/domain"
)

// Compile-time check: Dir implements Storage.
var _ Storage = (*Dir)(nil)

// Dir stores archives as files in one directory. Writes go to a hidden temporary file
// that is renamed into place on Commit.
type Dir struct {
	root string
}

// NewDir creates the directory if needed.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid archive name %q", name)
	}
	return filepath.Join(d.root, name), nil
}

// Create starts writing an archive.
func (d *Dir) Create(_ context.Context, name string) (Writer, error) {
	final, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(d.root, "."+name+"-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return &fileWriter{f: f, final: final}, nil
}

// Open reads an archive. A missing archive yields domain.ErrDumpNotFound.
func (d *Dir) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p) //nolint:gosec // name is confined to the dump dir
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", name, domain.ErrDumpNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// List returns the committed archive names, sorted.
func (d *Dir) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("list dump dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && isArchive(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Ping checks that the directory is still there.
func (d *Dir) Ping(_ context.Context) error {
	fi, err := os.Stat(d.root)
	if err != nil {
		return fmt.Errorf("stat dump dir: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("dump dir %s is not a directory", d.root)
	}
	return nil
}

type fileWriter struct {
	f     *os.File
	final string
	done  bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	return w.f.Write(p) //nolint:wrapcheck // delegating to the file
}

func (w *fileWriter) Commit() error {
	if w.done {
		return fmt.Errorf("archive %s already closed", w.final)
	}
	w.done = true
	if err := w.f.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("sync %s: %w", w.final, err)
	}
	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.f.Name())
		return fmt.Errorf("close %s: %w", w.final, err)
	}
	if err := os.Rename(w.f.Name(), w.final); err != nil {
		_ = os.Remove(w.f.Name())
		return fmt.Errorf("publish %s: %w", w.final, err)
	}
	return nil
}

func (w *fileWriter) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.discard()
}

func (w *fileWriter) discard() {
	_ = w.f.Close()
	_ = os.Remove(w.f.Name())
}
