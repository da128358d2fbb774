package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/kailas-cloud/searchcore/internal/domain"
)

func newDir(t *testing.T) (*Dir, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "dumps")
	d, err := NewDir(root)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	return d, root
}

func write(t *testing.T, s Storage, name, body string) Writer {
	t.Helper()
	w, err := s.Create(context.Background(), name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return w
}

func read(t *testing.T, s Storage, name string) string {
	t.Helper()
	r, err := s.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return string(b)
}

func TestDir_CommitPublishes(t *testing.T) {
	d, root := newDir(t)
	ctx := context.Background()

	w := write(t, d, "20250314-092653123.dump", "archive")
	if names, _ := d.List(ctx); len(names) != 0 {
		t.Errorf("uncommitted archive listed: %v", names)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	w.Abort()

	if got := read(t, d, "20250314-092653123.dump"); got != "archive" {
		t.Errorf("content = %q", got)
	}
	names, err := d.List(ctx)
	if err != nil || !slices.Equal(names, []string{"20250314-092653123.dump"}) {
		t.Errorf("List = %v, %v", names, err)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 1 {
		t.Errorf("temporary files left: %d entries", len(entries))
	}
	if err := w.Commit(); err == nil {
		t.Error("second commit accepted")
	}
}

func TestDir_AbortDiscards(t *testing.T) {
	d, root := newDir(t)
	write(t, d, "a.dump", "partial").Abort()

	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Errorf("aborted archive left %d entries", len(entries))
	}
	if _, err := d.Open(context.Background(), "a.dump"); !errors.Is(err, domain.ErrDumpNotFound) {
		t.Errorf("Open = %v", err)
	}
}

func TestDir_RejectsPaths(t *testing.T) {
	d, _ := newDir(t)
	for _, name := range []string{"", "../escape.dump", "sub/a.dump"} {
		if _, err := d.Create(context.Background(), name); err == nil {
			t.Errorf("%q accepted", name)
		}
	}
}

func TestDir_Ping(t *testing.T) {
	d, root := newDir(t)
	if err := d.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	_ = os.RemoveAll(root)
	if err := d.Ping(context.Background()); err == nil {
		t.Error("Ping succeeded on a removed dir")
	}
}
