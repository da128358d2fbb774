// Package storage holds dump archives: a local directory or an S3-compatible bucket.
// Archives are written as streams and only become visible under their name on Commit.
package storage

import (
	"context"
	"io"
	"strings"
)

// Extension is the file suffix of dump archives.
const Extension = ".dump"

// Writer streams one archive. Commit publishes it; Abort discards what was written.
// Abort after Commit is a no-op.
type Writer interface {
	io.Writer
	Commit() error
	Abort()
}

// Storage is a dump destination and source.
type Storage interface {
	Create(ctx context.Context, name string) (Writer, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// ArchiveName returns the object name of a dump uid.
func ArchiveName(dumpUID string) string {
	return dumpUID + Extension
}

func isArchive(name string) bool {
	return strings.HasSuffix(name, Extension) && !strings.HasPrefix(name, ".")
}
