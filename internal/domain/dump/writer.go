package dump

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"path"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/compress/gzip"

	"github.com/kailas-cloud/searchcore/internal/domain/key"
	"github.com/kailas-cloud/searchcore/internal/domain/settings"
	"github.com/kailas-cloud/searchcore/internal/domain/task"
)

type section int

const (
	sectionIndexes section = iota
	sectionTasks
	sectionBatches
	sectionKeys
	sectionClosed
)

var sectionNames = [...]string{"indexes", "tasks", "batches", "keys", "closed"}

func (s section) String() string { return sectionNames[s] }

// Writer produces an archive section by section. Sections must be written in order:
// indexes, tasks, batches, keys. A failed write poisons the writer.
type Writer struct {
	gz        *gzip.Writer
	tw        *tar.Writer
	digest    *digest
	modTime   time.Time
	chunkSize int
	section   section
	chunks    map[string]int
	indexes   map[string]bool
	err       error
}

// Option configures a Writer.
type Option func(*writerOptions)

type writerOptions struct {
	chunkSize int
	level     int
}

// WithChunkSize sets the number of records per line-delimited entry.
func WithChunkSize(n int) Option {
	return func(o *writerOptions) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithCompressionLevel sets the gzip level.
func WithCompressionLevel(level int) Option {
	return func(o *writerOptions) { o.level = level }
}

// NewWriter starts an archive on w and writes its metadata entry. The version field of
// meta is always set to CurrentVersion. Close must be called to make the archive valid;
// it does not close w.
func NewWriter(w io.Writer, meta Metadata, opts ...Option) (*Writer, error) {
	o := writerOptions{chunkSize: DefaultChunkSize, level: gzip.DefaultCompression}
	for _, opt := range opts {
		opt(&o)
	}
	gz, err := gzip.NewWriterLevel(w, o.level)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	meta.DumpVersion = CurrentVersion
	meta.CreatedAt = meta.CreatedAt.UTC()
	dw := &Writer{
		gz:        gz,
		tw:        tar.NewWriter(gz),
		digest:    newDigest(),
		modTime:   meta.CreatedAt,
		chunkSize: o.chunkSize,
		chunks:    make(map[string]int),
		indexes:   make(map[string]bool),
	}
	if err := dw.writeJSON(metadataEntry, meta); err != nil {
		return nil, err
	}
	return dw, nil
}

func (w *Writer) enter(s section) error {
	if w.err != nil {
		return w.err
	}
	if s < w.section {
		return fmt.Errorf("write %s section after %s section", s, w.section)
	}
	w.section = s
	return nil
}

func (w *Writer) fail(err error) error {
	if w.err == nil {
		w.err = err
	}
	return err
}

func (w *Writer) writeEntry(name string, payload []byte) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(payload)),
		ModTime:  w.modTime,
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return w.fail(fmt.Errorf("write header %s: %w", name, err))
	}
	if _, err := w.tw.Write(payload); err != nil {
		return w.fail(fmt.Errorf("write entry %s: %w", name, err))
	}
	w.digest.entry(name).Write(payload)
	return nil
}

func (w *Writer) writeJSON(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return w.fail(fmt.Errorf("encode %s: %w", name, err))
	}
	return w.writeEntry(name, b)
}

// writeLines streams seq into numbered chunks under dir and returns the record count.
func writeLines[T any](w *Writer, dir string, seq iter.Seq2[T, error], encode func(*bytes.Buffer, T) error) (uint64, error) {
	var (
		buf   bytes.Buffer
		lines int
		total uint64
	)
	flush := func() error {
		if lines == 0 {
			return nil
		}
		n := w.chunks[dir]
		w.chunks[dir] = n + 1
		name := path.Join(dir, fmt.Sprintf("%06d.jsonl", n))
		if err := w.writeEntry(name, buf.Bytes()); err != nil {
			return err
		}
		buf.Reset()
		lines = 0
		return nil
	}
	for v, err := range seq {
		if err != nil {
			return total, w.fail(fmt.Errorf("read %s: %w", dir, err))
		}
		if err := encode(&buf, v); err != nil {
			return total, w.fail(fmt.Errorf("encode %s record %d: %w", dir, total, err))
		}
		buf.WriteByte('\n')
		lines++
		total++
		if lines >= w.chunkSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	return total, flush()
}

func encodeJSON[T any](buf *bytes.Buffer, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err //nolint:wrapcheck // wrapped by writeLines
	}
	buf.Write(b)
	return nil
}

// WriteIndex writes one index section. Documents are compacted to one line each. A nil
// ids bitmap assigns ids 0..n-1 in document order; otherwise its cardinality must match
// the document count.
func (w *Writer) WriteIndex(
	meta IndexMetadata,
	s settings.Settings[settings.Unchecked],
	docs iter.Seq2[json.RawMessage, error],
	ids *roaring.Bitmap,
) error {
	if err := w.enter(sectionIndexes); err != nil {
		return err
	}
	if err := task.ValidateIndexUID(meta.UID); err != nil {
		return w.fail(err)
	}
	if w.indexes[meta.UID] {
		return w.fail(fmt.Errorf("index %s written twice", meta.UID))
	}
	w.indexes[meta.UID] = true

	dir := path.Join(indexesDir, meta.UID)
	if err := w.writeJSON(path.Join(dir, "metadata.json"), meta); err != nil {
		return err
	}
	if err := w.writeJSON(path.Join(dir, "settings.json"), s); err != nil {
		return err
	}
	count, err := writeLines(w, path.Join(dir, "documents"), docs, func(buf *bytes.Buffer, doc json.RawMessage) error {
		if err := json.Compact(buf, doc); err != nil {
			return fmt.Errorf("compact document: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if ids == nil {
		ids = roaring.New()
		ids.AddRange(0, count)
	}
	if ids.GetCardinality() != count {
		return w.fail(fmt.Errorf("index %s: %d ids for %d documents", meta.UID, ids.GetCardinality(), count))
	}
	b, err := ids.ToBytes()
	if err != nil {
		return w.fail(fmt.Errorf("serialize docids of %s: %w", meta.UID, err))
	}
	return w.writeEntry(path.Join(dir, "docids.bitmap"), b)
}

// WriteTasks writes the task history in the order given.
func (w *Writer) WriteTasks(tasks iter.Seq2[task.Task, error]) error {
	if err := w.enter(sectionTasks); err != nil {
		return err
	}
	_, err := writeLines(w, tasksDir, tasks, encodeJSON[task.Task])
	return err
}

// WriteBatches writes the batch history.
func (w *Writer) WriteBatches(batches iter.Seq2[task.Batch, error]) error {
	if err := w.enter(sectionBatches); err != nil {
		return err
	}
	_, err := writeLines(w, batchesDir, batches, func(buf *bytes.Buffer, b task.Batch) error {
		return encodeJSON(buf, b.Record())
	})
	return err
}

// WriteKeys writes API key records verbatim.
func (w *Writer) WriteKeys(keys iter.Seq2[key.Key, error]) error {
	if err := w.enter(sectionKeys); err != nil {
		return err
	}
	_, err := writeLines(w, keysDir, keys, func(buf *bytes.Buffer, k key.Key) error {
		return encodeJSON(buf, k.Record())
	})
	return err
}

// Close writes the completion marker and flushes the compressor. Closing a poisoned
// writer returns its first error and leaves the archive without a marker.
func (w *Writer) Close() error {
	if err := w.enter(sectionClosed); err != nil {
		return err
	}
	if err := w.writeJSON(completeEntry, w.digest.marker()); err != nil {
		return err
	}
	if err := w.tw.Close(); err != nil {
		return w.fail(fmt.Errorf("close tar: %w", err))
	}
	if err := w.gz.Close(); err != nil {
		return w.fail(fmt.Errorf("close gzip: %w", err))
	}
	w.err = fmt.Errorf("dump writer closed")
	return nil
}
