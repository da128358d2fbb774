package dump

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/compress/gzip"

	"github.com/kailas-cloud/searchcore/internal/domain/key"
	"github.com/kailas-cloud/searchcore/internal/domain/settings"
	"github.com/kailas-cloud/searchcore/internal/domain/task"
)

// Visitor receives the content of an archive in archive order. An error returned by any
// method stops the walk.
type Visitor interface {
	Index(meta IndexMetadata, s settings.Settings[settings.Unchecked]) error
	Document(indexUID string, doc json.RawMessage) error
	DocIDs(indexUID string, ids *roaring.Bitmap) error
	Task(t task.Task) error
	Batch(b task.Batch) error
	Key(k key.Key) error
}

// Reader consumes an archive produced by Writer, or by an older format version.
type Reader struct {
	gz     *gzip.Reader
	tr     *tar.Reader
	meta   Metadata
	digest *digest
	walked bool
}

// Open reads the metadata entry and rejects unknown versions before anything else is read.
func Open(r io.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, importErr("archive", fmt.Errorf("open gzip stream: %w", err))
	}
	dr := &Reader{gz: gz, tr: tar.NewReader(gz), digest: newDigest()}
	hdr, err := dr.tr.Next()
	if err != nil {
		return nil, importErr(metadataEntry, fmt.Errorf("read first entry: %w", err))
	}
	if hdr.Name != metadataEntry {
		return nil, importErr(hdr.Name, fmt.Errorf("%w: archive must start with %s", ErrUnexpectedEntry, metadataEntry))
	}
	if err := dr.decodeEntry(hdr.Name, &dr.meta); err != nil {
		return nil, err
	}
	if v := dr.meta.DumpVersion; v < 1 || v > CurrentVersion {
		return nil, importErr(metadataEntry, fmt.Errorf("%w %d, this build reads up to %d", ErrUnsupportedVersion, v, CurrentVersion))
	}
	return dr, nil
}

// Metadata returns the archive metadata.
func (r *Reader) Metadata() Metadata { return r.meta }

// Close releases the decompressor. It does not close the underlying reader.
func (r *Reader) Close() error {
	if err := r.gz.Close(); err != nil {
		return fmt.Errorf("close gzip stream: %w", err)
	}
	return nil
}

// readEntry returns the payload of the current entry and feeds it to the digest.
func (r *Reader) readEntry(name string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(io.MultiWriter(&buf, r.digest.entry(name)), r.tr); err != nil {
		return nil, importErr(name, fmt.Errorf("read entry: %w", err))
	}
	return buf.Bytes(), nil
}

func (r *Reader) decodeEntry(name string, v any) error {
	b, err := r.readEntry(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return importErr(name, fmt.Errorf("decode: %w", err))
	}
	return nil
}

// eachLine streams the records of a line-delimited entry through fn.
func (r *Reader) eachLine(name string, fn func(raw json.RawMessage) error) error {
	dec := json.NewDecoder(io.TeeReader(r.tr, r.digest.entry(name)))
	for line := 0; ; line++ {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return importErr(name, fmt.Errorf("record %d: %w", line, err))
		}
		if err := fn(raw); err != nil {
			return importErr(name, fmt.Errorf("record %d: %w", line, err))
		}
	}
}

type pendingIndex struct {
	meta      IndexMetadata
	settings  bool
	documents uint64
	bitmap    bool
}

type walkState struct {
	section section
	index   *pendingIndex
	seen    map[string]bool
}

// finishIndex closes the current index section. Archives older than the current
// version carry no bitmap; ids are then assigned in document order.
func (r *Reader) finishIndex(st *walkState, v Visitor) error {
	idx := st.index
	if idx == nil {
		return nil
	}
	st.index = nil
	segment := indexesDir + "/" + idx.meta.UID
	if !idx.settings {
		return importErr(segment, fmt.Errorf("%w: index without settings", ErrUnexpectedEntry))
	}
	if idx.bitmap {
		return nil
	}
	if r.meta.DumpVersion >= CurrentVersion {
		return importErr(segment, fmt.Errorf("%w: index without docids.bitmap", ErrUnexpectedEntry))
	}
	ids := roaring.New()
	ids.AddRange(0, idx.documents)
	if err := v.DocIDs(idx.meta.UID, ids); err != nil {
		return importErr(segment, err)
	}
	return nil
}

func (r *Reader) enter(st *walkState, s section, name string) error {
	if s < st.section {
		return importErr(name, fmt.Errorf("%w: %s entry after %s section", ErrUnexpectedEntry, s, st.section))
	}
	st.section = s
	return nil
}

// Walk streams every entry of the archive through v, upgrading records from older
// format versions. It fails with an *ImportError on the first bad segment, and also when
// the archive has no valid completion marker. Walk can only be called once.
func (r *Reader) Walk(v Visitor) error {
	if r.walked {
		return fmt.Errorf("dump already walked")
	}
	r.walked = true
	st := &walkState{seen: make(map[string]bool)}
	for {
		hdr, err := r.tr.Next()
		if errors.Is(err, io.EOF) {
			return importErr("archive", ErrIncomplete)
		}
		if err != nil {
			return importErr("archive", fmt.Errorf("read entry header: %w", err))
		}
		name := hdr.Name
		if name == completeEntry {
			if err := r.finishIndex(st, v); err != nil {
				return err
			}
			return r.verify()
		}
		if err := r.visit(st, name, v); err != nil {
			return err
		}
	}
}

func (r *Reader) visit(st *walkState, name string, v Visitor) error {
	dir, rest, _ := strings.Cut(name, "/")
	switch dir {
	case indexesDir:
		if err := r.enter(st, sectionIndexes, name); err != nil {
			return err
		}
		return r.visitIndex(st, name, rest, v)
	case tasksDir:
		if err := r.enterHistory(st, sectionTasks, name, v); err != nil {
			return err
		}
		return r.eachLine(name, func(raw json.RawMessage) error {
			b, err := upgradeTask(r.meta.DumpVersion, raw)
			if err != nil {
				return err
			}
			var t task.Task
			if err := json.Unmarshal(b, &t); err != nil {
				return err //nolint:wrapcheck // eachLine adds the record position
			}
			return v.Task(t)
		})
	case batchesDir:
		if err := r.enterHistory(st, sectionBatches, name, v); err != nil {
			return err
		}
		return r.eachLine(name, func(raw json.RawMessage) error {
			var rec task.BatchRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err //nolint:wrapcheck // eachLine adds the record position
			}
			return v.Batch(task.BatchFromRecord(rec))
		})
	case keysDir:
		if err := r.enterHistory(st, sectionKeys, name, v); err != nil {
			return err
		}
		return r.eachLine(name, func(raw json.RawMessage) error {
			var rec key.Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err //nolint:wrapcheck // eachLine adds the record position
			}
			k, err := key.Reconstruct(rec)
			if err != nil {
				return err //nolint:wrapcheck // eachLine adds the record position
			}
			return v.Key(k)
		})
	}
	return importErr(name, ErrUnexpectedEntry)
}

func (r *Reader) enterHistory(st *walkState, s section, name string, v Visitor) error {
	if err := r.finishIndex(st, v); err != nil {
		return err
	}
	if !strings.HasSuffix(name, ".jsonl") || strings.Count(name, "/") != 1 {
		return importErr(name, ErrUnexpectedEntry)
	}
	return r.enter(st, s, name)
}

func (r *Reader) visitIndex(st *walkState, name, rest string, v Visitor) error {
	uid, file, ok := strings.Cut(rest, "/")
	if !ok || task.ValidateIndexUID(uid) != nil {
		return importErr(name, ErrUnexpectedEntry)
	}
	if file == "metadata.json" {
		if err := r.finishIndex(st, v); err != nil {
			return err
		}
		if st.seen[uid] {
			return importErr(name, fmt.Errorf("%w: index %s appears twice", ErrUnexpectedEntry, uid))
		}
		st.seen[uid] = true
		var meta IndexMetadata
		if err := r.decodeEntry(name, &meta); err != nil {
			return err
		}
		if meta.UID != uid {
			return importErr(name, fmt.Errorf("metadata names index %q", meta.UID))
		}
		st.index = &pendingIndex{meta: meta}
		return nil
	}

	idx := st.index
	if idx == nil || idx.meta.UID != uid {
		return importErr(name, fmt.Errorf("%w: entry outside its index section", ErrUnexpectedEntry))
	}
	switch {
	case file == "settings.json" && !idx.settings:
		b, err := r.readEntry(name)
		if err != nil {
			return err
		}
		if b, err = upgradeSettings(r.meta.DumpVersion, b); err != nil {
			return importErr(name, err)
		}
		var s settings.Settings[settings.Unchecked]
		if err := json.Unmarshal(b, &s); err != nil {
			return importErr(name, fmt.Errorf("decode: %w", err))
		}
		idx.settings = true
		if err := v.Index(idx.meta, s); err != nil {
			return importErr(name, err)
		}
		return nil

	case strings.HasPrefix(file, "documents/") && strings.HasSuffix(file, ".jsonl") && idx.settings && !idx.bitmap:
		return r.eachLine(name, func(raw json.RawMessage) error {
			if len(raw) == 0 || raw[0] != '{' {
				return fmt.Errorf("document is not a JSON object")
			}
			idx.documents++
			return v.Document(uid, raw)
		})

	case file == "docids.bitmap" && idx.settings && !idx.bitmap:
		b, err := r.readEntry(name)
		if err != nil {
			return err
		}
		ids := roaring.New()
		if err := ids.UnmarshalBinary(b); err != nil {
			return importErr(name, fmt.Errorf("decode bitmap: %w", err))
		}
		if ids.GetCardinality() != idx.documents {
			return importErr(name, fmt.Errorf("%d ids for %d documents", ids.GetCardinality(), idx.documents))
		}
		idx.bitmap = true
		if err := v.DocIDs(uid, ids); err != nil {
			return importErr(name, err)
		}
		return nil
	}
	return importErr(name, ErrUnexpectedEntry)
}

// verify checks the completion marker against every entry read so far and that nothing
// follows it.
func (r *Reader) verify() error {
	want := r.digest.marker()
	b, err := r.readEntry(completeEntry)
	if err != nil {
		return err
	}
	var got completeMarker
	if err := json.Unmarshal(b, &got); err != nil {
		return importErr(completeEntry, fmt.Errorf("%w: %w", ErrIncomplete, err))
	}
	if got != want {
		return importErr(completeEntry, fmt.Errorf("%w: marker does not match the %d entries read", ErrIncomplete, want.Entries))
	}
	if _, err := r.tr.Next(); !errors.Is(err, io.EOF) {
		return importErr(completeEntry, fmt.Errorf("%w: entries after the completion marker", ErrUnexpectedEntry))
	}
	if _, err := io.Copy(io.Discard, r.gz); err != nil {
		return importErr("archive", fmt.Errorf("read gzip trailer: %w", err))
	}
	return nil
}
