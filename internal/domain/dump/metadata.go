// Package dump reads and writes the portable engine archive: indexes with their settings,
// documents and id bitmaps, the task and batch history, and API keys.
//
// An archive is a gzip-compressed tar stream. Entries are written in a fixed order:
//
//	metadata.json
//	indexes/<uid>/metadata.json
//	indexes/<uid>/settings.json
//	indexes/<uid>/documents/<n>.jsonl
//	indexes/<uid>/docids.bitmap
//	tasks/<n>.jsonl
//	batches/<n>.jsonl
//	keys/<n>.jsonl
//	complete.json
//
// Line-delimited streams are split into chunks of bounded record count, so neither side
// holds more than one chunk in memory.
package dump

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is the format version written by this package.
const CurrentVersion = 3

// DefaultChunkSize is the number of records per line-delimited entry.
const DefaultChunkSize = 10_000

const (
	metadataEntry = "metadata.json"
	completeEntry = "complete.json"
	indexesDir    = "indexes"
	tasksDir      = "tasks"
	batchesDir    = "batches"
	keysDir       = "keys"
)

// Metadata is the leading entry of every archive.
type Metadata struct {
	DumpVersion     int       `json:"dumpVersion"`
	ProducerVersion string    `json:"producerVersion"`
	CreatedAt       time.Time `json:"createdAt"`
	InstanceUID     uuid.UUID `json:"instanceUid"`
}

// IndexMetadata describes one index section.
type IndexMetadata struct {
	UID        string    `json:"uid"`
	PrimaryKey string    `json:"primaryKey,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// completeMarker closes an archive. Its digest covers the name and payload of every
// entry before it.
type completeMarker struct {
	Entries int    `json:"entries"`
	SHA256  string `json:"sha256"`
}

type digest struct {
	h       hash.Hash
	entries int
}

func newDigest() *digest { return &digest{h: sha256.New()} }

// entry starts a new entry and returns the writer its payload must go through.
func (d *digest) entry(name string) io.Writer {
	d.entries++
	d.h.Write([]byte(name))
	d.h.Write([]byte{0})
	return d.h
}

func (d *digest) marker() completeMarker {
	return completeMarker{Entries: d.entries, SHA256: hex.EncodeToString(d.h.Sum(nil))}
}
