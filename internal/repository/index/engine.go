// Package index is the in-process index engine state: index metadata, settings and
// documents keyed by internal document id. It is the snapshot source for dump creation and
// the staging target for dump import. The server itself only snapshots, restores and
// checks existence; the mutators stand in for the indexing pipeline, which lives outside
// this module, and seed indexes in tests.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kailas-cloud/searchcore/internal/domain"
	"github.com/kailas-cloud/searchcore/internal/domain/dump"
	"github.com/kailas-cloud/searchcore/internal/domain/settings"
	"github.com/kailas-cloud/searchcore/internal/domain/task"
)

// index is never mutated once published in Engine.indexes; writers install a modified
// copy. Document payloads are shared between copies and never modified.
type index struct {
	meta     dump.IndexMetadata
	settings settings.Settings[settings.Checked]
	docs     map[uint32]json.RawMessage
	ids      *roaring.Bitmap
	nextID   uint32
}

func (ix *index) clone() *index {
	next := *ix
	next.docs = maps.Clone(ix.docs)
	next.ids = ix.ids.Clone()
	return &next
}

// Info is the public view of an index.
type Info struct {
	Metadata     dump.IndexMetadata
	Settings     settings.Settings[settings.Checked]
	NumberOfDocs uint64
}

// Engine holds every index in memory. Reads see either the state before or after a
// write, never a partial one.
type Engine struct {
	mu        sync.RWMutex
	indexes   map[string]*index
	restoring bool
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{indexes: make(map[string]*index)}
}

// CreateIndex registers an empty index with default settings.
func (e *Engine) CreateIndex(uid, primaryKey string, now time.Time) error {
	if err := task.ValidateIndexUID(uid); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.indexes[uid]; ok {
		return domain.ErrIndexAlreadyExists
	}
	now = now.UTC()
	e.indexes[uid] = &index{
		meta:     dump.IndexMetadata{UID: uid, PrimaryKey: primaryKey, CreatedAt: now, UpdatedAt: now},
		settings: settings.Defaults(),
		docs:     make(map[uint32]json.RawMessage),
		ids:      roaring.New(),
	}
	return nil
}

// DeleteIndex removes an index with its documents.
func (e *Engine) DeleteIndex(uid string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.indexes[uid]; !ok {
		return domain.ErrIndexNotFound
	}
	delete(e.indexes, uid)
	return nil
}

// update applies fn to a copy of the index and publishes it.
func (e *Engine) update(uid string, fn func(ix *index) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.indexes[uid]
	if !ok {
		return domain.ErrIndexNotFound
	}
	next := cur.clone()
	if err := fn(next); err != nil {
		return err
	}
	e.indexes[uid] = next
	return nil
}

// UpdateSettings applies a validated settings patch.
func (e *Engine) UpdateSettings(uid string, patch settings.Settings[settings.Checked], now time.Time) error {
	return e.update(uid, func(ix *index) error {
		ix.settings = settings.Apply(ix.settings, patch)
		ix.meta.UpdatedAt = now.UTC()
		return nil
	})
}

// AddDocuments stores documents under fresh internal ids and returns the ids in order.
func (e *Engine) AddDocuments(uid string, docs []json.RawMessage, now time.Time) ([]uint32, error) {
	var assigned []uint32
	err := e.update(uid, func(ix *index) error {
		assigned = make([]uint32, 0, len(docs))
		for i, doc := range docs {
			if !json.Valid(doc) {
				return fmt.Errorf("document %d of %s: invalid json", i, uid)
			}
			id := ix.nextID
			ix.nextID++
			ix.docs[id] = slices.Clone(doc)
			ix.ids.Add(id)
			assigned = append(assigned, id)
		}
		ix.meta.UpdatedAt = now.UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assigned, nil
}

// DeleteDocuments removes documents by internal id and returns how many existed.
func (e *Engine) DeleteDocuments(uid string, ids []uint32, now time.Time) (uint64, error) {
	var deleted uint64
	err := e.update(uid, func(ix *index) error {
		for _, id := range ids {
			if ix.ids.CheckedRemove(id) {
				delete(ix.docs, id)
				deleted++
			}
		}
		ix.meta.UpdatedAt = now.UTC()
		return nil
	})
	return deleted, err
}

// Document returns one document by internal id.
func (e *Engine) Document(uid string, id uint32) (json.RawMessage, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ix, ok := e.indexes[uid]
	if !ok {
		return nil, domain.ErrIndexNotFound
	}
	doc, ok := ix.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return slices.Clone(doc), nil
}

// Index describes one index.
func (e *Engine) Index(uid string) (Info, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ix, ok := e.indexes[uid]
	if !ok {
		return Info{}, domain.ErrIndexNotFound
	}
	return info(ix), nil
}

// Exists reports whether an index is registered.
func (e *Engine) Exists(uid string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, ok := e.indexes[uid]
	return ok
}

// List describes every index ordered by uid.
func (e *Engine) List() []Info {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Info, 0, len(e.indexes))
	for _, uid := range slices.Sorted(maps.Keys(e.indexes)) {
		out = append(out, info(e.indexes[uid]))
	}
	return out
}

func info(ix *index) Info {
	return Info{Metadata: ix.meta, Settings: ix.settings, NumberOfDocs: ix.ids.GetCardinality()}
}

// Snapshot captures every index at one point in time, ordered by uid. Later writes are
// not visible through the returned snapshots.
func (e *Engine) Snapshot(_ context.Context) ([]dump.IndexSnapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]dump.IndexSnapshot, 0, len(e.indexes))
	for _, uid := range slices.Sorted(maps.Keys(e.indexes)) {
		ix := e.indexes[uid]
		ids := ix.ids.Clone()
		out = append(out, dump.IndexSnapshot{
			Metadata:  ix.meta,
			Settings:  settings.Unvalidated(ix.settings),
			Documents: documents(ix.docs, ids),
			DocIDs:    ids,
		})
	}
	return out, nil
}

// documents yields docs in ascending id order. docs is the published map of an index
// version, which is never written to again.
func documents(docs map[uint32]json.RawMessage, ids *roaring.Bitmap) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		it := ids.Iterator()
		for it.HasNext() {
			id := it.Next()
			doc, ok := docs[id]
			if !ok {
				yield(nil, fmt.Errorf("document id %d has no payload", id))
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}
