package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kailas-cloud/searchcore/internal/domain"
	"github.com/kailas-cloud/searchcore/internal/domain/dump"
	"github.com/kailas-cloud/searchcore/internal/domain/settings"
)

var errRestoreClosed = errors.New("restore already committed or aborted")

// Compile-time check: restore implements dump.IndexStager.
var _ dump.IndexStager = (*restore)(nil)

// restore builds a complete replacement index set off to the side.
type restore struct {
	engine  *Engine
	staged  map[string]*index
	pending map[string][]json.RawMessage
	closed  bool
}

// BeginRestore starts staging a replacement for every index. Only one restore may run at
// a time; a second one fails with domain.ErrDumpAlreadyProcessing.
func (e *Engine) BeginRestore(_ context.Context) (dump.IndexStager, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.restoring {
		return nil, domain.ErrDumpAlreadyProcessing
	}
	e.restoring = true
	return &restore{
		engine:  e,
		staged:  make(map[string]*index),
		pending: make(map[string][]json.RawMessage),
	}, nil
}

func (r *restore) Index(meta dump.IndexMetadata, s settings.Settings[settings.Checked]) error {
	if r.closed {
		return errRestoreClosed
	}
	if _, ok := r.staged[meta.UID]; ok {
		return fmt.Errorf("index %s: %w", meta.UID, domain.ErrIndexAlreadyExists)
	}
	r.staged[meta.UID] = &index{
		meta:     meta,
		settings: s,
		docs:     make(map[uint32]json.RawMessage),
		ids:      roaring.New(),
	}
	return nil
}

func (r *restore) Document(indexUID string, doc json.RawMessage) error {
	if r.closed {
		return errRestoreClosed
	}
	if _, ok := r.staged[indexUID]; !ok {
		return fmt.Errorf("document for %s: %w", indexUID, domain.ErrIndexNotFound)
	}
	r.pending[indexUID] = append(r.pending[indexUID], slices.Clone(doc))
	return nil
}

// DocIDs pairs the staged documents of an index with ids in ascending order.
func (r *restore) DocIDs(indexUID string, ids *roaring.Bitmap) error {
	if r.closed {
		return errRestoreClosed
	}
	ix, ok := r.staged[indexUID]
	if !ok {
		return fmt.Errorf("docids for %s: %w", indexUID, domain.ErrIndexNotFound)
	}
	docs := r.pending[indexUID]
	if ids.GetCardinality() != uint64(len(docs)) {
		return fmt.Errorf("index %s: %d ids for %d documents", indexUID, ids.GetCardinality(), len(docs))
	}
	it := ids.Iterator()
	for _, doc := range docs {
		ix.docs[it.Next()] = doc
	}
	ix.ids = ids.Clone()
	if !ids.IsEmpty() {
		ix.nextID = ids.Maximum() + 1
	}
	delete(r.pending, indexUID)
	return nil
}

// Commit replaces every live index with the staged set.
func (r *restore) Commit(_ context.Context) error {
	if r.closed {
		return errRestoreClosed
	}
	for uid, docs := range r.pending {
		if len(docs) > 0 {
			return fmt.Errorf("index %s: %d documents without ids", uid, len(docs))
		}
	}
	r.closed = true

	e := r.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indexes = r.staged
	e.restoring = false
	return nil
}

// Abort drops the staged indexes. It is safe to call after Commit.
func (r *restore) Abort() {
	if r.closed {
		return
	}
	r.closed = true
	r.staged, r.pending = nil, nil

	e := r.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restoring = false
}
