package dump

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchcore/internal/domain/dump"
	domkey "github.com/kailas-cloud/searchcore/internal/domain/key"
	"github.com/kailas-cloud/searchcore/internal/domain/settings"
	domtask "github.com/kailas-cloud/searchcore/internal/domain/task"
	"github.com/kailas-cloud/searchcore/internal/metrics"
)

// ImportFrom imports the named archive from the dump storage.
func (s *Service) ImportFrom(ctx context.Context, name string) (dump.Metadata, error) {
	rc, err := s.store.Open(ctx, name)
	if err != nil {
		return dump.Metadata{}, fmt.Errorf("open dump %s: %w", name, err)
	}
	defer rc.Close()
	return s.Import(ctx, rc)
}

// Import replaces the engine state with the content of an archive. Nothing becomes
// visible until the whole archive has been read and verified; on failure the previous
// state is left untouched.
func (s *Service) Import(ctx context.Context, r io.Reader) (dump.Metadata, error) {
	if err := s.acquire(); err != nil {
		return dump.Metadata{}, err
	}
	defer s.release()

	start := time.Now()
	meta, err := s.importArchive(ctx, r)
	metrics.DumpDuration.WithLabelValues("import").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DumpFailuresTotal.WithLabelValues("import").Inc()
		s.logger.Error("Dump import failed", zap.Error(err))
		return dump.Metadata{}, err
	}
	metrics.DumpImportsByVersion.WithLabelValues(strconv.Itoa(meta.DumpVersion)).Inc()
	s.logger.Info("Dump imported",
		zap.Int("dump_version", meta.DumpVersion),
		zap.String("producer_version", meta.ProducerVersion),
		zap.Time("created_at", meta.CreatedAt),
	)
	return meta, nil
}

func (s *Service) importArchive(ctx context.Context, r io.Reader) (dump.Metadata, error) {
	dr, err := dump.Open(r)
	if err != nil {
		return dump.Metadata{}, err //nolint:wrapcheck // already an *ImportError
	}
	defer dr.Close()

	if err := s.clearStaging(ctx); err != nil {
		return dump.Metadata{}, err
	}
	stager, err := s.engine.BeginRestore(ctx)
	if err != nil {
		return dump.Metadata{}, fmt.Errorf("begin index restore: %w", err)
	}
	v := &stagingVisitor{ctx: ctx, stager: stager, stores: s.staging, features: s.features}
	if err := dr.Walk(v); err != nil {
		stager.Abort()
		s.discardStaging(ctx)
		return dump.Metadata{}, err //nolint:wrapcheck // already an *ImportError
	}
	if err := stager.Commit(ctx); err != nil {
		stager.Abort()
		s.discardStaging(ctx)
		return dump.Metadata{}, fmt.Errorf("commit indexes: %w", err)
	}
	if err := s.publish(ctx, v); err != nil {
		s.discardStaging(ctx)
		return dump.Metadata{}, err
	}
	s.discardStaging(ctx)
	return dr.Metadata(), nil
}

// publish replaces the live history with the staged one and moves the uid sequences
// past the imported records. It runs after the indexes are committed, so a rejected
// commit leaves the previous history in place.
func (s *Service) publish(ctx context.Context, v *stagingVisitor) error {
	if err := s.live.Tasks.Clear(ctx); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	if err := s.live.Keys.Clear(ctx); err != nil {
		return fmt.Errorf("clear keys: %w", err)
	}
	for t, err := range s.staging.Tasks.All(ctx) {
		if err != nil {
			return fmt.Errorf("read staged tasks: %w", err)
		}
		if err := s.live.Tasks.Put(ctx, t); err != nil {
			return fmt.Errorf("publish task %d: %w", t.UID(), err)
		}
	}
	for b, err := range s.staging.Tasks.AllBatches(ctx) {
		if err != nil {
			return fmt.Errorf("read staged batches: %w", err)
		}
		if err := s.live.Tasks.PutBatch(ctx, b); err != nil {
			return fmt.Errorf("publish batch %d: %w", b.UID(), err)
		}
	}
	for k, err := range s.staging.Keys.All(ctx) {
		if err != nil {
			return fmt.Errorf("read staged keys: %w", err)
		}
		if err := s.live.Keys.Put(ctx, k); err != nil {
			return fmt.Errorf("publish key %s: %w", k.UID(), err)
		}
	}
	if err := s.live.Tasks.ResetSequences(ctx, v.nextTask, v.nextBatch); err != nil {
		return fmt.Errorf("reset sequences: %w", err)
	}
	return nil
}

func (s *Service) clearStaging(ctx context.Context) error {
	if err := s.staging.Tasks.Clear(ctx); err != nil {
		return fmt.Errorf("clear staged tasks: %w", err)
	}
	if err := s.staging.Keys.Clear(ctx); err != nil {
		return fmt.Errorf("clear staged keys: %w", err)
	}
	return nil
}

func (s *Service) discardStaging(ctx context.Context) {
	if err := s.clearStaging(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("Staged dump data left behind", zap.Error(err))
	}
}

// stagingVisitor writes archive content into the staging area and the index stager.
type stagingVisitor struct {
	ctx       context.Context //nolint:containedctx // Visitor methods take no context
	stager    dump.IndexStager
	stores    Stores
	features  settings.Features
	nextTask  uint32
	nextBatch uint32
}

var errStagingCanceled = errors.New("import canceled")

func (v *stagingVisitor) alive() error {
	if v.ctx.Err() != nil {
		return fmt.Errorf("%w: %w", errStagingCanceled, v.ctx.Err())
	}
	return nil
}

func (v *stagingVisitor) Index(meta dump.IndexMetadata, raw settings.Settings[settings.Unchecked]) error {
	if err := v.alive(); err != nil {
		return err
	}
	checked, errs := settings.Validate(raw, v.features)
	if len(errs) > 0 {
		return fmt.Errorf("settings of index %s: %w", meta.UID, errs.Err())
	}
	return v.stager.Index(meta, checked)
}

func (v *stagingVisitor) Document(indexUID string, doc json.RawMessage) error {
	return v.stager.Document(indexUID, doc)
}

func (v *stagingVisitor) DocIDs(indexUID string, ids *roaring.Bitmap) error {
	return v.stager.DocIDs(indexUID, ids)
}

func (v *stagingVisitor) Task(t domtask.Task) error {
	if err := v.alive(); err != nil {
		return err
	}
	if t.UID() >= v.nextTask {
		v.nextTask = t.UID() + 1
	}
	return v.stores.Tasks.Put(v.ctx, t)
}

func (v *stagingVisitor) Batch(b domtask.Batch) error {
	if err := v.alive(); err != nil {
		return err
	}
	if b.UID() >= v.nextBatch {
		v.nextBatch = b.UID() + 1
	}
	return v.stores.Tasks.PutBatch(v.ctx, b)
}

func (v *stagingVisitor) Key(k domkey.Key) error {
	if err := v.alive(); err != nil {
		return err
	}
	return v.stores.Keys.Put(v.ctx, k)
}
