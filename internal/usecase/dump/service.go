package dump

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchcore/internal/domain"
	"github.com/kailas-cloud/searchcore/internal/domain/dump"
	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
	"github.com/kailas-cloud/searchcore/internal/domain/settings"
	domtask "github.com/kailas-cloud/searchcore/internal/domain/task"
	"github.com/kailas-cloud/searchcore/internal/metrics"
	"github.com/kailas-cloud/searchcore/internal/storage"
	"github.com/kailas-cloud/searchcore/internal/version"
)

// Service creates and imports dumps.
type Service struct {
	live        Stores
	staging     Stores
	engine      Engine
	store       storage.Storage
	tasks       Tasks
	features    settings.Features
	instanceUID uuid.UUID
	chunkSize   int
	now         func() time.Time
	logger      *zap.Logger
	busy        atomic.Bool
}

// New creates a dump service. staging must be disjoint from live; import stages the
// restored history there before publishing it.
func New(
	live, staging Stores, engine Engine, store storage.Storage, tasks Tasks,
	features settings.Features, instanceUID uuid.UUID, logger *zap.Logger,
) *Service {
	return &Service{
		live:        live,
		staging:     staging,
		engine:      engine,
		store:       store,
		tasks:       tasks,
		features:    features,
		instanceUID: instanceUID,
		chunkSize:   dump.DefaultChunkSize,
		now:         time.Now,
		logger:      logger,
	}
}

// WithChunkSize configures the records per archive chunk.
func (s *Service) WithChunkSize(n int) *Service {
	if n > 0 {
		s.chunkSize = n
	}
	return s
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) acquire() error {
	if !s.busy.CompareAndSwap(false, true) {
		return domain.ErrDumpAlreadyProcessing
	}
	return nil
}

func (s *Service) release() { s.busy.Store(false) }

// DumpUID formats the creation time as yyyymmdd-hhmmssSSS.
func DumpUID(at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s%03d", at.Format("20060102-150405"), at.Nanosecond()/int(time.Millisecond))
}

// Create registers a dump creation task and runs it: the archive is streamed into the
// storage and published only when complete. The returned task is finished.
func (s *Service) Create(ctx context.Context) (domtask.Task, error) {
	if err := s.acquire(); err != nil {
		return domtask.Task{}, err
	}
	defer s.release()

	dumpUID := DumpUID(s.now())
	t, err := s.tasks.Enqueue(ctx, "", domtask.DumpCreation{DumpUID: dumpUID})
	if err != nil {
		return domtask.Task{}, fmt.Errorf("enqueue dump: %w", err)
	}
	t, err = s.tasks.Transition(ctx, t.UID(), domtask.StatusProcessing, nil)
	if err != nil {
		return domtask.Task{}, fmt.Errorf("start dump task: %w", err)
	}

	start := time.Now()
	writeErr := s.createArchive(ctx, t)
	metrics.DumpDuration.WithLabelValues("create").Observe(time.Since(start).Seconds())
	if writeErr != nil {
		metrics.DumpFailuresTotal.WithLabelValues("create").Inc()
		failure := errcode.Wrap(errcode.DumpProcessFailed, writeErr, "dump `%s` failed: %s", dumpUID, writeErr)
		s.logger.Error("Dump creation failed", zap.String("dump_uid", dumpUID), zap.Error(writeErr))
		failed, err := s.tasks.Transition(ctx, t.UID(), domtask.StatusFailed, failure)
		if err != nil {
			return domtask.Task{}, fmt.Errorf("fail dump task: %w", err)
		}
		return failed, writeErr
	}

	done, err := s.tasks.Succeed(ctx, t.UID(), nil)
	if err != nil {
		return domtask.Task{}, fmt.Errorf("finish dump task: %w", err)
	}
	s.logger.Info("Dump created", zap.String("dump_uid", dumpUID), zap.Uint32("task_uid", t.UID()))
	return done, nil
}

func (s *Service) createArchive(ctx context.Context, self domtask.Task) error {
	dumpUID := self.Details().(domtask.DumpCreation).DumpUID
	w, err := s.store.Create(ctx, storage.ArchiveName(dumpUID))
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	if _, err := s.write(ctx, w, &self); err != nil {
		w.Abort()
		return err
	}
	if err := w.Commit(); err != nil {
		return fmt.Errorf("publish archive: %w", err)
	}
	return nil
}

// Write streams the current engine state into w. The task history, batches and keys are
// copied while task writers are frozen, so later changes are left out.
func (s *Service) Write(ctx context.Context, w io.Writer) (dump.Metadata, error) {
	if err := s.acquire(); err != nil {
		return dump.Metadata{}, err
	}
	defer s.release()
	return s.write(ctx, w, nil)
}

// write archives the state. self is the running dump creation task; it is archived as
// succeeded at the snapshot time. Callers hold the busy flag.
func (s *Service) write(ctx context.Context, w io.Writer, self *domtask.Task) (dump.Metadata, error) {
	createdAt := s.now().UTC()
	var snaps []dump.IndexSnapshot
	err := s.tasks.Freeze(ctx, func(ctx context.Context) error {
		if err := s.capture(ctx, self, createdAt); err != nil {
			return err
		}
		var err error
		if snaps, err = s.engine.Snapshot(ctx); err != nil {
			return fmt.Errorf("snapshot indexes: %w", err)
		}
		return nil
	})
	defer s.discardStaging(ctx)
	if err != nil {
		return dump.Metadata{}, err
	}

	meta := dump.Metadata{
		ProducerVersion: version.Version,
		CreatedAt:       createdAt,
		InstanceUID:     s.instanceUID,
	}
	dw, err := dump.NewWriter(w, meta, dump.WithChunkSize(s.chunkSize))
	if err != nil {
		return dump.Metadata{}, fmt.Errorf("start archive: %w", err)
	}
	for _, snap := range snaps {
		if err := dw.WriteIndex(snap.Metadata, snap.Settings, snap.Documents, snap.DocIDs); err != nil {
			return dump.Metadata{}, fmt.Errorf("write index %s: %w", snap.Metadata.UID, err)
		}
	}
	if err := dw.WriteTasks(s.staging.Tasks.All(ctx)); err != nil {
		return dump.Metadata{}, fmt.Errorf("write tasks: %w", err)
	}
	if err := dw.WriteBatches(s.staging.Tasks.AllBatches(ctx)); err != nil {
		return dump.Metadata{}, fmt.Errorf("write batches: %w", err)
	}
	if err := dw.WriteKeys(s.staging.Keys.All(ctx)); err != nil {
		return dump.Metadata{}, fmt.Errorf("write keys: %w", err)
	}
	if err := dw.Close(); err != nil {
		return dump.Metadata{}, fmt.Errorf("finish archive: %w", err)
	}
	meta.DumpVersion = dump.CurrentVersion
	return meta, nil
}

// capture copies the live history and keys into the staging namespace.
func (s *Service) capture(ctx context.Context, self *domtask.Task, at time.Time) error {
	if err := s.clearStaging(ctx); err != nil {
		return err
	}
	for t, err := range s.live.Tasks.All(ctx) {
		if err != nil {
			return fmt.Errorf("read tasks: %w", err)
		}
		if self != nil && t.UID() == self.UID() {
			if t, err = t.Succeed(at, nil); err != nil {
				return fmt.Errorf("finish archived dump task: %w", err)
			}
		}
		if err := s.staging.Tasks.Put(ctx, t); err != nil {
			return fmt.Errorf("capture task %d: %w", t.UID(), err)
		}
	}
	for b, err := range s.live.Tasks.AllBatches(ctx) {
		if err != nil {
			return fmt.Errorf("read batches: %w", err)
		}
		if err := s.staging.Tasks.PutBatch(ctx, b); err != nil {
			return fmt.Errorf("capture batch %d: %w", b.UID(), err)
		}
	}
	for k, err := range s.live.Keys.All(ctx) {
		if err != nil {
			return fmt.Errorf("read keys: %w", err)
		}
		if err := s.staging.Keys.Put(ctx, k); err != nil {
			return fmt.Errorf("capture key %s: %w", k.UID(), err)
		}
	}
	return nil
}
