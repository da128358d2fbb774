package task

import (
	"context"
	"fmt"
	"iter"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
	"github.com/kailas-cloud/searchcore/internal/domain/settings"
	domtask "github.com/kailas-cloud/searchcore/internal/domain/task"
	"github.com/kailas-cloud/searchcore/internal/metrics"
)

const pageSize = 100

// Service is the scheduler-facing task queue: it validates and registers tasks, applies
// status transitions and runs cancelations and deletions. Writers are serialized; every
// change is a whole-record replace.
type Service struct {
	mu       sync.Mutex
	repo     Repository
	indexes  IndexLookup
	features settings.Features
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a task service. indexes may be nil, which skips index existence checks.
func New(repo Repository, indexes IndexLookup, features settings.Features, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		indexes:  indexes,
		features: features,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Enqueue validates a payload and registers it as an enqueued task. Field errors are
// reported before index existence errors; a rejected payload never becomes a task.
func (s *Service) Enqueue(ctx context.Context, indexUID string, details domtask.Details) (domtask.Task, error) {
	if errs := s.validate(indexUID, details); len(errs) > 0 {
		metrics.TasksRejectedTotal.WithLabelValues(errs.First().Code().Name()).Inc()
		return domtask.Task{}, errs
	}
	if err := s.checkIndexes(indexUID, details); err != nil {
		metrics.TasksRejectedTotal.WithLabelValues(err.Code().Name()).Inc()
		return domtask.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.register(ctx, indexUID, details)
}

func (s *Service) validate(indexUID string, details domtask.Details) errcode.Errors {
	errs := domtask.ValidateDetails(details, s.features)
	if details == nil {
		return errs
	}
	var uidErr *errcode.Error
	if details.Kind().IndexScoped() {
		uidErr = domtask.ValidateIndexUID(indexUID)
	} else if indexUID != "" {
		uidErr = errcode.New(errcode.InvalidIndexUID, "`%s` tasks are not bound to an index", details.Kind())
	}
	if uidErr != nil {
		errs = append(errcode.Errors{uidErr.In("indexUid")}, errs...)
	}
	return errs
}

func (s *Service) checkIndexes(indexUID string, details domtask.Details) *errcode.Error {
	if s.indexes == nil {
		return nil
	}
	missing := func(uid string) *errcode.Error {
		if s.indexes.Exists(uid) {
			return nil
		}
		return errcode.New(errcode.IndexNotFound, "Index `%s` not found.", uid)
	}
	switch d := details.(type) {
	case domtask.IndexCreation:
		if s.indexes.Exists(indexUID) {
			return errcode.New(errcode.IndexAlreadyExists, "Index `%s` already exists.", indexUID)
		}
	case domtask.DocumentDeletion, domtask.DocumentEdition, domtask.IndexUpdate, domtask.IndexDeletion:
		return missing(indexUID)
	case domtask.IndexSwap:
		for i, p := range d.Swaps {
			for j, uid := range p.Indexes {
				if err := missing(uid); err != nil {
					return err.At(j).In("indexes").At(i).In("swaps")
				}
			}
		}
	}
	return nil
}

// register reserves a uid and stores the task. Callers hold s.mu.
func (s *Service) register(ctx context.Context, indexUID string, details domtask.Details) (domtask.Task, error) {
	uid, err := s.repo.NextTaskUID(ctx)
	if err != nil {
		return domtask.Task{}, fmt.Errorf("reserve task uid: %w", err)
	}
	t, err := domtask.New(uid, indexUID, details, s.now())
	if err != nil {
		return domtask.Task{}, err
	}
	if err := s.repo.Put(ctx, t); err != nil {
		return domtask.Task{}, fmt.Errorf("enqueue task: %w", err)
	}
	metrics.TasksEnqueuedTotal.WithLabelValues(string(t.Kind())).Inc()
	s.logger.Debug("Task enqueued",
		zap.Uint32("task_uid", uid),
		zap.String("type", string(t.Kind())),
		zap.String("index_uid", indexUID),
	)
	return t, nil
}

// Get returns one task.
func (s *Service) Get(ctx context.Context, uid uint32) (domtask.Task, error) {
	t, err := s.repo.Get(ctx, uid)
	if err != nil {
		return domtask.Task{}, fmt.Errorf("get task %d: %w", uid, err)
	}
	return t, nil
}

// Transition moves a task to another status. Failed requires failure; cancelation goes
// through Cancel.
func (s *Service) Transition(ctx context.Context, uid uint32, to domtask.Status, failure *errcode.Error) (domtask.Task, error) {
	return s.apply(ctx, uid, func(t domtask.Task) (domtask.Task, error) {
		return t.Transition(to, s.now(), failure)
	})
}

// Succeed finishes a processing task, replacing its payload with the processed counts
// when details is not nil.
func (s *Service) Succeed(ctx context.Context, uid uint32, details domtask.Details) (domtask.Task, error) {
	return s.apply(ctx, uid, func(t domtask.Task) (domtask.Task, error) {
		return t.Succeed(s.now(), details)
	})
}

func (s *Service) apply(ctx context.Context, uid uint32, fn func(domtask.Task) (domtask.Task, error)) (domtask.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.repo.Get(ctx, uid)
	if err != nil {
		return domtask.Task{}, fmt.Errorf("get task %d: %w", uid, err)
	}
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	if err := s.store(ctx, next); err != nil {
		return cur, err
	}
	return next, nil
}

// store replaces a task record, refreshes its batch and records the transition.
// Callers hold s.mu.
func (s *Service) store(ctx context.Context, t domtask.Task) error {
	if err := s.repo.Put(ctx, t); err != nil {
		return fmt.Errorf("store task %d: %w", t.UID(), err)
	}
	if err := s.refreshBatch(ctx, t); err != nil {
		return err
	}

	kind, status := string(t.Kind()), string(t.Status())
	metrics.TaskTransitionsTotal.WithLabelValues(kind, status).Inc()
	if d, ok := t.Duration(); ok {
		metrics.TaskDuration.WithLabelValues(kind, status).Observe(d.Seconds())
	}
	fields := []zap.Field{
		zap.Uint32("task_uid", t.UID()),
		zap.String("type", kind),
		zap.String("status", status),
	}
	if f := t.Failure(); f != nil {
		s.logger.Warn("Task failed", append(fields, zap.String("code", f.Code().Name()), zap.Error(f))...)
		return nil
	}
	s.logger.Debug("Task transitioned", fields...)
	return nil
}

// Freeze runs fn while no task can be registered, transitioned, canceled or deleted. fn
// must not call back into the service.
func (s *Service) Freeze(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}

// List iterates the tasks matching q in listing order, honoring From and Limit (a
// non-positive limit means no limit). Every range over the result starts afresh.
func (s *Service) List(ctx context.Context, q domtask.Query) iter.Seq2[domtask.Task, error] {
	return func(yield func(domtask.Task, error) bool) {
		reverse := !q.Reverse
		cursor := startCursor(q.From, reverse)
		yielded := 0
		for {
			page, next, err := s.repo.Page(ctx, cursor, pageSize, reverse)
			if err != nil {
				yield(domtask.Task{}, fmt.Errorf("list tasks: %w", err))
				return
			}
			for _, t := range page {
				if !q.InWindow(t.UID()) || !q.Matches(t) {
					continue
				}
				if !yield(t, nil) {
					return
				}
				yielded++
				if q.Limit > 0 && yielded >= q.Limit {
					return
				}
			}
			if next == nil {
				return
			}
			cursor = next
		}
	}
}

// startCursor positions a page cursor so that from is the first uid listed.
func startCursor(from *uint32, descending bool) *uint32 {
	if from == nil {
		return nil
	}
	switch {
	case descending && *from < math.MaxUint32:
		c := *from + 1
		return &c
	case !descending && *from > 0:
		c := *from - 1
		return &c
	}
	return nil
}

// matching collects every task matching q, ignoring paging. Callers hold s.mu.
func (s *Service) matching(ctx context.Context, q domtask.Query) ([]domtask.Task, error) {
	q.From, q.Limit, q.Reverse = nil, 0, true
	var out []domtask.Task
	for t, err := range s.List(ctx, q) {
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
