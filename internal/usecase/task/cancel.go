package task

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
	domtask "github.com/kailas-cloud/searchcore/internal/domain/task"
)

func originalFilter(q domtask.Query) string {
	return "?" + q.Values().Encode()
}

// Cancel registers a task cancelation for every task matching q and runs it. Finished
// targets are reported as task_not_cancelable and left untouched. It returns the finished
// cancelation task and one outcome per matched target.
func (s *Service) Cancel(ctx context.Context, q domtask.Query) (domtask.Task, []domtask.Outcome, error) {
	if !q.HasFilters() {
		return domtask.Task{}, nil, errcode.New(errcode.MissingTaskFilters,
			"Query parameters to filter the tasks to cancel are missing.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	targets, err := s.matching(ctx, q)
	if err != nil {
		return domtask.Task{}, nil, err
	}
	outcomes := domtask.SummarizeForCancel(targets)
	accepted := domtask.AcceptedUIDs(outcomes)

	ct, err := s.register(ctx, "", domtask.TaskCancelation{
		OriginalFilter: originalFilter(q),
		TaskUIDs:       accepted,
		MatchedTasks:   uint64(len(targets)),
	})
	if err != nil {
		return domtask.Task{}, nil, err
	}
	ct, err = s.run(ctx, ct, func() (domtask.Details, error) {
		var canceled uint64
		for _, t := range targets {
			next, err := t.Cancel(ct.UID(), s.now())
			if err != nil {
				continue // finished targets were rejected above
			}
			if err := s.store(ctx, next); err != nil {
				return nil, err
			}
			canceled++
		}
		d := ct.Details().(domtask.TaskCancelation)
		d.CanceledTasks = &canceled
		return d, nil
	})
	if err != nil {
		return domtask.Task{}, nil, err
	}
	s.logger.Info("Tasks canceled",
		zap.Uint32("task_uid", ct.UID()),
		zap.Int("matched", len(targets)),
		zap.Int("canceled", len(accepted)),
	)
	return ct, outcomes, nil
}

// DeleteTasks registers a task deletion for every finished task matching q and runs it.
// Unfinished targets are reported and kept.
func (s *Service) DeleteTasks(ctx context.Context, q domtask.Query) (domtask.Task, []domtask.Outcome, error) {
	if !q.HasFilters() {
		return domtask.Task{}, nil, errcode.New(errcode.MissingTaskFilters,
			"Query parameters to filter the tasks to delete are missing.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	targets, err := s.matching(ctx, q)
	if err != nil {
		return domtask.Task{}, nil, err
	}
	outcomes := domtask.SummarizeForDelete(targets)
	accepted := domtask.AcceptedUIDs(outcomes)

	dt, err := s.register(ctx, "", domtask.TaskDeletion{
		OriginalFilter: originalFilter(q),
		TaskUIDs:       accepted,
		MatchedTasks:   uint64(len(targets)),
	})
	if err != nil {
		return domtask.Task{}, nil, err
	}
	dt, err = s.run(ctx, dt, func() (domtask.Details, error) {
		if err := s.repo.Delete(ctx, accepted...); err != nil {
			return nil, fmt.Errorf("delete tasks: %w", err)
		}
		deleted := uint64(len(accepted))
		d := dt.Details().(domtask.TaskDeletion)
		d.DeletedTasks = &deleted
		return d, nil
	})
	if err != nil {
		return domtask.Task{}, nil, err
	}
	s.logger.Info("Tasks deleted",
		zap.Uint32("task_uid", dt.UID()),
		zap.Int("matched", len(targets)),
		zap.Int("deleted", len(accepted)),
	)
	return dt, outcomes, nil
}

// run drives a registered task through processing. A failing body fails the task with the
// classified error, which is also returned. Callers hold s.mu.
func (s *Service) run(ctx context.Context, t domtask.Task, body func() (domtask.Details, error)) (domtask.Task, error) {
	started, err := t.Start(s.now())
	if err != nil {
		return t, err
	}
	if err := s.store(ctx, started); err != nil {
		return t, err
	}

	details, bodyErr := body()
	var done domtask.Task
	if bodyErr != nil {
		done, err = started.Fail(s.now(), errcode.FromError(bodyErr))
	} else {
		done, err = started.Succeed(s.now(), details)
	}
	if err != nil {
		return started, err
	}
	if err := s.store(ctx, done); err != nil {
		return started, err
	}
	if bodyErr != nil {
		return done, bodyErr
	}
	return done, nil
}
