package task

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/searchcore/internal/domain"
	domtask "github.com/kailas-cloud/searchcore/internal/domain/task"
)

// CreateBatch groups unfinished tasks into a new batch.
func (s *Service) CreateBatch(ctx context.Context, taskUIDs []uint32) (domtask.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, err := s.repo.GetMany(ctx, taskUIDs)
	if err != nil {
		return domtask.Batch{}, fmt.Errorf("get batch members: %w", err)
	}
	if len(members) != len(taskUIDs) {
		return domtask.Batch{}, fmt.Errorf("batch members: %w", domain.ErrTaskNotFound)
	}
	uid, err := s.repo.NextBatchUID(ctx)
	if err != nil {
		return domtask.Batch{}, fmt.Errorf("reserve batch uid: %w", err)
	}
	b, err := domtask.NewBatch(uid, taskUIDs, s.now())
	if err != nil {
		return domtask.Batch{}, err
	}

	assigned := make([]domtask.Task, len(members))
	for i, t := range members {
		if assigned[i], err = t.WithBatch(uid); err != nil {
			return domtask.Batch{}, err
		}
	}
	b = b.Refresh(assigned)
	if err := s.repo.PutBatch(ctx, b); err != nil {
		return domtask.Batch{}, fmt.Errorf("store batch %d: %w", uid, err)
	}
	for _, t := range assigned {
		if err := s.repo.Put(ctx, t); err != nil {
			return domtask.Batch{}, fmt.Errorf("assign task %d: %w", t.UID(), err)
		}
	}
	return b, nil
}

// BatchStatus returns a batch with stats recomputed from its members, and the status
// derived from them.
func (s *Service) BatchStatus(ctx context.Context, uid uint32) (domtask.Batch, domtask.Status, error) {
	b, err := s.repo.GetBatch(ctx, uid)
	if err != nil {
		return domtask.Batch{}, "", fmt.Errorf("get batch %d: %w", uid, err)
	}
	members, err := s.repo.GetMany(ctx, b.TaskUIDs())
	if err != nil {
		return domtask.Batch{}, "", fmt.Errorf("get batch %d members: %w", uid, err)
	}
	return b.Refresh(members), b.Status(members), nil
}

// refreshBatch recomputes the cached stats of the batch t belongs to. Callers hold s.mu.
func (s *Service) refreshBatch(ctx context.Context, t domtask.Task) error {
	uid, ok := t.BatchUID()
	if !ok {
		return nil
	}
	b, err := s.repo.GetBatch(ctx, uid)
	if err != nil {
		return fmt.Errorf("get batch %d: %w", uid, err)
	}
	members, err := s.repo.GetMany(ctx, b.TaskUIDs())
	if err != nil {
		return fmt.Errorf("get batch %d members: %w", uid, err)
	}
	if err := s.repo.PutBatch(ctx, b.Refresh(members)); err != nil {
		return fmt.Errorf("store batch %d: %w", uid, err)
	}
	return nil
}
