package task

import (
	"context"

	domtask "github.com/kailas-cloud/searchcore/internal/domain/task"
)

// Repository defines the storage contract for the task history.
type Repository interface {
	NextTaskUID(ctx context.Context) (uint32, error)
	NextBatchUID(ctx context.Context) (uint32, error)
	Put(ctx context.Context, t domtask.Task) error
	Get(ctx context.Context, uid uint32) (domtask.Task, error)
	GetMany(ctx context.Context, uids []uint32) ([]domtask.Task, error)
	Delete(ctx context.Context, uids ...uint32) error
	Page(ctx context.Context, cursor *uint32, limit int, reverse bool) ([]domtask.Task, *uint32, error)
	PutBatch(ctx context.Context, b domtask.Batch) error
	GetBatch(ctx context.Context, uid uint32) (domtask.Batch, error)
}

// IndexLookup reports which indexes exist.
type IndexLookup interface {
	Exists(uid string) bool
}
