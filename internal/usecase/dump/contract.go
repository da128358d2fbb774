package dump

import (
	"context"
	"iter"

	"github.com/kailas-cloud/searchcore/internal/domain/dump"
	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
	domkey "github.com/kailas-cloud/searchcore/internal/domain/key"
	domtask "github.com/kailas-cloud/searchcore/internal/domain/task"
)

// TaskStore holds a task and batch history.
type TaskStore interface {
	Put(ctx context.Context, t domtask.Task) error
	PutBatch(ctx context.Context, b domtask.Batch) error
	All(ctx context.Context) iter.Seq2[domtask.Task, error]
	AllBatches(ctx context.Context) iter.Seq2[domtask.Batch, error]
	ResetSequences(ctx context.Context, nextTask, nextBatch uint32) error
	Clear(ctx context.Context) error
}

// KeyStore holds API keys.
type KeyStore interface {
	Put(ctx context.Context, k domkey.Key) error
	All(ctx context.Context) iter.Seq2[domkey.Key, error]
	Clear(ctx context.Context) error
}

// Stores groups the history stores of one namespace.
type Stores struct {
	Tasks TaskStore
	Keys  KeyStore
}

// Engine is the index engine: a snapshot source for export and a staging target for
// import.
type Engine interface {
	Snapshot(ctx context.Context) ([]dump.IndexSnapshot, error)
	BeginRestore(ctx context.Context) (dump.IndexStager, error)
}

// Tasks registers and drives dump creation tasks.
type Tasks interface {
	Enqueue(ctx context.Context, indexUID string, details domtask.Details) (domtask.Task, error)
	Transition(ctx context.Context, uid uint32, to domtask.Status, failure *errcode.Error) (domtask.Task, error)
	Succeed(ctx context.Context, uid uint32, details domtask.Details) (domtask.Task, error)
	Freeze(ctx context.Context, fn func(ctx context.Context) error) error
}
