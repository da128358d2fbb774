package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"math"
	"strconv"

	"github.com/kailas-cloud/searchcore/internal/db"
	"github.com/kailas-cloud/searchcore/internal/domain"
	domtask "github.com/kailas-cloud/searchcore/internal/domain/task"
)

// store is the consumer interface for task history (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, keys ...string) error
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	ZAdd(ctx context.Context, key string, score int64, member string) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRangeByScore(ctx context.Context, key string, r db.ScoreRange) ([]string, error)
}

// DefaultPageSize is the number of records fetched per round-trip when iterating.
const DefaultPageSize = 100

// Repo persists tasks and batches as whole JSON records, indexed by uid in sorted sets.
// Records are written before they are indexed, so an indexed uid always resolves.
type Repo struct {
	store    store
	prefix   string
	pageSize int
}

// New creates a task repository. All keys are namespaced by prefix.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix, pageSize: DefaultPageSize}
}

// WithPageSize configures the iteration page size.
func (r *Repo) WithPageSize(n int) *Repo {
	if n > 0 {
		r.pageSize = n
	}
	return r
}

func (r *Repo) taskKey(uid uint32) string {
	return r.prefix + "task:" + strconv.FormatUint(uint64(uid), 10)
}

func (r *Repo) batchKey(uid uint32) string {
	return r.prefix + "batch:" + strconv.FormatUint(uint64(uid), 10)
}

func (r *Repo) tasksIndex() string   { return r.prefix + "tasks" }
func (r *Repo) batchesIndex() string { return r.prefix + "batches" }
func (r *Repo) taskSeq() string      { return r.prefix + "seq:task" }
func (r *Repo) batchSeq() string     { return r.prefix + "seq:batch" }

// NextTaskUID reserves the next task uid. Uids start at 0.
func (r *Repo) NextTaskUID(ctx context.Context) (uint32, error) {
	return r.next(ctx, r.taskSeq())
}

// NextBatchUID reserves the next batch uid. Uids start at 0.
func (r *Repo) NextBatchUID(ctx context.Context) (uint32, error) {
	return r.next(ctx, r.batchSeq())
}

func (r *Repo) next(ctx context.Context, key string) (uint32, error) {
	n, err := r.store.IncrBy(ctx, key, 1)
	if err != nil {
		return 0, fmt.Errorf("INCRBY %s: %w", key, err)
	}
	if n < 1 || n > math.MaxUint32+1 {
		return 0, fmt.Errorf("sequence %s out of range: %d", key, n)
	}
	return uint32(n - 1), nil
}

// ResetSequences makes the next reserved uids equal to nextTask and nextBatch.
func (r *Repo) ResetSequences(ctx context.Context, nextTask, nextBatch uint32) error {
	if err := r.store.Set(ctx, r.taskSeq(), []byte(strconv.FormatUint(uint64(nextTask), 10))); err != nil {
		return fmt.Errorf("reset task sequence: %w", err)
	}
	if err := r.store.Set(ctx, r.batchSeq(), []byte(strconv.FormatUint(uint64(nextBatch), 10))); err != nil {
		return fmt.Errorf("reset batch sequence: %w", err)
	}
	return nil
}

// Put stores t, replacing any previous record with the same uid.
func (r *Repo) Put(ctx context.Context, t domtask.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task %d: %w", t.UID(), err)
	}
	if err := r.store.Set(ctx, r.taskKey(t.UID()), data); err != nil {
		return fmt.Errorf("store task %d: %w", t.UID(), err)
	}
	if err := r.store.ZAdd(ctx, r.tasksIndex(), int64(t.UID()), strconv.FormatUint(uint64(t.UID()), 10)); err != nil {
		return fmt.Errorf("index task %d: %w", t.UID(), err)
	}
	return nil
}

// Get returns the task with the given uid.
func (r *Repo) Get(ctx context.Context, uid uint32) (domtask.Task, error) {
	data, err := r.store.Get(ctx, r.taskKey(uid))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domtask.Task{}, domain.ErrTaskNotFound
		}
		return domtask.Task{}, fmt.Errorf("get task %d: %w", uid, err)
	}
	var t domtask.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return domtask.Task{}, fmt.Errorf("decode task %d: %w", uid, err)
	}
	return t, nil
}

// GetMany returns the tasks that exist among uids, in the order given.
func (r *Repo) GetMany(ctx context.Context, uids []uint32) ([]domtask.Task, error) {
	keys := make([]string, len(uids))
	for i, uid := range uids {
		keys[i] = r.taskKey(uid)
	}
	return r.decodeTasks(ctx, keys)
}

func (r *Repo) decodeTasks(ctx context.Context, keys []string) ([]domtask.Task, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	raw, err := r.store.GetMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}
	out := make([]domtask.Task, 0, len(raw))
	for i, data := range raw {
		if data == nil {
			continue // deleted after being listed
		}
		var t domtask.Task
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Delete removes tasks from the index, then their records.
func (r *Repo) Delete(ctx context.Context, uids ...uint32) error {
	if len(uids) == 0 {
		return nil
	}
	members := make([]string, len(uids))
	keys := make([]string, len(uids))
	for i, uid := range uids {
		members[i] = strconv.FormatUint(uint64(uid), 10)
		keys[i] = r.taskKey(uid)
	}
	if err := r.store.ZRem(ctx, r.tasksIndex(), members...); err != nil {
		return fmt.Errorf("unindex tasks: %w", err)
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("delete tasks: %w", err)
	}
	return nil
}

// Page returns up to limit tasks strictly after cursor in uid order (descending when
// reverse is set), and the cursor of the next page. A nil cursor starts from the first or
// last uid; a nil next cursor means the index is exhausted.
func (r *Repo) Page(ctx context.Context, cursor *uint32, limit int, reverse bool) ([]domtask.Task, *uint32, error) {
	uids, err := r.pageUIDs(ctx, r.tasksIndex(), cursor, limit, reverse)
	if err != nil || len(uids) == 0 {
		return nil, nil, err
	}
	tasks, err := r.GetMany(ctx, uids)
	if err != nil {
		return nil, nil, err
	}
	return tasks, &uids[len(uids)-1], nil
}

// All iterates every task in ascending uid order, one page at a time.
func (r *Repo) All(ctx context.Context) iter.Seq2[domtask.Task, error] {
	return paginate(func(cursor *uint32) ([]domtask.Task, *uint32, error) {
		return r.Page(ctx, cursor, r.pageSize, false)
	})
}

func (r *Repo) pageUIDs(ctx context.Context, index string, cursor *uint32, limit int, reverse bool) ([]uint32, error) {
	rng := db.ScoreRange{Min: 0, Max: math.MaxUint32, Count: int64(limit), Reverse: reverse}
	if cursor != nil {
		if reverse {
			rng.Max = int64(*cursor) - 1
		} else {
			rng.Min = int64(*cursor) + 1
		}
	}
	if rng.Min > rng.Max {
		return nil, nil
	}
	members, err := r.store.ZRangeByScore(ctx, index, rng)
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", index, err)
	}
	uids := make([]uint32, 0, len(members))
	for _, m := range members {
		uid, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("range %s: bad member %q", index, m)
		}
		uids = append(uids, uint32(uid))
	}
	return uids, nil
}

// paginate turns a page function into a lazy sequence. Iteration stops on the first error.
func paginate[T any](page func(cursor *uint32) ([]T, *uint32, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var cursor *uint32
		for {
			items, next, err := page(cursor)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, it := range items {
				if !yield(it, nil) {
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

// Clear deletes every task, batch and sequence under the prefix.
func (r *Repo) Clear(ctx context.Context) error {
	for t, err := range r.All(ctx) {
		if err != nil {
			return err
		}
		if err := r.Delete(ctx, t.UID()); err != nil {
			return err
		}
	}
	for b, err := range r.AllBatches(ctx) {
		if err != nil {
			return err
		}
		if err := r.DeleteBatch(ctx, b.UID()); err != nil {
			return err
		}
	}
	if err := r.store.Del(ctx, r.taskSeq(), r.batchSeq(), r.tasksIndex(), r.batchesIndex()); err != nil {
		return fmt.Errorf("clear sequences: %w", err)
	}
	return nil
}
