package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"

	"github.com/kailas-cloud/searchcore/internal/db"
	"github.com/kailas-cloud/searchcore/internal/domain"
	domtask "github.com/kailas-cloud/searchcore/internal/domain/task"
)

// PutBatch stores b, replacing any previous record with the same uid.
func (r *Repo) PutBatch(ctx context.Context, b domtask.Batch) error {
	data, err := json.Marshal(b.Record())
	if err != nil {
		return fmt.Errorf("marshal batch %d: %w", b.UID(), err)
	}
	if err := r.store.Set(ctx, r.batchKey(b.UID()), data); err != nil {
		return fmt.Errorf("store batch %d: %w", b.UID(), err)
	}
	if err := r.store.ZAdd(ctx, r.batchesIndex(), int64(b.UID()), strconv.FormatUint(uint64(b.UID()), 10)); err != nil {
		return fmt.Errorf("index batch %d: %w", b.UID(), err)
	}
	return nil
}

// GetBatch returns the batch with the given uid.
func (r *Repo) GetBatch(ctx context.Context, uid uint32) (domtask.Batch, error) {
	data, err := r.store.Get(ctx, r.batchKey(uid))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domtask.Batch{}, domain.ErrBatchNotFound
		}
		return domtask.Batch{}, fmt.Errorf("get batch %d: %w", uid, err)
	}
	var rec domtask.BatchRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domtask.Batch{}, fmt.Errorf("decode batch %d: %w", uid, err)
	}
	return domtask.BatchFromRecord(rec), nil
}

// DeleteBatch removes a batch record.
func (r *Repo) DeleteBatch(ctx context.Context, uid uint32) error {
	if err := r.store.ZRem(ctx, r.batchesIndex(), strconv.FormatUint(uint64(uid), 10)); err != nil {
		return fmt.Errorf("unindex batch %d: %w", uid, err)
	}
	if err := r.store.Del(ctx, r.batchKey(uid)); err != nil {
		return fmt.Errorf("delete batch %d: %w", uid, err)
	}
	return nil
}

// BatchPage returns up to limit batches strictly after cursor in ascending uid order.
func (r *Repo) BatchPage(ctx context.Context, cursor *uint32, limit int) ([]domtask.Batch, *uint32, error) {
	uids, err := r.pageUIDs(ctx, r.batchesIndex(), cursor, limit, false)
	if err != nil || len(uids) == 0 {
		return nil, nil, err
	}
	keys := make([]string, len(uids))
	for i, uid := range uids {
		keys[i] = r.batchKey(uid)
	}
	raw, err := r.store.GetMulti(ctx, keys)
	if err != nil {
		return nil, nil, fmt.Errorf("get batches: %w", err)
	}
	out := make([]domtask.Batch, 0, len(raw))
	for i, data := range raw {
		if data == nil {
			continue
		}
		var rec domtask.BatchRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out = append(out, domtask.BatchFromRecord(rec))
	}
	return out, &uids[len(uids)-1], nil
}

// AllBatches iterates every batch in ascending uid order.
func (r *Repo) AllBatches(ctx context.Context) iter.Seq2[domtask.Batch, error] {
	return paginate(func(cursor *uint32) ([]domtask.Batch, *uint32, error) {
		return r.BatchPage(ctx, cursor, r.pageSize)
	})
}
