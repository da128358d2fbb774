package task

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/searchcore/internal/db"
	domtask "github.com/kailas-cloud/searchcore/internal/domain/task"
)

var t0 = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	getFn      func(ctx context.Context, key string) ([]byte, error)
	getMultiFn func(ctx context.Context, keys []string) ([][]byte, error)
	setFn      func(ctx context.Context, key string, value []byte) error
	delFn      func(ctx context.Context, keys ...string) error
	incrByFn   func(ctx context.Context, key string, val int64) (int64, error)
	zaddFn     func(ctx context.Context, key string, score int64, member string) error
	zremFn     func(ctx context.Context, key string, members ...string) error
	zrangeFn   func(ctx context.Context, key string, r db.ScoreRange) ([]string, error)
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) GetMulti(ctx context.Context, keys []string) ([][]byte, error) {
	if m.getMultiFn != nil {
		return m.getMultiFn(ctx, keys)
	}
	return make([][]byte, len(keys)), nil
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	if m.delFn != nil {
		return m.delFn(ctx, keys...)
	}
	return nil
}

func (m *mockStore) IncrBy(ctx context.Context, key string, val int64) (int64, error) {
	if m.incrByFn != nil {
		return m.incrByFn(ctx, key, val)
	}
	return val, nil
}

func (m *mockStore) ZAdd(ctx context.Context, key string, score int64, member string) error {
	if m.zaddFn != nil {
		return m.zaddFn(ctx, key, score, member)
	}
	return nil
}

func (m *mockStore) ZRem(ctx context.Context, key string, members ...string) error {
	if m.zremFn != nil {
		return m.zremFn(ctx, key, members...)
	}
	return nil
}

func (m *mockStore) ZRangeByScore(ctx context.Context, key string, r db.ScoreRange) ([]string, error) {
	if m.zrangeFn != nil {
		return m.zrangeFn(ctx, key, r)
	}
	return nil, nil
}

func makeTask(t *testing.T, uid uint32) domtask.Task {
	t.Helper()
	tk, err := domtask.New(uid, "movies", domtask.IndexCreation{PrimaryKey: "id"}, t0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tk
}
