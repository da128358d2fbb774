package task

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/searchcore/internal/db"
	"github.com/kailas-cloud/searchcore/internal/db/memory"
	"github.com/kailas-cloud/searchcore/internal/domain"
	domtask "github.com/kailas-cloud/searchcore/internal/domain/task"
)

func uidsOf(ts []domtask.Task) []uint32 {
	out := make([]uint32, len(ts))
	for i, tk := range ts {
		out[i] = tk.UID()
	}
	return out
}

func seed(t *testing.T, r *Repo, n int) {
	t.Helper()
	for i := range n {
		if err := r.Put(context.Background(), makeTask(t, uint32(i))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
}

func TestNextTaskUID_StartsAtZero(t *testing.T) {
	r := New(memory.NewStore(), "test:")
	ctx := context.Background()
	for want := range uint32(3) {
		got, err := r.NextTaskUID(ctx)
		if err != nil {
			t.Fatalf("NextTaskUID: %v", err)
		}
		if got != want {
			t.Errorf("uid = %d, want %d", got, want)
		}
	}
	if err := r.ResetSequences(ctx, 10, 4); err != nil {
		t.Fatalf("ResetSequences: %v", err)
	}
	if got, _ := r.NextTaskUID(ctx); got != 10 {
		t.Errorf("after reset task uid = %d, want 10", got)
	}
	if got, _ := r.NextBatchUID(ctx); got != 4 {
		t.Errorf("after reset batch uid = %d, want 4", got)
	}
}

func TestNextTaskUID_Error(t *testing.T) {
	r := New(&mockStore{incrByFn: func(context.Context, string, int64) (int64, error) {
		return 0, errors.New("conn refused")
	}}, "test:")
	if _, err := r.NextTaskUID(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestPutGet(t *testing.T) {
	r := New(memory.NewStore(), "test:")
	ctx := context.Background()
	tk := makeTask(t, 7)
	if err := r.Put(ctx, tk); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := r.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UID() != 7 || got.Kind() != domtask.KindIndexCreation || !got.EnqueuedAt().Equal(t0) {
		t.Errorf("got %d %s %v", got.UID(), got.Kind(), got.EnqueuedAt())
	}

	started, err := tk.Start(t0.Add(time.Second))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Put(ctx, started); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got, _ := r.Get(ctx, 7); got.Status() != domtask.StatusProcessing {
		t.Errorf("status after replace = %s", got.Status())
	}

	if _, err := r.Get(ctx, 8); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestPut_WritesRecordBeforeIndex(t *testing.T) {
	var order []string
	r := New(&mockStore{
		setFn: func(_ context.Context, key string, _ []byte) error {
			order = append(order, "SET "+key)
			return nil
		},
		zaddFn: func(_ context.Context, key string, _ int64, _ string) error {
			order = append(order, "ZADD "+key)
			return nil
		},
	}, "p:")
	if err := r.Put(context.Background(), makeTask(t, 1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !slices.Equal(order, []string{"SET p:task:1", "ZADD p:tasks"}) {
		t.Errorf("order = %v", order)
	}
}

func TestGet_CorruptRecord(t *testing.T) {
	r := New(&mockStore{getFn: func(context.Context, string) ([]byte, error) {
		return []byte(`{"uid":1,"status":"nope"}`), nil
	}}, "p:")
	if _, err := r.Get(context.Background(), 1); err == nil || !strings.Contains(err.Error(), "decode task 1") {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestPage(t *testing.T) {
	r := New(memory.NewStore(), "test:")
	ctx := context.Background()
	seed(t, r, 5)

	tests := []struct {
		name    string
		cursor  *uint32
		reverse bool
		want    []uint32
	}{
		{"first page", nil, false, []uint32{0, 1}},
		{"after cursor", ptr(1), false, []uint32{2, 3}},
		{"reverse", nil, true, []uint32{4, 3}},
		{"reverse after cursor", ptr(1), true, []uint32{0}},
		{"exhausted", ptr(4), false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, next, err := r.Page(ctx, tt.cursor, 2, tt.reverse)
			if err != nil {
				t.Fatalf("Page: %v", err)
			}
			if !slices.Equal(uidsOf(got), tt.want) {
				t.Errorf("uids = %v, want %v", uidsOf(got), tt.want)
			}
			if (next == nil) != (len(tt.want) == 0) {
				t.Errorf("next = %v", next)
			}
		})
	}
}

func ptr(v uint32) *uint32 { return &v }

func TestAll_SkipsDeletedAndPages(t *testing.T) {
	r := New(memory.NewStore(), "test:").WithPageSize(2)
	ctx := context.Background()
	seed(t, r, 5)
	if err := r.Delete(ctx, 1, 2); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var got []uint32
	for tk, err := range r.All(ctx) {
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		got = append(got, tk.UID())
	}
	if !slices.Equal(got, []uint32{0, 3, 4}) {
		t.Errorf("uids = %v", got)
	}
}

func TestAll_MissingRecordDoesNotStopIteration(t *testing.T) {
	calls := 0
	r := New(&mockStore{
		zrangeFn: func(_ context.Context, _ string, rng db.ScoreRange) ([]string, error) {
			calls++
			if rng.Min == 0 {
				return []string{"0", "1"}, nil
			}
			return nil, nil
		},
	}, "p:")
	n := 0
	for _, err := range r.All(context.Background()) {
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		n++
	}
	if n != 0 || calls != 2 {
		t.Errorf("yielded %d, ranged %d times; want 0 and 2", n, calls)
	}
}

func TestAll_Error(t *testing.T) {
	r := New(&mockStore{zrangeFn: func(context.Context, string, db.ScoreRange) ([]string, error) {
		return nil, errors.New("timeout")
	}}, "p:")
	for _, err := range r.All(context.Background()) {
		if err == nil {
			t.Fatal("expected error")
		}
	}
}

func TestBatches(t *testing.T) {
	r := New(memory.NewStore(), "test:")
	ctx := context.Background()

	b, err := domtask.NewBatch(3, []uint32{2, 1}, t0)
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if err := r.PutBatch(ctx, b); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}
	got, err := r.GetBatch(ctx, 3)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if !slices.Equal(got.TaskUIDs(), []uint32{1, 2}) {
		t.Errorf("TaskUIDs = %v", got.TaskUIDs())
	}
	if _, err := r.GetBatch(ctx, 4); !errors.Is(err, domain.ErrBatchNotFound) {
		t.Errorf("expected ErrBatchNotFound, got %v", err)
	}

	var all []uint32
	for b, err := range r.AllBatches(ctx) {
		if err != nil {
			t.Fatalf("AllBatches: %v", err)
		}
		all = append(all, b.UID())
	}
	if !slices.Equal(all, []uint32{3}) {
		t.Errorf("AllBatches = %v", all)
	}
}

func TestClear(t *testing.T) {
	s := memory.NewStore()
	r := New(s, "test:")
	other := New(s, "other:")
	ctx := context.Background()
	seed(t, r, 3)
	seed(t, other, 1)
	_, _ = r.NextTaskUID(ctx)
	b, _ := domtask.NewBatch(0, []uint32{0}, t0)
	_ = r.PutBatch(ctx, b)

	if err := r.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _, _ := r.Page(ctx, nil, 10, false); len(got) != 0 {
		t.Errorf("tasks left: %v", uidsOf(got))
	}
	if _, err := r.GetBatch(ctx, 0); !errors.Is(err, domain.ErrBatchNotFound) {
		t.Errorf("batch left: %v", err)
	}
	if uid, _ := r.NextTaskUID(ctx); uid != 0 {
		t.Errorf("sequence not reset: %d", uid)
	}
	if _, err := other.Get(ctx, 0); err != nil {
		t.Errorf("Clear leaked into another prefix: %v", err)
	}
}
