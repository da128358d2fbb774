package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/kailas-cloud/searchcore/internal/db"
)

func TestKV(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	value := []byte("v1")
	if err := s.Set(ctx, "a", value); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value[0] = 'X'
	got, err := s.Get(ctx, "a")
	if err != nil || string(got) != "v1" {
		t.Fatalf("Get = %q, %v; stored value must not alias the caller's slice", got, err)
	}

	multi, err := s.GetMulti(ctx, []string{"a", "missing"})
	if err != nil {
		t.Fatalf("GetMulti: %v", err)
	}
	if string(multi[0]) != "v1" || multi[1] != nil {
		t.Errorf("GetMulti = %q", multi)
	}

	if err := s.Del(ctx, "a"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("key survived Del: %v", err)
	}
}

func TestIncrBy_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrBy(ctx, "seq", 1); err != nil {
				t.Errorf("IncrBy: %v", err)
			}
		}()
	}
	wg.Wait()

	n, err := s.IncrBy(ctx, "seq", 0)
	if err != nil || n != 50 {
		t.Fatalf("seq = %d, %v; want 50", n, err)
	}

	_ = s.Set(ctx, "text", []byte("abc"))
	if _, err := s.IncrBy(ctx, "text", 1); err == nil {
		t.Error("expected error for non-integer value")
	}
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for _, k := range []string{"key:b", "key:a", "other"} {
		_ = s.Set(ctx, k, nil)
	}

	keys, err := s.Scan(ctx, "key:*")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !slices.Equal(keys, []string{"key:a", "key:b"}) {
		t.Errorf("Scan = %v", keys)
	}
	if _, err := s.Scan(ctx, "["); err == nil {
		t.Error("expected error for malformed pattern")
	}
}

func TestZRangeByScore(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for _, sc := range []int64{5, 1, 3, 4, 2} {
		_ = s.ZAdd(ctx, "z", sc, string(rune('a'+sc)))
	}
	_ = s.ZRem(ctx, "z", "e") // score 4

	tests := []struct {
		name string
		r    db.ScoreRange
		want []string
	}{
		{"all ascending", db.ScoreRange{Min: 0, Max: 10}, []string{"b", "c", "d", "f"}},
		{"bounded", db.ScoreRange{Min: 2, Max: 3}, []string{"c", "d"}},
		{"reverse limited", db.ScoreRange{Min: 0, Max: 10, Count: 2, Reverse: true}, []string{"f", "d"}},
		{"offset", db.ScoreRange{Min: 0, Max: 10, Offset: 3}, []string{"f"}},
		{"offset past end", db.ScoreRange{Min: 0, Max: 10, Offset: 9}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ZRangeByScore(ctx, "z", tt.r)
			if err != nil {
				t.Fatalf("ZRangeByScore: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
