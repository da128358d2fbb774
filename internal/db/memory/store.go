// Package memory is an in-process db.Store for single-node deployments and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"path"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/kailas-cloud/searchcore/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Store keeps values and sorted sets in maps guarded by one lock. Values are copied on
// the way in and out.
type Store struct {
	mu   sync.RWMutex
	kv   map[string][]byte
	sets map[string]map[string]int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		kv:   make(map[string][]byte),
		sets: make(map[string]map[string]int64),
	}
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return slices.Clone(v), nil
}

// GetMulti fetches several keys. Missing keys yield nil.
func (s *Store) GetMulti(_ context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([][]byte, len(keys))
	for i, k := range keys {
		if v, ok := s.kv[k]; ok {
			out[i] = slices.Clone(v)
		}
	}
	return out, nil
}

// Set stores a value at the given key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kv[key] = slices.Clone(value)
	return nil
}

// Del deletes keys, including sorted sets.
func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.kv, k)
		delete(s.sets, k)
	}
	return nil
}

// IncrBy increments an integer value, creating it at zero.
func (s *Store) IncrBy(_ context.Context, key string, val int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if v, ok := s.kv[key]; ok {
		parsed, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0, &db.Error{Op: db.OpIncrBy, Err: fmt.Errorf("value of %s is not an integer", key)}
		}
		n = parsed
	}
	n += val
	s.kv[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// Scan returns the value keys matching a glob pattern, sorted.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.kv {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// ZAdd adds or re-scores a sorted set member.
func (s *Store) ZAdd(_ context.Context, key string, score int64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]int64)
		s.sets[key] = set
	}
	set[member] = score
	return nil
}

// ZRem removes sorted set members.
func (s *Store) ZRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.sets[key]
	for _, m := range members {
		delete(set, m)
	}
	return nil
}

type scored struct {
	member string
	score  int64
}

// ZRangeByScore returns members within r, ordered by score then member.
func (s *Store) ZRangeByScore(_ context.Context, key string, r db.ScoreRange) ([]string, error) {
	s.mu.RLock()
	entries := make([]scored, 0, len(s.sets[key]))
	for m, sc := range s.sets[key] {
		if sc >= r.Min && sc <= r.Max {
			entries = append(entries, scored{member: m, score: sc})
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(entries, func(a, b scored) int {
		return cmp.Or(cmp.Compare(a.score, b.score), cmp.Compare(a.member, b.member))
	})
	if r.Reverse {
		slices.Reverse(entries)
	}
	if r.Offset >= int64(len(entries)) {
		return nil, nil
	}
	entries = entries[r.Offset:]
	if r.Count > 0 && r.Count < int64(len(entries)) {
		entries = entries[:r.Count]
	}

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.member
	}
	return out, nil
}
