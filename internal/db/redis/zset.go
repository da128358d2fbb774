package redis

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/searchcore/internal/db"
)

// ZAdd adds or re-scores a sorted set member.
func (s *Store) ZAdd(ctx context.Context, key string, score int64, member string) error {
	cmd := s.b().Zadd().Key(key).ScoreMember().ScoreMember(float64(score), member).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpZAdd, Err: err}
	}
	return nil
}

// ZRem removes sorted set members.
func (s *Store) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	cmd := s.b().Zrem().Key(key).Member(members...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpZRem, Err: err}
	}
	return nil
}

// ZRangeByScore returns members within r via ZRANGE ... BYSCORE [REV] [LIMIT].
func (s *Store) ZRangeByScore(ctx context.Context, key string, r db.ScoreRange) ([]string, error) {
	lo, hi := strconv.FormatInt(r.Min, 10), strconv.FormatInt(r.Max, 10)
	args := []string{lo, hi, "BYSCORE"}
	if r.Reverse {
		args = []string{hi, lo, "BYSCORE", "REV"}
	}
	if r.Offset > 0 || r.Count > 0 {
		count := r.Count
		if count <= 0 {
			count = -1
		}
		args = append(args, "LIMIT", strconv.FormatInt(r.Offset, 10), strconv.FormatInt(count, 10))
	}

	cmd := s.b().Arbitrary("ZRANGE").Keys(key).Args(args...).Build()
	members, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpZRange, Err: err}
	}
	return members, nil
}
