package task

import (
	"slices"
	"time"

	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
)

// Stats summarizes the members of a batch.
type Stats struct {
	TotalTasks int            `json:"totalNbTasks"`
	Status     map[Status]int `json:"status"`
	Types      map[Kind]int   `json:"types"`
	IndexUIDs  map[string]int `json:"indexUids"`
}

// DeriveStatus folds member statuses into the batch status: processing while any member
// is unfinished, succeeded when every member succeeded, failed otherwise.
func DeriveStatus(members []Status) Status {
	succeeded := len(members) > 0
	for _, s := range members {
		if !s.Terminal() {
			return StatusProcessing
		}
		if s != StatusSucceeded {
			succeeded = false
		}
	}
	if succeeded {
		return StatusSucceeded
	}
	return StatusFailed
}

// DeriveStats counts members by status, type and index.
func DeriveStats(members []Task) Stats {
	st := Stats{
		TotalTasks: len(members),
		Status:     make(map[Status]int),
		Types:      make(map[Kind]int),
		IndexUIDs:  make(map[string]int),
	}
	for _, t := range members {
		st.Status[t.Status()]++
		st.Types[t.Kind()]++
		if t.IndexUID() != "" {
			st.IndexUIDs[t.IndexUID()]++
		}
	}
	return st
}

// Batch groups tasks processed together. Its status is never stored: callers derive it
// from the members.
type Batch struct {
	uid        uint32
	taskUIDs   []uint32
	stats      Stats
	startedAt  time.Time
	finishedAt time.Time
}

// NewBatch creates a batch over a non-empty set of distinct task uids.
func NewBatch(uid uint32, taskUIDs []uint32, now time.Time) (Batch, error) {
	if len(taskUIDs) == 0 {
		return Batch{}, errcode.New(errcode.InvalidState, "batch `%d` has no tasks", uid)
	}
	uids := slices.Clone(taskUIDs)
	slices.Sort(uids)
	if len(slices.Compact(slices.Clone(uids))) != len(uids) {
		return Batch{}, errcode.New(errcode.InvalidState, "batch `%d` lists a task twice", uid)
	}
	return Batch{uid: uid, taskUIDs: uids, startedAt: now.UTC()}, nil
}

// ReconstructBatch hydrates a batch from storage.
func ReconstructBatch(uid uint32, taskUIDs []uint32, stats Stats, startedAt, finishedAt time.Time) Batch {
	uids := slices.Clone(taskUIDs)
	slices.Sort(uids)
	return Batch{uid: uid, taskUIDs: uids, stats: stats, startedAt: startedAt, finishedAt: finishedAt}
}

// UID returns the batch identifier.
func (b Batch) UID() uint32 { return b.uid }

// TaskUIDs returns member uids in ascending order.
func (b Batch) TaskUIDs() []uint32 { return slices.Clone(b.taskUIDs) }

// Stats returns the stats cached at the last refresh.
func (b Batch) Stats() Stats { return b.stats }

// StartedAt returns the batch start time.
func (b Batch) StartedAt() time.Time { return b.startedAt }

// FinishedAt returns the time the last member finished, zero while running.
func (b Batch) FinishedAt() time.Time { return b.finishedAt }

// Contains reports whether uid is a member.
func (b Batch) Contains(uid uint32) bool {
	_, ok := slices.BinarySearch(b.taskUIDs, uid)
	return ok
}

// Refresh recomputes the cached stats from the members and stamps the finish time once
// every member is terminal. Members not in the batch are ignored.
func (b Batch) Refresh(members []Task) Batch {
	own := make([]Task, 0, len(members))
	var last time.Time
	for _, t := range members {
		if !b.Contains(t.UID()) {
			continue
		}
		own = append(own, t)
		if t.FinishedAt().After(last) {
			last = t.FinishedAt()
		}
	}
	next := b
	next.stats = DeriveStats(own)
	next.finishedAt = time.Time{}
	if len(own) == len(b.taskUIDs) && DeriveStatus(statuses(own)) != StatusProcessing {
		next.finishedAt = last
	}
	return next
}

// Status derives the batch status from its members.
func (b Batch) Status(members []Task) Status {
	own := make([]Status, 0, len(members))
	for _, t := range members {
		if b.Contains(t.UID()) {
			own = append(own, t.Status())
		}
	}
	if len(own) < len(b.taskUIDs) {
		return StatusProcessing
	}
	return DeriveStatus(own)
}

// StatusFromStats derives the status from cached stats.
func (b Batch) StatusFromStats() Status {
	members := make([]Status, 0, b.stats.TotalTasks)
	for _, s := range Statuses {
		for range b.stats.Status[s] {
			members = append(members, s)
		}
	}
	return DeriveStatus(members)
}

func statuses(ts []Task) []Status {
	out := make([]Status, len(ts))
	for i, t := range ts {
		out[i] = t.Status()
	}
	return out
}

// BatchRecord is the persisted form of a batch.
type BatchRecord struct {
	UID        uint32     `json:"uid"`
	TaskUIDs   []uint32   `json:"taskUids"`
	Stats      Stats      `json:"stats"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`
}

// Record returns the persisted form.
func (b Batch) Record() BatchRecord {
	return BatchRecord{
		UID:        b.uid,
		TaskUIDs:   slices.Clone(b.taskUIDs),
		Stats:      b.stats,
		StartedAt:  b.startedAt,
		FinishedAt: optionalTime(b.finishedAt),
	}
}

// BatchFromRecord hydrates a batch from its persisted form.
func BatchFromRecord(r BatchRecord) Batch {
	var finished time.Time
	if r.FinishedAt != nil {
		finished = *r.FinishedAt
	}
	return ReconstructBatch(r.UID, r.TaskUIDs, r.Stats, r.StartedAt, finished)
}
