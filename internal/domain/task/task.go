// Package task models asynchronous operations, their lifecycle and their grouping into
// batches.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
)

// Task is one asynchronous operation. Values are immutable: every transition returns a
// new Task, so stores replace records whole and readers never observe half an update.
type Task struct {
	uid        uint32
	batchUID   *uint32
	indexUID   string
	status     Status
	details    Details
	failure    *errcode.Error
	canceledBy *uint32
	enqueuedAt time.Time
	startedAt  time.Time
	finishedAt time.Time
}

// New creates an enqueued task. Payload validation (ValidateDetails) runs before New.
func New(uid uint32, indexUID string, details Details, now time.Time) (Task, error) {
	if details == nil {
		return Task{}, errcode.New(errcode.MissingPayload, "task details are required")
	}
	if details.Kind().IndexScoped() {
		if err := ValidateIndexUID(indexUID); err != nil {
			return Task{}, err.In("indexUid")
		}
	} else if indexUID != "" {
		return Task{}, errcode.New(errcode.InvalidIndexUID,
			"`%s` tasks are not bound to an index", details.Kind()).In("indexUid")
	}
	return Task{
		uid:        uid,
		indexUID:   indexUID,
		status:     StatusEnqueued,
		details:    details,
		enqueuedAt: now.UTC(),
	}, nil
}

// UID returns the task identifier.
func (t Task) UID() uint32 { return t.uid }

// BatchUID returns the batch the task belongs to, if any.
func (t Task) BatchUID() (uint32, bool) {
	if t.batchUID == nil {
		return 0, false
	}
	return *t.batchUID, true
}

// IndexUID returns the target index, empty for engine-wide tasks.
func (t Task) IndexUID() string { return t.indexUID }

// Status returns the lifecycle state.
func (t Task) Status() Status { return t.status }

// Kind returns the operation type.
func (t Task) Kind() Kind { return t.details.Kind() }

// Details returns the kind-specific payload.
func (t Task) Details() Details { return t.details }

// Failure returns the error of a failed task, nil otherwise.
func (t Task) Failure() *errcode.Error { return t.failure }

// CanceledBy returns the uid of the cancelation task that canceled this one.
func (t Task) CanceledBy() (uint32, bool) {
	if t.canceledBy == nil {
		return 0, false
	}
	return *t.canceledBy, true
}

// EnqueuedAt returns the enqueue time.
func (t Task) EnqueuedAt() time.Time { return t.enqueuedAt }

// StartedAt returns the processing start time, zero until reached.
func (t Task) StartedAt() time.Time { return t.startedAt }

// FinishedAt returns the time the task became terminal, zero until reached.
func (t Task) FinishedAt() time.Time { return t.finishedAt }

// Duration returns the processing time of a finished task that was started.
func (t Task) Duration() (time.Duration, bool) {
	if t.startedAt.IsZero() || t.finishedAt.IsZero() {
		return 0, false
	}
	return t.finishedAt.Sub(t.startedAt), true
}

// Transition moves the task to another status. A failed task must carry failure, any
// other target must not. Cancelation goes through Cancel.
func (t Task) Transition(to Status, now time.Time, failure *errcode.Error) (Task, error) {
	if to == StatusCanceled {
		return t, errcode.New(errcode.InvalidTaskTransition,
			"task `%d` can only be canceled by a task cancelation", t.uid)
	}
	if err := t.checkTransition(to); err != nil {
		return t, err
	}
	switch {
	case to == StatusFailed && failure == nil:
		return t, errcode.New(errcode.InvalidTaskTransition, "failed task `%d` must carry an error", t.uid)
	case to != StatusFailed && failure != nil:
		return t, errcode.New(errcode.InvalidTaskTransition,
			"task `%d` cannot carry an error when moving to `%s`", t.uid, to)
	}

	next := t
	next.status = to
	next.failure = failure
	now = now.UTC()
	if to == StatusProcessing {
		next.startedAt = now
	}
	if to.Terminal() {
		next.finishedAt = now
	}
	return next, nil
}

// Start moves an enqueued task to processing.
func (t Task) Start(now time.Time) (Task, error) {
	return t.Transition(StatusProcessing, now, nil)
}

// Succeed finishes a processing task. A non-nil details replaces the payload with the
// counts gathered while processing and must be of the same kind.
func (t Task) Succeed(now time.Time, details Details) (Task, error) {
	if details != nil && details.Kind() != t.Kind() {
		return t, errcode.New(errcode.InvalidState,
			"task `%d` is a `%s` task, got `%s` details", t.uid, t.Kind(), details.Kind())
	}
	next, err := t.Transition(StatusSucceeded, now, nil)
	if err != nil {
		return t, err
	}
	if details != nil {
		next.details = details
	}
	return next, nil
}

// Fail finishes a processing task with an error.
func (t Task) Fail(now time.Time, failure *errcode.Error) (Task, error) {
	return t.Transition(StatusFailed, now, failure)
}

// Cancel marks an enqueued or processing task as canceled by task `by`. Canceling a
// finished task yields task_not_cancelable and leaves it untouched.
func (t Task) Cancel(by uint32, now time.Time) (Task, error) {
	if err := t.checkTransition(StatusCanceled); err != nil {
		return t, err
	}
	next := t
	next.status = StatusCanceled
	next.canceledBy = &by
	next.finishedAt = now.UTC()
	return next, nil
}

func (t Task) checkTransition(to Status) error {
	if t.status.Terminal() {
		if to == StatusCanceled {
			return errcode.New(errcode.TaskNotCancelable,
				"task `%d` is already `%s` and cannot be canceled", t.uid, t.status)
		}
		return errcode.New(errcode.InvalidTaskTransition,
			"task `%d` is already `%s`; finished tasks never change", t.uid, t.status)
	}
	if !canTransition(t.status, to) {
		return errcode.New(errcode.InvalidTaskTransition,
			"task `%d` cannot move from `%s` to `%s`", t.uid, t.status, to)
	}
	return nil
}

// WithBatch assigns the task to a batch. A task belongs to at most one batch.
func (t Task) WithBatch(batchUID uint32) (Task, error) {
	if t.batchUID != nil && *t.batchUID != batchUID {
		return t, errcode.New(errcode.InvalidState,
			"task `%d` already belongs to batch `%d`", t.uid, *t.batchUID)
	}
	if t.status.Terminal() {
		return t, errcode.New(errcode.InvalidState, "finished task `%d` cannot join a batch", t.uid)
	}
	next := t
	next.batchUID = &batchUID
	return next, nil
}

// Record is the persisted form of a task, shared by the stores and the dump format.
type Record struct {
	UID        uint32          `json:"uid"`
	BatchUID   *uint32         `json:"batchUid"`
	IndexUID   string          `json:"indexUid,omitempty"`
	Status     Status          `json:"status"`
	Type       Kind            `json:"type"`
	Details    json.RawMessage `json:"details,omitempty"`
	Error      *errcode.Error  `json:"error"`
	CanceledBy *uint32         `json:"canceledBy"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	StartedAt  *time.Time      `json:"startedAt"`
	FinishedAt *time.Time      `json:"finishedAt"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Record returns the persisted form.
func (t Task) Record() (Record, error) {
	raw, err := json.Marshal(t.details)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s details: %w", t.Kind(), err)
	}
	return Record{
		UID:        t.uid,
		BatchUID:   t.batchUID,
		IndexUID:   t.indexUID,
		Status:     t.status,
		Type:       t.Kind(),
		Details:    raw,
		Error:      t.failure,
		CanceledBy: t.canceledBy,
		EnqueuedAt: t.enqueuedAt,
		StartedAt:  optionalTime(t.startedAt),
		FinishedAt: optionalTime(t.finishedAt),
	}, nil
}

var errCorruptRecord = errors.New("corrupt task record")

// Reconstruct hydrates a task from its persisted form and checks the lifecycle
// invariants: known status and type, an error exactly on failed tasks, a finish time
// exactly on terminal tasks.
func Reconstruct(r Record) (Task, error) {
	if !r.Status.Valid() {
		return Task{}, fmt.Errorf("%w %d: unknown status %q", errCorruptRecord, r.UID, r.Status)
	}
	decode, ok := newDetails[r.Type]
	if !ok {
		return Task{}, fmt.Errorf("%w %d: unknown type %q", errCorruptRecord, r.UID, r.Type)
	}
	details, err := decode(r.Details)
	if err != nil {
		return Task{}, fmt.Errorf("%w %d: %w", errCorruptRecord, r.UID, err)
	}
	if (r.Status == StatusFailed) != (r.Error != nil) {
		return Task{}, fmt.Errorf("%w %d: status %s with error %v", errCorruptRecord, r.UID, r.Status, r.Error)
	}
	if r.Status.Terminal() != (r.FinishedAt != nil) {
		return Task{}, fmt.Errorf("%w %d: status %s with finishedAt %v", errCorruptRecord, r.UID, r.Status, r.FinishedAt)
	}
	t := Task{
		uid:        r.UID,
		batchUID:   r.BatchUID,
		indexUID:   r.IndexUID,
		status:     r.Status,
		details:    details,
		failure:    r.Error,
		canceledBy: r.CanceledBy,
		enqueuedAt: r.EnqueuedAt,
	}
	if r.StartedAt != nil {
		t.startedAt = *r.StartedAt
	}
	if r.FinishedAt != nil {
		t.finishedAt = *r.FinishedAt
	}
	return t, nil
}

// MarshalJSON encodes the task in its persisted form.
func (t Task) MarshalJSON() ([]byte, error) {
	r, err := t.Record()
	if err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

// UnmarshalJSON decodes and checks a persisted task.
func (t *Task) UnmarshalJSON(b []byte) error {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return fmt.Errorf("decode task: %w", err)
	}
	v, err := Reconstruct(r)
	if err != nil {
		return err
	}
	*t = v
	return nil
}
