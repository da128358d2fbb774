package task

import "github.com/kailas-cloud/searchcore/internal/domain/errcode"

// OutcomeStatus says whether a target task was eligible for a bulk operation.
type OutcomeStatus string

// Outcome statuses.
const (
	OutcomeAccepted OutcomeStatus = "accepted"
	OutcomeRejected OutcomeStatus = "rejected"
)

// Outcome is the per-target result of a cancelation or deletion.
type Outcome struct {
	uid    uint32
	status OutcomeStatus
	err    *errcode.Error
}

// Accepted creates an outcome for an eligible target.
func Accepted(uid uint32) Outcome { return Outcome{uid: uid, status: OutcomeAccepted} }

// Rejected creates an outcome for a target left untouched.
func Rejected(uid uint32, err *errcode.Error) Outcome {
	return Outcome{uid: uid, status: OutcomeRejected, err: err}
}

// UID returns the target task uid.
func (o Outcome) UID() uint32 { return o.uid }

// Status returns whether the target was eligible.
func (o Outcome) Status() OutcomeStatus { return o.status }

// Err returns why the target was rejected.
func (o Outcome) Err() *errcode.Error { return o.err }

// SummarizeForCancel splits targets into cancelable ones and finished ones, which are
// rejected with task_not_cancelable.
func SummarizeForCancel(targets []Task) []Outcome {
	out := make([]Outcome, len(targets))
	for i, t := range targets {
		if t.Status().Terminal() {
			out[i] = Rejected(t.UID(), errcode.New(errcode.TaskNotCancelable,
				"task `%d` is already `%s` and cannot be canceled", t.UID(), t.Status()))
			continue
		}
		out[i] = Accepted(t.UID())
	}
	return out
}

// SummarizeForDelete accepts finished targets only.
func SummarizeForDelete(targets []Task) []Outcome {
	out := make([]Outcome, len(targets))
	for i, t := range targets {
		if !t.Status().Terminal() {
			out[i] = Rejected(t.UID(), errcode.New(errcode.InvalidTaskStatuses,
				"task `%d` is `%s`; only finished tasks can be deleted", t.UID(), t.Status()))
			continue
		}
		out[i] = Accepted(t.UID())
	}
	return out
}

// AcceptedUIDs returns the uids of accepted outcomes.
func AcceptedUIDs(outcomes []Outcome) []uint32 {
	var uids []uint32
	for _, o := range outcomes {
		if o.status == OutcomeAccepted {
			uids = append(uids, o.uid)
		}
	}
	return uids
}
