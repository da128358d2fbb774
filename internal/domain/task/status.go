package task

import "fmt"

// Status is the lifecycle state of a task.
type Status string

// Task statuses.
const (
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusEnqueued, StatusProcessing, StatusSucceeded, StatusFailed, StatusCanceled}

// Terminal reports whether no transition can leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusEnqueued, StatusProcessing, StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// ParseStatus converts a wire name to a Status.
func ParseStatus(name string) (Status, error) {
	s := Status(name)
	if !s.Valid() {
		return "", fmt.Errorf("unknown task status %q", name)
	}
	return s, nil
}

// transitions is the state machine. Canceled is reached only through Cancel.
var transitions = map[Status][]Status{
	StatusEnqueued:   {StatusProcessing, StatusCanceled},
	StatusProcessing: {StatusSucceeded, StatusFailed, StatusCanceled},
}

func canTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
