package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound signals a missing task.
	ErrTaskNotFound = errors.New("task not found")
	// ErrBatchNotFound signals a missing batch.
	ErrBatchNotFound = errors.New("batch not found")
	// ErrIndexNotFound signals a missing index.
	ErrIndexNotFound = errors.New("index not found")
	// ErrIndexAlreadyExists signals a duplicate index.
	ErrIndexAlreadyExists = errors.New("index already exists")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrAPIKeyNotFound signals a missing API key.
	ErrAPIKeyNotFound = errors.New("api key not found")
	// ErrDumpNotFound signals a missing dump file.
	ErrDumpNotFound = errors.New("dump not found")
	// ErrDumpAlreadyProcessing signals a dump creation already in flight.
	ErrDumpAlreadyProcessing = errors.New("dump already processing")
)

// OperationError attaches the failing operation, index and task to an engine fault.
type OperationError struct {
	Op       string
	IndexUID string
	TaskUID  uint32
	Err      error
}

func (e *OperationError) Error() string {
	if e.IndexUID == "" {
		return fmt.Sprintf("%s (task %d): %s", e.Op, e.TaskUID, e.Err.Error())
	}
	return fmt.Sprintf("%s on index %q (task %d): %s", e.Op, e.IndexUID, e.TaskUID, e.Err.Error())
}

func (e *OperationError) Unwrap() error { return e.Err }

// NewOperationError wraps err with the operation context.
func NewOperationError(op, indexUID string, taskUID uint32, err error) error {
	return &OperationError{Op: op, IndexUID: indexUID, TaskUID: taskUID, Err: err}
}
