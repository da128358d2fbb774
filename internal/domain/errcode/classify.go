package errcode

import (
	"errors"
	"io"
	"io/fs"
	"syscall"

	"github.com/kailas-cloud/searchcore/internal/domain"
)

var sentinels = []struct {
	err  error
	code Code
}{
	{domain.ErrTaskNotFound, TaskNotFound},
	{domain.ErrBatchNotFound, BatchNotFound},
	{domain.ErrIndexNotFound, IndexNotFound},
	{domain.ErrIndexAlreadyExists, IndexAlreadyExists},
	{domain.ErrDocumentNotFound, DocumentNotFound},
	{domain.ErrAPIKeyNotFound, APIKeyNotFound},
	{domain.ErrDumpNotFound, DumpNotFound},
	{domain.ErrDumpAlreadyProcessing, DumpAlreadyProcessing},
	{syscall.ENOSPC, NoSpaceLeftOnDevice},
	{syscall.EMFILE, TooManyOpenFiles},
	{syscall.ENFILE, TooManyOpenFiles},
}

const opaqueMessage = "An internal error has occurred."

// Classify maps any fault to a catalogued code. Unrecognized faults are Internal.
func Classify(err error) Code {
	if err == nil {
		return Internal
	}
	var e *Error
	if errors.As(err, &e) && e.code.Valid() {
		return e.code
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrShortWrite) {
		return IOError
	}
	return Internal
}

// FromError converts any fault into a renderable error. Catalogued errors are returned
// as is; unclassified faults get an opaque message and keep err as the cause.
func FromError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	code := Classify(err)
	if code == Internal {
		return Wrap(Internal, err, opaqueMessage)
	}
	return Wrap(code, err, "%s", err.Error())
}

// Response is the rendered form of an error.
type Response struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    Type   `json:"type"`
	Status  int    `json:"-"`
}

// Render is pure: the same error always yields the same response.
func Render(e *Error) Response {
	return Response{
		Message: e.Error(),
		Code:    e.code.Name(),
		Type:    e.code.Type(),
		Status:  e.code.HTTPStatus(),
	}
}
