package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/todosync/internal/domain/task"
)

// Kind classifies a failure
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindProcess
	KindStore
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindProcess:
		return "process"
	case KindStore:
		return "store"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Code returns the wire code sent in error envelopes
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindNotFound:
		return "NOT_FOUND"
	case KindStore:
		return "STORE_ERROR"
	case KindNetwork:
		return "NETWORK_ERROR"
	default:
		return "PROCESS_ERROR"
	}
}

// Error is a classified failure that maps onto an error envelope
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the wire code
func (e *Error) Code() string { return e.Kind.Code() }

// ValidationError reports bad client input
func ValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// NotFoundError reports a reference to a task that does not exist
func NotFoundError(taskID string) *Error {
	return &Error{Kind: KindNotFound, Message: "task not found: " + taskID, Err: task.ErrNotFound}
}

// ProcessError reports an unparseable or unroutable message
func ProcessError(msg string, err error) *Error {
	return &Error{Kind: KindProcess, Message: msg, Err: err}
}

// StoreError reports a persistence failure
func StoreError(op string, err error) *Error {
	return &Error{Kind: KindStore, Message: op + " failed", Err: err}
}

// Classify maps any error to an *Error. Store sentinels decide the kind and
// anything unrecognised is a store failure.
func Classify(err error) *Error {
	var de *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &de):
		return de
	case errors.Is(err, task.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: "task not found", Err: err}
	case errors.Is(err, task.ErrInvalid):
		return &Error{Kind: KindValidation, Message: validationMessage(err), Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindProcess, Message: "request canceled", Err: err}
	default:
		return StoreError("store operation", err)
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, task.ErrEmptyContent):
		return "content is required"
	case errors.Is(err, task.ErrInvalidCategory):
		return "invalid category"
	default:
		return err.Error()
	}
}
