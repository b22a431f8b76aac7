package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrClosed        = errors.New("pipeline closed")
	ErrQueueFull     = errors.New("pipeline event queue full")
	ErrUnknownHandle = errors.New("unknown handle")
	ErrNoReply       = errors.New("action does not accept a reply")
)

// Code classifies pipeline errors.
type Code string

const (
	// CodeConfigurationMissing marks a disabled feature; callers treat it as a no-op.
	CodeConfigurationMissing    Code = "CONFIGURATION_MISSING"
	CodeCollaboratorUnavailable Code = "COLLABORATOR_UNAVAILABLE"
	CodeTriggerDeliveryFailure  Code = "TRIGGER_DELIVERY_FAILURE"
	CodeMalformedEvent          Code = "MALFORMED_EVENT"
)

// Error is a coded pipeline error wrapping its cause.
type Error struct {
	Code   Code
	Op     string
	Handle int64
	Err    error
}

func (e *Error) Error() string {
	if e.Handle != 0 {
		return fmt.Sprintf("%s: %s handle=%d: %v", e.Code, e.Op, e.Handle, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func triggerFailure(op string, handle int64, err error) *Error {
	return &Error{Code: CodeTriggerDeliveryFailure, Op: op, Handle: handle, Err: err}
}

func collaboratorUnavailable(op string, err error) *Error {
	return &Error{Code: CodeCollaboratorUnavailable, Op: op, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}
