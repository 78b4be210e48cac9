package conversation

import "errors"

// ErrNoSession is returned by Handle when the user has no active workflow.
var ErrNoSession = errors.New("conversation: no active session")

// ErrUnknownWorkflow is returned by Start for kinds outside the workflow table.
var ErrUnknownWorkflow = errors.New("conversation: unknown workflow")

// ValidationError describes step input that cannot be accepted.
// The session stays on the same step with its collected values untouched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "conversation: invalid " + e.Field + ": " + e.Message
}

// Code is picked up by the handler summary as err_code.
func (e *ValidationError) Code() string { return "VALIDATION" }

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}
