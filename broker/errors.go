package broker

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrCorrupt        = errors.New("corrupt response")
	ErrTransport      = errors.New("transport failure")
	ErrClosed         = errors.New("broker closed")
)

// Error is returned for every failed submission. Kind is one of the Err*
// values above and Err the underlying cause, if any.
type Error struct {
	Command string
	Kind    error
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("broker: %s: %v", e.Command, e.Kind)
	}
	return fmt.Sprintf("broker: %s: %v: %v", e.Command, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
