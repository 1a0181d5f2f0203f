package relay

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady = errors.New("model not loaded")
	ErrClosed   = errors.New("relay is closed")
)

type ErrorKind string

const (
	KindNotReady       ErrorKind = "not_ready"
	KindEngineInit     ErrorKind = "engine_init"
	KindLoad           ErrorKind = "load"
	KindTranscribe     ErrorKind = "transcribe"
	KindInvalidCommand ErrorKind = "invalid_command"
)

// Error is the failure of one command. Its message is the underlying
// error's message, which is what the error event carries.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func invalidCommand(format string, args ...any) *Error {
	return newError(KindInvalidCommand, fmt.Errorf(format, args...))
}
