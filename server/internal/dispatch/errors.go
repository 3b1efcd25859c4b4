package dispatch

import (
	"fmt"
	"strings"
)

// Kind classifies a failed message. It is sent to the client as the reply code.
type Kind string

const (
	MalformedMessage  Kind = "MalformedMessage"
	MissingField      Kind = "MissingField"
	UnsupportedAction Kind = "UnsupportedAction"
	OperationFailed   Kind = "OperationFailed"
	VetoedByHook      Kind = "VetoedByHook"
)

// Error is a per-message failure. It never closes the connection.
type Error struct {
	Kind Kind
	Msg  string
	// Fields names the missing fields of a MissingField error.
	Fields []string
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s", e.Msg, strings.Join(e.Fields, ", "))
	}
	return e.Msg
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
