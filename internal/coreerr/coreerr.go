// Package coreerr defines the error taxonomy shared by every layer of the
// dialogue core. Components return *Error so callers can branch on Kind
// instead of string-matching messages.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind names a class of failure. Values are stable across releases; they are
// surfaced to HTTP clients as the error envelope's "code" field.
type Kind string

const (
	InvalidInput        Kind = "InvalidInput"
	InvalidReference     Kind = "InvalidReference"
	UnsupportedModality  Kind = "UnsupportedModality"
	DialogueNotFound     Kind = "DialogueNotFound"
	DialogueClosed       Kind = "DialogueClosed"
	TurnClosed           Kind = "TurnClosed"
	InvalidParameters    Kind = "InvalidParameters"
	ToolTimeout          Kind = "ToolTimeout"
	ToolFailure          Kind = "ToolFailure"
	LLMTimeout           Kind = "LLMTimeout"
	LLMFailure           Kind = "LLMFailure"
	ContextOverflow      Kind = "ContextOverflow"
	StorageFailure       Kind = "StorageFailure"
	NotFound             Kind = "NotFound"
	Unauthorized         Kind = "Unauthorized"

	// Internal is the catch-all kind for failures that are not one of the
	// error-handling design's named kinds (§7); the HTTP layer maps it to
	// 500 the same way it does any unrecognized Kind.
	Internal Kind = "Internal"
)

// Error is the concrete error type returned throughout the core.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error carrying cause as its Unwrap target.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Of extracts the Kind of err, returning ("", false) when err is not (or does
// not wrap) a *Error.
func Of(err error) (Kind, bool) {
	var e *Error
	if err == nil {
		return "", false
	}
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}

// HTTPStatus maps a Kind to the REST status code the http layer should use.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput, InvalidReference, UnsupportedModality, InvalidParameters:
		return 400
	case Unauthorized:
		return 401
	case DialogueNotFound, NotFound:
		return 404
	case DialogueClosed, TurnClosed:
		return 409
	case ToolTimeout, LLMTimeout:
		return 504
	case ToolFailure, LLMFailure, ContextOverflow, StorageFailure:
		return 502
	default:
		return 500
	}
}
