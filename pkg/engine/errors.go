package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error. The taxonomy is stable: callers switch on
// it for exit codes and recovery decisions, so new kinds are appended, never
// renamed.
type Kind string

const (
	// KindCliInvalid indicates an engine command line parse failure.
	KindCliInvalid Kind = "cli-invalid"

	// KindScriptSyntax indicates a file read, UTF-8, YAML, or task-shape
	// violation in the script being loaded.
	KindScriptSyntax Kind = "script-syntax"

	// KindDocoptMalformed indicates the Usage block itself is unparsable.
	KindDocoptMalformed Kind = "docopt-malformed"

	// KindDocoptNoMatch indicates the script argv does not match any usage
	// candidate.
	KindDocoptNoMatch Kind = "docopt-no-match"

	// KindDocoptAmbiguous indicates the script argv matches more than one
	// usage candidate with the same score.
	KindDocoptAmbiguous Kind = "docopt-ambiguous"

	// KindTemplateUndefined indicates a render touched an undefined variable.
	KindTemplateUndefined Kind = "template-undefined"

	// KindTemplateError indicates any other render-time failure.
	KindTemplateError Kind = "template-error"

	// KindModuleNotFound indicates a task names a module with no registered
	// handler.
	KindModuleNotFound Kind = "module-not-found"

	// KindParamInvalid indicates a module rejected its rendered parameters.
	KindParamInvalid Kind = "param-invalid"

	// KindModuleFailed indicates a module raised a runtime failure.
	KindModuleFailed Kind = "module-failed"

	// KindBecomeFailed indicates the privilege switch or the become IPC
	// round trip failed.
	KindBecomeFailed Kind = "become-failed"

	// KindAborted indicates user-initiated cancellation.
	KindAborted Kind = "aborted"

	// KindGracefulExit requests a clean exit with status 0, carrying the
	// text to print. Used by --help handling.
	KindGracefulExit Kind = "graceful-exit"

	// KindOmitParam is internal to the render pipeline: the rendered value
	// is the omit sentinel and its field must be dropped. It never reaches
	// the user.
	KindOmitParam Kind = "omit-param"
)

// Error is the engine error type. Every component returns it so the CLI can
// map failures to exit codes without string matching.
type Error struct {
	// Kind is the taxonomy entry for this error.
	Kind Kind

	// Message is the human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by kind so callers can use errors.Is with a bare kind
// sentinel constructed via NewError(kind, "").
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates an Error with the given kind and message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewErrorf creates an Error with a formatted message.
func NewErrorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error wrapping an underlying cause.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err if it is (or wraps) an engine Error, and
// KindModuleFailed otherwise. Errors that reach the interpreter from module
// code without classification are module failures by definition.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindModuleFailed
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
