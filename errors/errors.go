package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sort"
	"strings"
)

// PlatformError is a structured error carrying a code, a human readable
// message, optional context and the underlying cause.
type PlatformError struct {
	Code      ErrorCode
	Message   string
	Context   map[string]any
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *PlatformError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(parts, " "))
		b.WriteString("]")
	}

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *PlatformError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a PlatformError with the same code.
func (e *PlatformError) Is(target error) bool {
	var pe *PlatformError
	if !stderrors.As(target, &pe) {
		return false
	}
	return pe.Code == e.Code && pe.Message == "" && pe.Cause == nil
}

// WithContext returns a copy of the error with the key/value pair added.
func (e *PlatformError) WithContext(key string, value any) *PlatformError {
	clone := *e
	clone.Context = make(map[string]any, len(e.Context)+1)
	maps.Copy(clone.Context, e.Context)
	clone.Context[key] = value
	return &clone
}

// New creates a new PlatformError with the given code and message.
func New(code ErrorCode, message string) *PlatformError {
	return &PlatformError{
		Code:      code,
		Message:   message,
		Retryable: retryableCodes[code],
	}
}

// Newf creates a new PlatformError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *PlatformError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps err with a code and message. It returns nil when err is nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	pe := New(code, message)
	pe.Cause = err
	if IsRetryable(err) {
		pe.Retryable = true
	}
	return pe
}

// Wrapf wraps err with a code and a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WrapWithContext wraps err and attaches context values.
func WrapWithContext(err error, code ErrorCode, message string, ctx map[string]any) error {
	if err == nil {
		return nil
	}
	pe := New(code, message)
	pe.Cause = err
	pe.Context = make(map[string]any, len(ctx))
	maps.Copy(pe.Context, ctx)
	if IsRetryable(err) {
		pe.Retryable = true
	}
	return pe
}

// Sentinel returns a bare PlatformError usable as an errors.Is target.
//
//	if errors.Is(err, errors.Sentinel(errors.CodeTimeout)) { ... }
func Sentinel(code ErrorCode) error {
	return &PlatformError{Code: code}
}

// GetCode extracts the outermost ErrorCode from err, or CodeUnknown.
func GetCode(err error) ErrorCode {
	var pe *PlatformError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}

// HasCode reports whether any PlatformError in err's chain has the code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var pe *PlatformError
		if !stderrors.As(err, &pe) {
			return false
		}
		if pe.Code == code {
			return true
		}
		err = pe.Cause
	}
	return false
}

// IsRetryable reports whether err is classified as transient.
func IsRetryable(err error) bool {
	var pe *PlatformError
	if stderrors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// Is is a passthrough to the standard library for callers that import this
// package under the errors name.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is a passthrough to the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
