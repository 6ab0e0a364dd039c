// Package modelerr defines the validation error taxonomy shared by the
// hierarchy, distribution, constraint and model packages. Every error carries
// a stable code so callers can branch with errors.Is without string matching.
package modelerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Code identifies a class of configuration failure.
type Code string

const (
	// CodeDuplicateIdentifier: two nodes share a name, two leaves share a
	// state, or a level/stream is declared twice.
	CodeDuplicateIdentifier Code = "DUPLICATE_IDENTIFIER"
	// CodeUnknownLevel: a distribution level has no non-leaf counterpart in
	// the state hierarchy.
	CodeUnknownLevel Code = "UNKNOWN_LEVEL"
	// CodeUnknownDistributionFamily: the family is not in the catalog.
	CodeUnknownDistributionFamily Code = "UNKNOWN_DISTRIBUTION_FAMILY"
	// CodeGroupingMismatch: equality classes do not partition the state set.
	CodeGroupingMismatch Code = "GROUPING_MISMATCH"
	// CodeInvalidDefinition: malformed input (empty names, mixed numbering).
	CodeInvalidDefinition Code = "INVALID_DEFINITION"
	// CodeInconsistentSpec: the hierarchy, distribution map and constraint
	// matrices disagree with each other.
	CodeInconsistentSpec Code = "INCONSISTENT_SPEC"
	// CodeInvalidParameter: an initial value lies outside the family support.
	CodeInvalidParameter Code = "INVALID_PARAMETER"
)

// Sentinels for errors.Is. They match any *Error carrying the same code.
var (
	ErrDuplicateIdentifier       = &Error{Code: CodeDuplicateIdentifier}
	ErrUnknownLevel              = &Error{Code: CodeUnknownLevel}
	ErrUnknownDistributionFamily = &Error{Code: CodeUnknownDistributionFamily}
	ErrGroupingMismatch          = &Error{Code: CodeGroupingMismatch}
	ErrInvalidDefinition         = &Error{Code: CodeInvalidDefinition}
	ErrInconsistentSpec          = &Error{Code: CodeInconsistentSpec}
	ErrInvalidParameter          = &Error{Code: CodeInvalidParameter}
)

// Error is a validation failure with context and remediation hints.
type Error struct {
	Code        Code
	Message     string
	Context     map[string]string
	Cause       error
	Suggestions []string
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if ctx := e.ContextString(); ctx != "" {
		msg += " (" + ctx + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) && t != nil {
		return e.Code == t.Code
	}
	return false
}

// With adds a context key-value pair and returns the error for chaining.
func (e *Error) With(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithSuggestion appends remediation hints, skipping blanks.
func (e *Error) WithSuggestion(suggestions ...string) *Error {
	for _, s := range suggestions {
		if s = strings.TrimSpace(s); s != "" {
			e.Suggestions = append(e.Suggestions, s)
		}
	}
	return e
}

// ContextString renders the context as sorted key="value" pairs.
func (e *Error) ContextString() string {
	if len(e.Context) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, e.Context[k]))
	}
	return strings.Join(parts, ", ")
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// DidYouMean returns up to three candidates that fuzzily match name, best first.
func DidYouMean(name string, candidates []string) []string {
	name = strings.TrimSpace(name)
	if name == "" || len(candidates) == 0 {
		return nil
	}
	matches := fuzzy.Find(name, candidates)
	out := make([]string, 0, 3)
	for _, m := range matches {
		out = append(out, fmt.Sprintf("did you mean %q?", m.Str))
		if len(out) == 3 {
			break
		}
	}
	return out
}
