package service

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Code classifies failures surfaced by a Service.
type Code string

const (
	CodeUnauthenticated Code = "Unauthenticated"
	CodeSessionExpired  Code = "SessionExpired"
	CodeDecode          Code = "DecodeError"
	CodeValidation      Code = "ValidationError"
	CodeNotFound        Code = "NotFound"
	CodeNetwork         Code = "NetworkError"
	CodeServer          Code = "ServerError"
)

// Sentinels for errors.Is checks against an *Error of the same code.
var (
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated, Message: "not logged in"}
	ErrSessionExpired  = &Error{Code: CodeSessionExpired, Message: "session expired"}
	ErrDecode          = &Error{Code: CodeDecode, Message: "malformed token"}
	ErrValidation      = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "not found"}
	ErrNetwork         = &Error{Code: CodeNetwork, Message: "network error"}
	ErrServer          = &Error{Code: CodeServer, Message: "server error"}
)

// Lookup errors returned by ResolveList.
var (
	ErrListNotFound  = errors.New("list not found")
	ErrAmbiguousList = errors.New("ambiguous list name")
)

// Error is a typed failure carrying a taxonomy code and, for validation
// failures, per-field detail.
type Error struct {
	Code    Code
	Status  int // HTTP status, 0 when no response was received
	Message string
	Fields  map[string]string // field -> problem
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the taxonomy code of err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// NewValidationError builds a client-side validation failure.
func NewValidationError(message string, fields map[string]string) *Error {
	return &Error{Code: CodeValidation, Status: 0, Message: message, Fields: fields}
}

// CodeForStatus maps a non-success HTTP status to a taxonomy code.
func CodeForStatus(status int) Code {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return CodeUnauthenticated
	case status == http.StatusNotFound:
		return CodeNotFound
	case status >= 500:
		return CodeServer
	default:
		return CodeValidation
	}
}
