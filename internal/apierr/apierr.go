// Package apierr defines the error taxonomy shared by the provider adapters,
// the media poller and the orchestration engine.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// Transport covers non-2xx responses and network failures.
	Transport Kind = "transport"
	// ProviderLogic covers HTTP 200 bodies that carry an embedded failure code.
	ProviderLogic Kind = "provider_logic"
	// Parse covers unparseable model output (votes, tool calls).
	Parse Kind = "parse"
	// Timeout covers deadlines reached while waiting on a provider or a job.
	Timeout Kind = "timeout"
	// Aggregate is reported when every member of a fan-out failed.
	Aggregate Kind = "aggregate"
)

// Error is a classified failure. Status is the HTTP-style status code when
// one is known, zero otherwise.
type Error struct {
	Kind     Kind
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Provider != "" && e.Status != 0:
		return fmt.Sprintf("%s error %d: %s", e.Provider, e.Status, e.Message)
	case e.Provider != "":
		return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("error %d: %s", e.Status, e.Message)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, provider string, status int, message string) *Error {
	return &Error{Kind: kind, Provider: provider, Status: status, Message: message}
}

// Wrap classifies an underlying error without losing it.
func Wrap(kind Kind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: err.Error(), Err: err}
}

// KindOf returns the kind of the first classified error in the chain, or ""
// when the chain carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusCode returns the status carried by err, or zero.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// IsTimeout reports whether err is a timeout-kind failure.
func IsTimeout(err error) bool {
	return KindOf(err) == Timeout
}
