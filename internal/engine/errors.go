package engine

import (
	"errors"
	"fmt"
)

// Error classes. Match with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrProcess       = errors.New("process error")
	ErrNetwork       = errors.New("network error")
)

// Failure reasons carried by *Error.
const (
	ReasonMissingBinary    = "missing-binary"
	ReasonMissingModel     = "missing-model"
	ReasonPermissionDenied = "permission-denied"
	ReasonMissingAPIKey    = "missing-api-key"
	ReasonSpawnFailure     = "spawn-failure"
	ReasonNonZeroExit      = "non-zero-exit"
	ReasonReadFailure      = "read-failure"
	ReasonNetwork          = "network-error"
	ReasonAuth             = "auth-error"
	ReasonTimeout          = "timeout"
)

// Error is a classified inference failure.
type Error struct {
	Class  error  // one of ErrConfiguration, ErrProcess, ErrNetwork
	Reason string // one of the Reason* constants
	Detail string // human-readable context (path, status, stderr tail)
	Err    error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Class, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Class}
	}
	return []error{e.Class, e.Err}
}

func newError(class error, reason, detail string, cause error) *Error {
	return &Error{Class: class, Reason: reason, Detail: detail, Err: cause}
}

// Reason returns the failure reason of err, or "" when err is not an *Error.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Describe renders err as a message suitable for showing in place of
// generated text.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return fmt.Sprintf("[Inference Error] %v", err)
	}

	var label string
	switch e.Class {
	case ErrConfiguration:
		label = "Configuration Error"
	case ErrProcess:
		label = "Process Error"
	case ErrNetwork:
		label = "Network Error"
	default:
		label = "Inference Error"
	}

	var what string
	switch e.Reason {
	case ReasonMissingBinary:
		what = "engine binary not found"
	case ReasonMissingModel:
		what = "model file not found"
	case ReasonPermissionDenied:
		what = "engine binary is not executable"
	case ReasonMissingAPIKey:
		what = "remote API key not set"
	case ReasonSpawnFailure:
		what = "could not start engine"
	case ReasonNonZeroExit:
		what = "engine exited abnormally"
	case ReasonReadFailure:
		what = "reading engine output failed"
	case ReasonAuth:
		what = "remote API rejected credentials"
	case ReasonTimeout:
		what = "timeout"
	default:
		what = "remote API request failed"
	}

	msg := fmt.Sprintf("[%s] %s", label, what)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil && e.Reason != ReasonTimeout {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}
