// Package common provides shared constants, types, and utilities
// used across lynxsync.
package common

import (
	"context"
	"errors"
)

// Sentinel errors for reconciliation.
// These can be checked with errors.Is() for proper error handling.
var (
	// Profile store errors.
	ErrProfileNotFound = errors.New("profile not found")
	ErrCorruptProfile  = errors.New("profile record unreadable")
	ErrPersistence     = errors.New("failed to persist profile")

	// Directory errors.
	ErrDirectoryUnavailable = errors.New("directory service unavailable")
	ErrMalformedCandidate   = errors.New("malformed candidate server")
	ErrNoCandidates         = errors.New("no candidate servers returned")
	ErrCountryNotFound      = errors.New("country not found in directory")

	// Configuration errors.
	ErrConfigLoad    = errors.New("failed to load configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidKey    = errors.New("invalid WireGuard private key")

	// ErrCancelled marks profiles skipped because the run was stopped.
	ErrCancelled = errors.New("run cancelled")
)

// Failure kinds reported per profile.
const (
	KindDirectoryUnavailable = "DirectoryUnavailable"
	KindMalformedCandidate   = "MalformedCandidate"
	KindPersistenceFailure   = "PersistenceFailure"
	KindCountryNotFound      = "CountryNotFound"
	KindCancelled            = "Cancelled"
	KindUnknown              = "Unknown"
)

// FailureKind maps an error to the label used in logs, reports and the
// history ledger. It returns "" for a nil error.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCountryNotFound):
		return KindCountryNotFound
	case errors.Is(err, ErrMalformedCandidate):
		return KindMalformedCandidate
	case errors.Is(err, ErrDirectoryUnavailable), errors.Is(err, ErrNoCandidates):
		return KindDirectoryUnavailable
	case errors.Is(err, ErrPersistence), errors.Is(err, ErrCorruptProfile):
		return KindPersistenceFailure
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindUnknown
	}
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
