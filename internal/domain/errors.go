package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a gate has no stored samples yet.
	ErrNotFound = errors.New("not found")
	// ErrBadStatus marks a sensor response with a non-200 HTTP status.
	ErrBadStatus = errors.New("bad status")
	// ErrParseFailure marks a sensor response that could not be fetched or decoded.
	ErrParseFailure = errors.New("parse failure")
	// ErrLockUnavailable is returned when another process holds the collector lock.
	ErrLockUnavailable = errors.New("lock unavailable")
)

// FetchError describes a failed sensor fetch.
type FetchError struct {
	Kind   error
	Err    error
	URL    string
	Status int
}

func (e *FetchError) Error() string {
	if errors.Is(e.Kind, ErrBadStatus) {
		return fmt.Sprintf("fetch %s: %v: %d", e.URL, e.Kind, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// StoreError wraps a record store failure for a single gate.
type StoreError struct {
	Err  error
	Op   string
	Gate string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Gate, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// BatchError reports a failure that escaped per-gate handling and aborted a pass.
type BatchError struct {
	Cause  error
	PassID string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("pass %s aborted: %v", e.PassID, e.Cause)
}

func (e *BatchError) Unwrap() error { return e.Cause }
