package domain

import (
	"errors"
	"fmt"
)

// ErrUnresolvableID means a canonical product id did not match any registered
// source prefix. Surfaced to callers as a not-found.
var ErrUnresolvableID = errors.New("unresolvable product id")

// ErrNotFound means an id resolved to a source but the source has no matching
// native row.
var ErrNotFound = errors.New("product not found")

// ErrFanoutDeadline marks a source task that was still pending when the
// fan-out deadline elapsed. The task is recorded as failed, never the whole
// request.
var ErrFanoutDeadline = errors.New("fan-out deadline elapsed")

// MalformedFilterError is a client-visible rejection of a filter value that
// has no safe default (clampable values are clamped instead).
type MalformedFilterError struct {
	Param  string
	Reason string
}

func (e *MalformedFilterError) Error() string {
	return fmt.Sprintf("malformed filter %q: %s", e.Param, e.Reason)
}

// SourceError wraps a per-source fetch or count failure. Listings degrade
// gracefully on it; it exists so logs can name the failing source.
type SourceError struct {
	SourceKey string
	Err       error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.SourceKey, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
