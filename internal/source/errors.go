package source

import (
	"errors"
	"fmt"
)

// Sentinel errors for the remote calendar API's mapped outcome classes.
// Fetchers wrap these with the failing source's identity.
var (
	// ErrUnauthorized means the bearer credential was rejected. It is the
	// only fetch error that escalates past the column level.
	ErrUnauthorized = errors.New("authentication expired")
	// ErrAccessDenied means this source refused the caller; other sources
	// are unaffected.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound means the source identifier is unknown to the service.
	ErrNotFound = errors.New("calendar not found")
	// ErrRateLimited means the service asked us to back off. Surfaced to
	// the column; never retried automatically.
	ErrRateLimited = errors.New("too many requests")
)

// TransportError is a network failure or 5xx response: retryable, and
// silently degrades the source to an empty event list if retries run out.
type TransportError struct {
	SourceID string
	Status   int // 0 when the request never completed
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("source %s: transport failure (status %d)", e.SourceID, e.Status)
	}
	return fmt.Sprintf("source %s: transport failure: %v", e.SourceID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FetchError is any other non-retryable fetch failure, carrying the
// transport status it arrived with.
type FetchError struct {
	SourceID string
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("source %s: fetch failed (status %d)", e.SourceID, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsAuthFailure reports whether err means the session credential is dead.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// UserMessage converts a fetch error into the column-level message shown to
// the user.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "Session expired. Please sign in again."
	case errors.Is(err, ErrAccessDenied):
		return "Access denied to one of this column's calendars."
	case errors.Is(err, ErrNotFound):
		return "One of this column's calendars was not found."
	case errors.Is(err, ErrRateLimited):
		return "Too many requests. Please wait a moment and try again."
	default:
		return "Failed to fetch calendar."
	}
}
