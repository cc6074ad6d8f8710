package discovery

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a discovery failure. The sync coordinator keys its fallback
// and abort decisions off the kind, never the message.
type Kind string

const (
	KindAuthRequired     Kind = "AUTH_REQUIRED"
	KindAuthExpired      Kind = "AUTH_EXPIRED"
	KindAuthTimeout      Kind = "AUTH_TIMEOUT"
	KindRateLimited      Kind = "RATE_LIMITED"
	KindNotFound         Kind = "NOT_FOUND"
	KindTransient        Kind = "TRANSIENT"
	KindCacheUnavailable Kind = "CACHE_UNAVAILABLE"
)

// Auth reports whether the kind is session-related. Under strict auth policy
// these abort the whole run.
func (k Kind) Auth() bool {
	switch k {
	case KindAuthRequired, KindAuthExpired, KindAuthTimeout:
		return true
	}
	return false
}

// Error is a classified discovery failure from one strategy.
type Error struct {
	Kind     Kind
	Strategy string
	Err      error
}

func (e *Error) Error() string {
	if e.Strategy == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Strategy, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errf builds a classified error.
func Errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error, preserving an already-assigned kind.
func Wrap(kind Kind, err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the kind from err, defaulting to TRANSIENT: an
// unclassified failure must never escalate beyond strategy fallback.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindTransient
}

// ClassifyStatus maps an HTTP status to a failure kind.
func ClassifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuthExpired
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindTransient
	}
}
