package fetch

import (
	"errors"
	"fmt"
)

// Request validation errors.
var (
	// ErrCursorInQuery is returned when the caller put the pagination cursor into the query.
	ErrCursorInQuery = errors.New("query must not contain the pagination cursor")

	// ErrMissingURL is returned when a request has no URL.
	ErrMissingURL = errors.New("request URL is required")
)

// ErrorKind classifies why a page fetch attempt failed.
type ErrorKind string

const (
	// KindFatalBadRequest is a 400 without a rate-limit signature. The query is invalid.
	KindFatalBadRequest ErrorKind = "fatal_bad_request"

	// KindFatalAuthOrNotFound is a 401 or 404.
	KindFatalAuthOrNotFound ErrorKind = "fatal_auth_or_not_found"

	// KindFatalPermission is a 403 without an application rate-limit signature.
	KindFatalPermission ErrorKind = "fatal_permission"

	// KindRateLimit is any provider rate-limit signal.
	KindRateLimit ErrorKind = "rate_limit"

	// KindOverload is a 500 asking the caller to request less data.
	KindOverload ErrorKind = "overload"

	// KindServer is any other non-2xx status.
	KindServer ErrorKind = "server"

	// KindNetworkTimeout is a request that hit the hard timeout.
	KindNetworkTimeout ErrorKind = "network_timeout"

	// KindNetwork is a connection-level failure.
	KindNetwork ErrorKind = "network"

	// KindDecode is a 2xx whose body could not be decoded. Retried like a server error.
	KindDecode ErrorKind = "decode"

	// KindCancelled means the caller's context ended.
	KindCancelled ErrorKind = "cancelled"
)

// Fatal reports whether the kind stops the page fetch at the current attempt.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindFatalBadRequest, KindFatalAuthOrNotFound, KindFatalPermission:
		return true
	default:
		return false
	}
}

// Retryable reports whether the kind is subject to backoff and another attempt.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimit, KindOverload, KindServer, KindNetworkTimeout, KindNetwork, KindDecode:
		return true
	default:
		return false
	}
}

// PageError describes the last failure of a page fetch.
type PageError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Code       int
	Subcode    int
	Message    string
	Attempts   int
	Cursor     string
	Err        error
}

// Error implements the error interface.
func (e *PageError) Error() string {
	msg := fmt.Sprintf("%s %s error (status %d", e.Provider, e.Kind, e.StatusCode)
	if e.Code != 0 {
		msg += fmt.Sprintf(", code %d", e.Code)
	}
	if e.Subcode != 0 {
		msg += fmt.Sprintf(", subcode %d", e.Subcode)
	}
	msg += fmt.Sprintf(", attempts %d)", e.Attempts)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PageError) Unwrap() error {
	return e.Err
}
