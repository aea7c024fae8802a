package fetch

import (
	"net/http"
)

// Dialect bundles everything provider-specific about a paginated REST API.
// The fetcher itself knows nothing about Facebook, Google or GAM.
type Dialect struct {
	// Name labels logs, metrics and cooldown hints ("facebook", "google", ...).
	Name string

	// CursorParam is the query parameter (or JSON body field) carrying the cursor.
	CursorParam string

	// PageSizeParam carries the page size. Empty means the API has no page size.
	PageSizeParam string

	// Classify maps a non-2xx response to an error kind. Nil uses ClassifyStatus.
	Classify func(status int, body []byte) ErrorKind

	// Describe extracts the error code, subcode and message from an error body. Optional.
	Describe func(body []byte) ErrorDetail

	// Decode turns a 2xx body into a page. cursor and pageSize are the values the
	// page was requested with, for offset-paginated APIs.
	Decode func(body []byte, cursor string, pageSize int) (Page, error)

	// Authorize attaches the credential to the request. Optional.
	Authorize func(req *http.Request, token string)

	// PageSize returns the page size to request for the 0-indexed page. Nil keeps requested.
	PageSize func(pageIndex, requested int) int
}

// ErrorDetail is the provider error descriptor.
type ErrorDetail struct {
	Code    int
	Subcode int
	Message string
}

// ClassifyStatus is the status-only classification used when a dialect has none.
func ClassifyStatus(status int, _ []byte) ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return KindFatalBadRequest
	case http.StatusUnauthorized, http.StatusNotFound:
		return KindFatalAuthOrNotFound
	case http.StatusForbidden:
		return KindFatalPermission
	case http.StatusTooManyRequests:
		return KindRateLimit
	default:
		return KindServer
	}
}

func (d *Dialect) classify(status int, body []byte) ErrorKind {
	if d.Classify == nil {
		return ClassifyStatus(status, body)
	}
	return d.Classify(status, body)
}

func (d *Dialect) describe(body []byte) ErrorDetail {
	if d.Describe != nil {
		if detail := d.Describe(body); detail.Message != "" || detail.Code != 0 {
			return detail
		}
	}
	msg := string(body)
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return ErrorDetail{Message: msg}
}

func (d *Dialect) pageSize(pageIndex, requested int) int {
	if d.PageSize == nil {
		return requested
	}
	return d.PageSize(pageIndex, requested)
}
