package dialect

import (
	"net/http"
	"strings"

	"github.com/leo-cloudarbitration/functions/pkg/fetch"
	"github.com/tidwall/gjson"
)

// GoogleName is the Google APIs dialect name.
const GoogleName = "google"

// GoogleOptions configures the Google dialect.
type GoogleOptions struct {
	// RecordsPath is where records live: "results" for Google Ads, "values" for Sheets.
	// Defaults to "results".
	RecordsPath string

	// DeveloperToken is sent as developer-token (Google Ads only).
	DeveloperToken string

	// LoginCustomerID is sent as login-customer-id (Google Ads manager accounts).
	LoginCustomerID string
}

// Google returns the dialect for Google REST APIs (Google Ads, Sheets).
func Google(opts GoogleOptions) fetch.Dialect {
	path := opts.RecordsPath
	if path == "" {
		path = "results"
	}

	return fetch.Dialect{
		Name:          GoogleName,
		CursorParam:   "pageToken",
		PageSizeParam: "pageSize",
		Classify:      ClassifyGoogle,
		Describe: func(body []byte) fetch.ErrorDetail {
			return errorDetail(body, "error.code", "", "error.message")
		},
		Decode: func(body []byte, _ string, _ int) (fetch.Page, error) {
			records, err := googleRecords(body, path)
			if err != nil {
				return fetch.Page{}, err
			}
			return fetch.Page{
				Records:    records,
				NextCursor: gjson.GetBytes(body, "nextPageToken").String(),
			}, nil
		},
		Authorize: func(req *http.Request, token string) {
			req.Header.Set("Authorization", "Bearer "+token)
			if opts.DeveloperToken != "" {
				req.Header.Set("developer-token", opts.DeveloperToken)
			}
			if opts.LoginCustomerID != "" {
				req.Header.Set("login-customer-id", opts.LoginCustomerID)
			}
		},
	}
}

// googleRecords decodes records. Sheets rows are arrays, not objects, and are
// wrapped as {"row": [...]} records.
func googleRecords(body []byte, path string) ([]fetch.Record, error) {
	if path != "values" {
		return recordsAt(body, path)
	}
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidJSON
	}

	var records []fetch.Record
	for _, row := range gjson.GetBytes(body, path).Array() {
		cells := make([]any, 0, len(row.Array()))
		for _, cell := range row.Array() {
			cells = append(cells, cell.String())
		}
		records = append(records, fetch.Record{"row": cells})
	}
	return records, nil
}

// ClassifyGoogle maps a Google API error response to an error kind.
func ClassifyGoogle(status int, body []byte) fetch.ErrorKind {
	res := gjson.ParseBytes(body)
	apiStatus := res.Get("error.status").String()
	message := strings.ToLower(res.Get("error.message").String())
	reason := res.Get("error.errors.0.reason").String()

	exhausted := apiStatus == "RESOURCE_EXHAUSTED" ||
		reason == "rateLimitExceeded" || reason == "userRateLimitExceeded" ||
		strings.Contains(message, "quota") || strings.Contains(message, "too many requests")

	switch status {
	case http.StatusBadRequest:
		if exhausted {
			return fetch.KindRateLimit
		}
		return fetch.KindFatalBadRequest
	case http.StatusUnauthorized, http.StatusNotFound:
		return fetch.KindFatalAuthOrNotFound
	case http.StatusForbidden:
		if exhausted {
			return fetch.KindRateLimit
		}
		return fetch.KindFatalPermission
	case http.StatusTooManyRequests:
		return fetch.KindRateLimit
	case http.StatusInternalServerError:
		if apiStatus == "RESPONSE_TOO_LARGE" || strings.Contains(message, "too much data") {
			return fetch.KindOverload
		}
		return fetch.KindServer
	default:
		if exhausted {
			return fetch.KindRateLimit
		}
		return fetch.KindServer
	}
}
