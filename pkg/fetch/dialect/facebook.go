package dialect

import (
	"net/http"
	"strings"

	"github.com/leo-cloudarbitration/functions/pkg/fetch"
	"github.com/tidwall/gjson"
)

// FacebookName is the Graph API dialect name.
const FacebookName = "facebook"

// FacebookFollowupPageSize is the page size requested after the first page.
const FacebookFollowupPageSize = 25

// Graph API error codes treated as throttling.
const (
	fbCodeAppLimit      = 4
	fbCodeUserLimit     = 17
	fbCodeAPITooMany    = 32
	fbCodeCallLimit     = 613
	fbSubcodeAppLimit   = 1504022
	fbUserLimitMessage  = "User request limit reached"
	fbOverloadSignature = "reduce the amount of data"
)

// Facebook returns the Graph API dialect.
func Facebook() fetch.Dialect {
	return fetch.Dialect{
		Name:          FacebookName,
		CursorParam:   "after",
		PageSizeParam: "limit",
		Classify:      ClassifyFacebook,
		Describe: func(body []byte) fetch.ErrorDetail {
			return errorDetail(body, "error.code", "error.error_subcode", "error.message")
		},
		Decode:    decodeFacebook,
		Authorize: authorizeQuery("access_token"),
		PageSize: func(pageIndex, requested int) int {
			if pageIndex == 0 || requested <= 0 {
				return requested
			}
			return FacebookFollowupPageSize
		},
	}
}

// ClassifyFacebook maps a Graph API error response to an error kind.
func ClassifyFacebook(status int, body []byte) fetch.ErrorKind {
	detail := errorDetail(body, "error.code", "error.error_subcode", "error.message")

	switch status {
	case http.StatusBadRequest:
		if isFacebookThrottle(detail) {
			return fetch.KindRateLimit
		}
		return fetch.KindFatalBadRequest
	case http.StatusUnauthorized, http.StatusNotFound:
		return fetch.KindFatalAuthOrNotFound
	case http.StatusForbidden:
		if detail.Code == fbCodeAppLimit && detail.Subcode == fbSubcodeAppLimit {
			return fetch.KindRateLimit
		}
		return fetch.KindFatalPermission
	case http.StatusTooManyRequests:
		return fetch.KindRateLimit
	case http.StatusInternalServerError:
		if strings.Contains(strings.ToLower(detail.Message), fbOverloadSignature) {
			return fetch.KindOverload
		}
		return fetch.KindServer
	default:
		return fetch.KindServer
	}
}

func isFacebookThrottle(detail fetch.ErrorDetail) bool {
	switch detail.Code {
	case fbCodeUserLimit, fbCodeAppLimit, fbCodeAPITooMany, fbCodeCallLimit:
		return true
	}
	return strings.Contains(detail.Message, fbUserLimitMessage)
}

// decodeFacebook reads "data" and the "after" cursor. Graph keeps returning an
// after cursor on the last page; only "paging.next" says another page exists.
func decodeFacebook(body []byte, _ string, _ int) (fetch.Page, error) {
	records, err := recordsAt(body, "data")
	if err != nil {
		return fetch.Page{}, err
	}

	page := fetch.Page{Records: records}
	paging := gjson.GetBytes(body, "paging")
	if paging.Get("next").String() != "" {
		page.NextCursor = paging.Get("cursors.after").String()
	}
	return page, nil
}

func authorizeQuery(param string) func(*http.Request, string) {
	return func(req *http.Request, token string) {
		q := req.URL.Query()
		q.Set(param, token)
		req.URL.RawQuery = q.Encode()
	}
}
