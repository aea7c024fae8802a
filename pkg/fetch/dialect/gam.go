package dialect

import (
	"net/http"
	"strings"

	"github.com/leo-cloudarbitration/functions/pkg/fetch"
)

// GAMName is the GAM reporting proxy dialect name.
const GAMName = "gam"

// GAM returns the dialect of the GAM reporting proxy. Reports come back in one page.
func GAM() fetch.Dialect {
	return fetch.Dialect{
		Name:     GAMName,
		Classify: ClassifyGAM,
		Describe: func(body []byte) fetch.ErrorDetail {
			detail := errorDetail(body, "code", "", "message")
			if detail.Message == "" {
				detail = errorDetail(body, "error.code", "", "error.message")
			}
			return detail
		},
		Decode: func(body []byte, _ string, _ int) (fetch.Page, error) {
			records, err := recordsAt(body, "response")
			if err != nil {
				return fetch.Page{}, err
			}
			return fetch.Page{Records: records}, nil
		},
		Authorize: func(req *http.Request, token string) {
			req.Header.Set("Authorization", "Bearer "+token)
		},
	}
}

// ClassifyGAM maps a proxy error response to an error kind.
func ClassifyGAM(status int, body []byte) fetch.ErrorKind {
	message := strings.ToLower(string(body))

	switch status {
	case http.StatusBadRequest:
		if strings.Contains(message, "rate limit") || strings.Contains(message, "quota") {
			return fetch.KindRateLimit
		}
		return fetch.KindFatalBadRequest
	case http.StatusUnauthorized, http.StatusNotFound:
		return fetch.KindFatalAuthOrNotFound
	case http.StatusForbidden:
		return fetch.KindFatalPermission
	case http.StatusTooManyRequests:
		return fetch.KindRateLimit
	case http.StatusInternalServerError:
		if strings.Contains(message, "too much data") || strings.Contains(message, "reduce the amount of data") {
			return fetch.KindOverload
		}
		return fetch.KindServer
	default:
		return fetch.KindServer
	}
}
