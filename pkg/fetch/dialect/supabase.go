package dialect

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/leo-cloudarbitration/functions/pkg/fetch"
)

// SupabaseName is the Supabase (PostgREST) dialect name.
const SupabaseName = "supabase"

// Supabase returns the PostgREST dialect. apiKey is sent as the apikey header;
// the request token (usually the same key) as Bearer.
func Supabase(apiKey string) fetch.Dialect {
	return fetch.Dialect{
		Name:          SupabaseName,
		CursorParam:   "offset",
		PageSizeParam: "limit",
		Classify:      ClassifySupabase,
		Describe: func(body []byte) fetch.ErrorDetail {
			detail := errorDetail(body, "code", "", "message")
			if detail.Code == 0 && detail.Message == "" {
				return fetch.ErrorDetail{}
			}
			return detail
		},
		Decode: decodeSupabase,
		Authorize: func(req *http.Request, token string) {
			key := apiKey
			if key == "" {
				key = token
			}
			req.Header.Set("apikey", key)
			req.Header.Set("Authorization", "Bearer "+token)
		},
	}
}

// decodeSupabase reads a top-level array. Paging stops only at an empty page:
// PostgREST caps responses at its max-rows setting, so a page shorter than
// the requested limit is not proof that the table is exhausted.
func decodeSupabase(body []byte, cursor string, _ int) (fetch.Page, error) {
	records, err := recordsAt(body, "")
	if err != nil {
		return fetch.Page{}, err
	}

	page := fetch.Page{Records: records}
	if len(records) > 0 {
		offset, _ := strconv.Atoi(cursor)
		page.NextCursor = strconv.Itoa(offset + len(records))
	}
	return page, nil
}

// ClassifySupabase maps a PostgREST error response to an error kind.
func ClassifySupabase(status int, body []byte) fetch.ErrorKind {
	message := strings.ToLower(string(body))

	switch status {
	case http.StatusTooManyRequests:
		return fetch.KindRateLimit
	case http.StatusServiceUnavailable:
		if strings.Contains(message, "rate") {
			return fetch.KindRateLimit
		}
		return fetch.KindServer
	case http.StatusBadRequest, http.StatusRequestedRangeNotSatisfiable:
		return fetch.KindFatalBadRequest
	case http.StatusUnauthorized, http.StatusNotFound:
		return fetch.KindFatalAuthOrNotFound
	case http.StatusForbidden:
		return fetch.KindFatalPermission
	default:
		return fetch.KindServer
	}
}
