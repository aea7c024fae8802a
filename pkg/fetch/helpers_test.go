package fetch

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// recordingSleeper records every sleep without waiting.
type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return ctx.Err()
}

func (s *recordingSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

// graphDialect is a minimal Graph-style dialect for exercising the fetcher.
func graphDialect() Dialect {
	return Dialect{
		Name:          "graph",
		CursorParam:   "after",
		PageSizeParam: "limit",
		Classify: func(status int, body []byte) ErrorKind {
			code := gjson.GetBytes(body, "error.code").Int()
			subcode := gjson.GetBytes(body, "error.error_subcode").Int()
			msg := gjson.GetBytes(body, "error.message").String()
			switch status {
			case http.StatusBadRequest:
				if code == 17 {
					return KindRateLimit
				}
				return KindFatalBadRequest
			case http.StatusUnauthorized, http.StatusNotFound:
				return KindFatalAuthOrNotFound
			case http.StatusForbidden:
				if code == 4 && subcode == 1504022 {
					return KindRateLimit
				}
				return KindFatalPermission
			case http.StatusTooManyRequests:
				return KindRateLimit
			case http.StatusInternalServerError:
				if strings.Contains(msg, "reduce the amount of data") {
					return KindOverload
				}
				return KindServer
			default:
				return KindServer
			}
		},
		Describe: func(body []byte) ErrorDetail {
			return ErrorDetail{
				Code:    int(gjson.GetBytes(body, "error.code").Int()),
				Subcode: int(gjson.GetBytes(body, "error.error_subcode").Int()),
				Message: gjson.GetBytes(body, "error.message").String(),
			}
		},
		Decode: func(body []byte, _ string, _ int) (Page, error) {
			var env struct {
				Data []Record `json:"data"`
			}
			if err := json.Unmarshal(body, &env); err != nil {
				return Page{}, err
			}
			return Page{
				Records:    env.Data,
				NextCursor: gjson.GetBytes(body, "paging.cursors.after").String(),
			}, nil
		},
		Authorize: func(req *http.Request, token string) {
			q := req.URL.Query()
			q.Set("access_token", token)
			req.URL.RawQuery = q.Encode()
		},
		PageSize: func(pageIndex, requested int) int {
			if pageIndex > 0 && requested > 25 {
				return 25
			}
			return requested
		},
	}
}

// testPolicy has no courtesy delay so that recorded sleeps are backoff sleeps only.
func testPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        maxAttempts,
		BaseDelay:          time.Second,
		RateLimitCooldown:  30 * time.Second,
		OverloadMultiplier: 2,
		RequestTimeout:     5 * time.Second,
	}
}
