package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FetchRequest describes one paginated resource.
type FetchRequest struct {
	// URL is the resource URL. It may carry query parameters of its own.
	URL string

	// Query is merged into the URL. It must not contain the dialect's cursor parameter.
	Query url.Values

	// Body, when non-nil, makes every page a JSON POST with the cursor and page size
	// written into the body instead of the query.
	Body map[string]any

	// Token is handed to the dialect's Authorize.
	Token string

	// PageSize is the requested page size. Zero leaves the API default.
	PageSize int

	// Label identifies the unit of work in logs (account id, site, ...).
	Label string
}

// Record is one opaque API record. Numbers decode as json.Number.
type Record map[string]any

// Page is the result of one successful HTTP call.
type Page struct {
	Records    []Record
	NextCursor string
}

func (f *Fetcher) validate(req FetchRequest) error {
	if req.URL == "" {
		return ErrMissingURL
	}
	if f.dialect.CursorParam == "" {
		return nil
	}
	if _, ok := req.Query[f.dialect.CursorParam]; ok {
		return fmt.Errorf("%w: %q", ErrCursorInQuery, f.dialect.CursorParam)
	}
	if _, ok := req.Body[f.dialect.CursorParam]; ok {
		return fmt.Errorf("%w: %q in body", ErrCursorInQuery, f.dialect.CursorParam)
	}
	return nil
}

// newHTTPRequest builds the HTTP request for one attempt.
func (f *Fetcher) newHTTPRequest(ctx context.Context, req FetchRequest, cursor string, pageSize int) (*http.Request, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	q := u.Query()
	for key, values := range req.Query {
		q[key] = append([]string(nil), values...)
	}

	var httpReq *http.Request
	if req.Body == nil {
		if cursor != "" {
			q.Set(f.dialect.CursorParam, cursor)
		}
		if pageSize > 0 && f.dialect.PageSizeParam != "" {
			q.Set(f.dialect.PageSizeParam, strconv.Itoa(pageSize))
		}
		u.RawQuery = q.Encode()

		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
	} else {
		u.RawQuery = q.Encode()

		body := make(map[string]any, len(req.Body)+2)
		for key, value := range req.Body {
			body[key] = value
		}
		if cursor != "" {
			body[f.dialect.CursorParam] = cursor
		}
		if pageSize > 0 && f.dialect.PageSizeParam != "" {
			body[f.dialect.PageSizeParam] = pageSize
		}

		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}

		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if f.dialect.Authorize != nil && req.Token != "" {
		f.dialect.Authorize(httpReq, req.Token)
	}

	return httpReq, nil
}
