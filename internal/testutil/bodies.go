package testutil

import (
	"fmt"
	"net/http"
	"strings"
)

// GraphPage builds a Graph API page body with count records numbered from offset.
// An empty next omits the paging cursor.
func GraphPage(count, offset int, next string) string {
	var b strings.Builder
	b.WriteString(`{"data":[`)
	for i := 0; i < count; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"id":"%d","impressions":"%d","spend":"%d.50"}`, offset+i, (offset+i)*10, offset+i)
	}
	b.WriteString(`]`)
	if next != "" {
		fmt.Fprintf(&b, `,"paging":{"cursors":{"before":"b","after":%q},"next":"https://graph.example/next"}`, next)
	}
	b.WriteString(`}`)
	return b.String()
}

// GraphError builds a Graph API error body. A zero subcode is omitted.
func GraphError(code, subcode int, message string) string {
	if subcode == 0 {
		return fmt.Sprintf(`{"error":{"message":%q,"type":"OAuthException","code":%d}}`, message, code)
	}
	return fmt.Sprintf(`{"error":{"message":%q,"type":"OAuthException","code":%d,"error_subcode":%d}}`, message, code, subcode)
}

// GoogleError builds a Google API error body.
func GoogleError(code int, status, message string) string {
	return fmt.Sprintf(`{"error":{"code":%d,"message":%q,"status":%q}}`, code, message, status)
}

// NewPageResponse creates a 200 OK Graph page response.
func NewPageResponse(count, offset int, next string) MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: GraphPage(count, offset, next)}
}

// NewGraphErrorResponse creates an error response with a Graph error body.
func NewGraphErrorResponse(status, code, subcode int, message string) MockResponse {
	return MockResponse{StatusCode: status, Body: GraphError(code, subcode, message)}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return NewGraphErrorResponse(http.StatusTooManyRequests, 4, 0, "Application request limit reached")
}

// NewOverloadResponse creates the 500 "reduce the amount of data" response.
func NewOverloadResponse() MockResponse {
	return NewGraphErrorResponse(http.StatusInternalServerError, 1, 0,
		"Please reduce the amount of data you're asking for, then retry your request")
}

// NewServerErrorResponse creates a generic 500 response.
func NewServerErrorResponse() MockResponse {
	return NewGraphErrorResponse(http.StatusInternalServerError, 2, 0, "An unexpected error has occurred")
}
