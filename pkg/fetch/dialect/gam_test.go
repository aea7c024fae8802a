package dialect

import (
	"context"
	"net/http"
	"testing"

	"github.com/leo-cloudarbitration/functions/internal/testutil"
	"github.com/leo-cloudarbitration/functions/pkg/fetch"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyGAM(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   fetch.ErrorKind
	}{
		{"429", 429, `{"message":"slow down"}`, fetch.KindRateLimit},
		{"400 rate limit", 400, `{"message":"Rate limit exceeded for network"}`, fetch.KindRateLimit},
		{"400 bad date", 400, `{"message":"invalid start_date"}`, fetch.KindFatalBadRequest},
		{"401", 401, `{"message":"unauthorized"}`, fetch.KindFatalAuthOrNotFound},
		{"404", 404, `{"message":"site not found"}`, fetch.KindFatalAuthOrNotFound},
		{"403", 403, `{"message":"forbidden"}`, fetch.KindFatalPermission},
		{"500 too much data", 500, `{"message":"Report has too much data"}`, fetch.KindOverload},
		{"500", 500, `{"message":"boom"}`, fetch.KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyGAM(tt.status, []byte(tt.body)))
		})
	}
}

func TestGAM_SinglePage(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	const path = "/report/kvp/1234/site-a/from-gam"
	mock.SetResponse(path, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"response":[{"key":"utm_content","value":"x","impressions":10},{"key":"utm_content","value":"y","impressions":5}]}`,
	})

	policy := fetch.DefaultRetryPolicy()
	policy.CourtesyDelay = 0
	f := fetch.New(GAM(), fetch.WithPolicy(policy), fetch.WithHTTPClient(mock.Client()), fetch.WithLogger(zerolog.Nop()))

	out := f.FetchAll(context.Background(), fetch.FetchRequest{
		URL:   mock.URL() + path,
		Token: "gam-token",
	})

	require.Equal(t, fetch.StatusSuccess, out.Status)
	assert.Len(t, out.Records, 2)
	assert.Equal(t, 1, out.Calls)
	assert.Equal(t, "Bearer gam-token", mock.LastRequest().Header.Get("Authorization"))
}
