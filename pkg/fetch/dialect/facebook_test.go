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

func TestClassifyFacebook(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   fetch.ErrorKind
	}{
		{"400 code 17", 400, testutil.GraphError(17, 0, "User request limit reached"), fetch.KindRateLimit},
		{"400 message only", 400, testutil.GraphError(1, 0, "(#17) User request limit reached"), fetch.KindRateLimit},
		{"400 code 613", 400, testutil.GraphError(613, 0, "Calls to this api have exceeded the rate limit."), fetch.KindRateLimit},
		{"400 invalid field", 400, testutil.GraphError(100, 0, "Invalid parameter"), fetch.KindFatalBadRequest},
		{"400 non-json", 400, "oops", fetch.KindFatalBadRequest},
		{"401", 401, testutil.GraphError(190, 0, "Invalid OAuth access token"), fetch.KindFatalAuthOrNotFound},
		{"404", 404, "", fetch.KindFatalAuthOrNotFound},
		{"403 app limit", 403, testutil.GraphError(4, 1504022, "There have been too many calls"), fetch.KindRateLimit},
		{"403 code 4 other subcode", 403, testutil.GraphError(4, 1, "Application request limit reached"), fetch.KindFatalPermission},
		{"403 permission", 403, testutil.GraphError(200, 0, "Permissions error"), fetch.KindFatalPermission},
		{"429", 429, "", fetch.KindRateLimit},
		{"500 reduce data", 500, testutil.GraphError(1, 0, "Please reduce the amount of data you're asking for, then retry your request"), fetch.KindOverload},
		{"500 generic", 500, testutil.GraphError(2, 0, "Service temporarily unavailable"), fetch.KindServer},
		{"502", 502, "", fetch.KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFacebook(tt.status, []byte(tt.body)))
		})
	}
}

func TestFacebook_Decode(t *testing.T) {
	d := Facebook()

	page, err := d.Decode([]byte(testutil.GraphPage(3, 0, "CURSOR")), "", 100)
	require.NoError(t, err)
	assert.Len(t, page.Records, 3)
	assert.Equal(t, "CURSOR", page.NextCursor)
	assert.Equal(t, "0", page.Records[0]["id"])

	// after cursor without paging.next is the last page
	last := `{"data":[{"id":"1"}],"paging":{"cursors":{"before":"a","after":"b"}}}`
	page, err = d.Decode([]byte(last), "a", 25)
	require.NoError(t, err)
	assert.Empty(t, page.NextCursor)
	assert.Len(t, page.Records, 1)

	page, err = d.Decode([]byte(`{}`), "", 25)
	require.NoError(t, err)
	assert.Empty(t, page.Records)

	_, err = d.Decode([]byte(`{"data":{"id":"1"}}`), "", 25)
	assert.ErrorIs(t, err, ErrUnexpectedShape)

	_, err = d.Decode([]byte(`<html>`), "", 25)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestFacebook_PageSize(t *testing.T) {
	d := Facebook()

	assert.Equal(t, 500, d.PageSize(0, 500))
	assert.Equal(t, FacebookFollowupPageSize, d.PageSize(1, 500))
	assert.Equal(t, FacebookFollowupPageSize, d.PageSize(7, 500))
	assert.Equal(t, 0, d.PageSize(0, 0))
}

func TestFacebook_Describe(t *testing.T) {
	detail := Facebook().Describe([]byte(testutil.GraphError(4, 1504022, "too many calls")))

	assert.Equal(t, 4, detail.Code)
	assert.Equal(t, 1504022, detail.Subcode)
	assert.Equal(t, "too many calls", detail.Message)
}

func TestFacebook_FetchAllThroughFetcher(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	const path = "/v19.0/act_42/insights"
	mock.SetPages(path, "after", map[string]testutil.MockResponse{
		"":   testutil.NewPageResponse(50, 0, "c1"),
		"c1": testutil.NewPageResponse(25, 50, "c2"),
		"c2": testutil.NewPageResponse(5, 75, ""),
	})

	policy := fetch.DefaultRetryPolicy()
	policy.CourtesyDelay = 0
	f := fetch.New(Facebook(),
		fetch.WithPolicy(policy),
		fetch.WithHTTPClient(mock.Client()),
		fetch.WithLogger(zerolog.Nop()),
	)

	out := f.FetchAll(context.Background(), fetch.FetchRequest{
		URL:      mock.URL() + path,
		Token:    "fb-token",
		PageSize: 500,
		Label:    "act_42",
	})

	require.Equal(t, fetch.StatusSuccess, out.Status)
	assert.Len(t, out.Records, 80)
	assert.Equal(t, 3, out.Calls)

	reqs := mock.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "500", reqs[0].Query.Get("limit"))
	assert.Equal(t, "25", reqs[1].Query.Get("limit"))
	assert.Equal(t, "c2", reqs[2].Query.Get("after"))
	assert.Equal(t, "fb-token", reqs[2].Query.Get("access_token"))
	assert.Equal(t, http.MethodGet, reqs[0].Method)
}

func TestByName(t *testing.T) {
	for _, name := range []string{FacebookName, GoogleName, GAMName, SupabaseName} {
		d, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.Name)
	}

	_, err := ByName("tiktok")
	assert.Error(t, err)
}
