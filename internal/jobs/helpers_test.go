package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/leo-cloudarbitration/functions/internal/config"
	"github.com/leo-cloudarbitration/functions/internal/testutil"
	"github.com/leo-cloudarbitration/functions/pkg/scheduler"
	"github.com/leo-cloudarbitration/functions/pkg/warehouse"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// noSleep returns immediately.
type noSleep struct{}

func (noSleep) Sleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Fetch: config.FetchConfig{
			MaxWorkers:     4,
			MaxChecks:      3,
			SleepSeconds:   1,
			RateLimitDelay: time.Second,
			RequestTimeout: 5 * time.Second,
		},
		Timezone: "UTC",
		Facebook: config.FacebookConfig{
			BaseURL:       baseURL,
			APIVersion:    "v22.0",
			GroupsEnv:     "TEST_FACEBOOK_GROUPS",
			Level:         "ad",
			DatePreset:    "yesterday",
			Fields:        "account_id,campaign_id,date_start,date_stop,impressions,spend",
			TimeIncrement: "1",
			PageSize:      50,
			Table:         "facebook_ads",
		},
		GoogleAds: config.GoogleAdsConfig{
			BaseURL:    baseURL,
			APIVersion: "v18",
			DaysOffset: 1,
			Table:      "googleads",
		},
		GAM: config.GAMConfig{
			BaseURL:    baseURL,
			DaysOffset: 1,
			Key:        "utm_content",
			Table:      "gam",
		},
		Supabase: config.SupabaseConfig{
			URL:      baseURL,
			PageSize: 2,
			Table:    "vat",

			CreativeMappingSource: "creative_mapping",
			CreativeMappingTable:  "creative_mapping",
		},
		Sheets: config.SheetsConfig{
			BaseURL: baseURL,
			Range:   "adaccount_currency",
			Table:   "currency",
			AdxFee:  config.SheetSource{Range: "adxfee", Table: "adxfee"},
			Pages:   config.SheetSource{Range: "Sheet1", Table: "pages"},
		},
	}
}

func testEnv(t *testing.T, api *testutil.MockAPI) *Env {
	t.Helper()
	return &Env{
		Config:     testConfig(api.URL()),
		HTTPClient: api.Client(),
		Sleeper:    noSleep{},
		Now:        func() time.Time { return fixedNow },
	}
}

func testRunner(sink warehouse.Sink, opts ...RunnerOption) *Runner {
	base := []RunnerOption{
		WithUnitSleeper(noSleep{}),
		WithScheduler(scheduler.Config{MaxConcurrency: 4}),
		WithClock(func() time.Time { return fixedNow }),
	}
	return NewRunner(sink, append(base, opts...)...)
}

// column returns the value of name in row according to table.
func column(table warehouse.Table, row warehouse.Row, name string) any {
	return row[table.Schema.Index(name)]
}
