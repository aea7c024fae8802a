package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Fetch.MaxWorkers)
	assert.Equal(t, 8, cfg.Fetch.MaxChecks)
	assert.Equal(t, 5, cfg.Fetch.SleepSeconds)
	assert.Equal(t, 200*time.Millisecond, cfg.Fetch.RequestDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Fetch.AccountDelay)
	assert.Equal(t, 30*time.Second, cfg.Fetch.RateLimitDelay)
	assert.Equal(t, 60*time.Second, cfg.Fetch.RequestTimeout)
	assert.Equal(t, "America/Sao_Paulo", cfg.Timezone)
	assert.Equal(t, "etl_executions", cfg.Warehouse.AuditTable)
	assert.Equal(t, "utm_content", cfg.GAM.Key)
	assert.True(t, cfg.Facebook.VerifyAccess)
	assert.False(t, cfg.Facebook.Budgets)
	assert.False(t, cfg.Facebook.Creatives)
	assert.Equal(t, "adsperfomance_creative_mapping", cfg.Supabase.CreativeMappingSource)
	assert.Equal(t, "adxfee", cfg.Sheets.AdxFee.Range)
	assert.Equal(t, "Sheet1", cfg.Sheets.Pages.Range)
	assert.Equal(t, "cloud_helper_page_per_hour", cfg.Sheets.Pages.Table)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("MAX_WORKERS", "4")
	t.Setenv("REQUEST_DELAY", "1.5")
	t.Setenv("RATE_LIMIT_DELAY", "2m")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("GOOGLE_ADS_CUSTOMER_IDS", "111, 222,,333")
	t.Setenv("GAM_SITES", "22958804404:finanzco.com,23295671757:bimviral.com")
	t.Setenv("FACEBOOK_BUDGETS", "true")
	t.Setenv("SHEETS_ADXFEE_SHEET_ID", "sheet-adx")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Fetch.MaxWorkers)
	assert.Equal(t, 1500*time.Millisecond, cfg.Fetch.RequestDelay)
	assert.Equal(t, 2*time.Minute, cfg.Fetch.RateLimitDelay)
	assert.True(t, cfg.Logging.Pretty)
	assert.Equal(t, []string{"111", "222", "333"}, cfg.GoogleAds.CustomerIDs)
	assert.Equal(t, []GAMSite{
		{NetworkID: "22958804404", Site: "finanzco.com"},
		{NetworkID: "23295671757", Site: "bimviral.com"},
	}, cfg.GAM.Sites)
	assert.True(t, cfg.Facebook.Budgets)
	assert.Equal(t, "sheet-adx", cfg.Sheets.AdxFee.SheetID)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_CHECKS", "many")
	t.Setenv("REQUEST_TIMEOUT", "soon")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Fetch.MaxChecks)
	assert.Equal(t, 60*time.Second, cfg.Fetch.RequestTimeout)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.env")
	require.NoError(t, os.WriteFile(path, []byte("SUPABASE_PAGE_SIZE=250\n"), 0o600))
	t.Setenv("SUPABASE_PAGE_SIZE", "")
	os.Unsetenv("SUPABASE_PAGE_SIZE")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Supabase.PageSize)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no workers", func(c *Config) { c.Fetch.MaxWorkers = 0 }, true},
		{"no attempts", func(c *Config) { c.Fetch.MaxChecks = 0 }, true},
		{"negative sleep", func(c *Config) { c.Fetch.SleepSeconds = -1 }, true},
		{"negative batch", func(c *Config) { c.Fetch.BatchSize = -1 }, true},
		{"no timeout", func(c *Config) { c.Fetch.RequestTimeout = 0 }, true},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Fetch:    FetchConfig{MaxWorkers: 1, MaxChecks: 1, RequestTimeout: time.Second},
				Timezone: "UTC",
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFetchConfig_RetryPolicy(t *testing.T) {
	f := FetchConfig{
		MaxChecks:      8,
		SleepSeconds:   5,
		RequestDelay:   200 * time.Millisecond,
		RateLimitDelay: 30 * time.Second,
		RequestTimeout: time.Minute,
	}

	p := f.RetryPolicy()
	assert.Equal(t, 8, p.MaxAttempts)
	assert.Equal(t, 5*time.Second, p.BaseDelay)
	assert.Equal(t, 200*time.Millisecond, p.CourtesyDelay)
	assert.Equal(t, 30*time.Second, p.RateLimitCooldown)
	assert.Equal(t, time.Minute, p.RequestTimeout)
	assert.Equal(t, 2.0, p.OverloadMultiplier)
}

func TestFetchConfig_Scheduler(t *testing.T) {
	s := FetchConfig{MaxWorkers: 3, BatchSize: 10, BatchDelay: time.Second}.Scheduler()
	assert.Equal(t, 3, s.MaxConcurrency)
	assert.Equal(t, 10, s.BatchSize)
	assert.Equal(t, time.Second, s.BatchDelay)
}

func TestParseSites(t *testing.T) {
	sites, err := parseSites(`[{"network_id":"1","site":"a.com"}]`)
	require.NoError(t, err)
	assert.Equal(t, []GAMSite{{NetworkID: "1", Site: "a.com"}}, sites)

	_, err = parseSites("1-a.com")
	assert.Error(t, err)

	sites, err = parseSites("")
	require.NoError(t, err)
	assert.Nil(t, sites)
}
