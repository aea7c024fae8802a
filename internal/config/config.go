// Package config loads job configuration from the environment and an optional .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/leo-cloudarbitration/functions/pkg/fetch"
	"github.com/leo-cloudarbitration/functions/pkg/scheduler"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the ETL jobs.
type Config struct {
	Fetch     FetchConfig
	Redis     RedisConfig
	Warehouse WarehouseConfig
	Metrics   MetricsConfig
	Logging   LoggingConfig
	Facebook  FacebookConfig
	GoogleAds GoogleAdsConfig
	GAM       GAMConfig
	Supabase  SupabaseConfig
	Sheets    SheetsConfig

	// Timezone is used for report dates, imported_at and execution ids.
	Timezone string
}

// FetchConfig holds the retry, pacing and concurrency knobs shared by all jobs.
type FetchConfig struct {
	MaxWorkers     int
	MaxChecks      int
	SleepSeconds   int
	RequestDelay   time.Duration
	AccountDelay   time.Duration
	RateLimitDelay time.Duration
	RequestTimeout time.Duration
	MaxDelay       time.Duration
	BatchSize      int
	BatchDelay     time.Duration

	// RequestsPerSecond enables the shared pacer when positive.
	RequestsPerSecond float64
	Burst             int
}

// RedisConfig points at the shared cooldown store. An empty URL keeps the hint in memory.
type RedisConfig struct {
	URL    string
	Window time.Duration
}

// WarehouseConfig holds the Postgres sink configuration.
type WarehouseConfig struct {
	DSN        string
	Schema     string
	MaxConns   int32
	ViaBouncer bool
	AuditTable string
}

// MetricsConfig holds the Pushgateway target.
type MetricsConfig struct {
	PushgatewayURL string
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// FacebookConfig holds the Graph API insights job configuration.
type FacebookConfig struct {
	BaseURL       string
	APIVersion    string
	GroupsEnv     string
	GroupsFile    string
	Level         string
	DatePreset    string
	Fields        string
	TimeIncrement string
	Breakdowns    string
	PageSize      int
	SkipAccounts  []string
	VerifyAccess  bool

	// Budgets adds campaign and ad set budget units per account and merges
	// them into the insights rows by campaign_id.
	Budgets bool

	// Creatives adds an ads unit per account and fills creative_id, with
	// "dynamic_creative" for campaigns running dynamic creatives.
	Creatives bool

	Table string
}

// GoogleAdsConfig holds the Google Ads REST job configuration.
type GoogleAdsConfig struct {
	BaseURL         string
	APIVersion      string
	AccessToken     string
	DeveloperToken  string
	LoginCustomerID string
	CustomerIDs     []string
	DaysOffset      int
	Table           string
}

// GAMConfig holds the GAM reporting proxy job configuration.
type GAMConfig struct {
	BaseURL    string
	Token      string
	Sites      []GAMSite
	DaysOffset int
	Key        string
	Table      string
}

// GAMSite is one (network, site) pair reported by the GAM proxy.
type GAMSite struct {
	NetworkID string `json:"network_id"`
	Site      string `json:"site"`
}

// SupabaseConfig holds the PostgREST job configuration.
type SupabaseConfig struct {
	URL      string
	Key      string
	PageSize int
	Table    string

	CreativeMappingSource string
	CreativeMappingTable  string
}

// SheetsConfig holds the Sheets job configuration.
type SheetsConfig struct {
	BaseURL     string
	SheetID     string
	Range       string
	AccessToken string
	Table       string

	AdxFee SheetSource
	Pages  SheetSource
}

// SheetSource is one sheet range loaded into one table.
type SheetSource struct {
	SheetID string
	Range   string
	Table   string
}

// Load loads configuration from envFile (or ./.env when empty) and the environment.
// A missing default .env is not an error; a missing explicit envFile is.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, errors.Wrapf(err, "load env file %s", envFile)
		}
	} else {
		_ = godotenv.Load()
	}

	sites, err := parseSites(getEnv("GAM_SITES", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Fetch: FetchConfig{
			MaxWorkers:        getIntEnv("MAX_WORKERS", 15),
			MaxChecks:         getIntEnv("MAX_CHECKS", 8),
			SleepSeconds:      getIntEnv("SLEEP_SECONDS", 5),
			RequestDelay:      getDurationEnv("REQUEST_DELAY", 200*time.Millisecond),
			AccountDelay:      getDurationEnv("ACCOUNT_DELAY", 500*time.Millisecond),
			RateLimitDelay:    getDurationEnv("RATE_LIMIT_DELAY", 30*time.Second),
			RequestTimeout:    getDurationEnv("REQUEST_TIMEOUT", 60*time.Second),
			MaxDelay:          getDurationEnv("MAX_BACKOFF", 0),
			BatchSize:         getIntEnv("BATCH_SIZE", 15),
			BatchDelay:        getDurationEnv("BATCH_DELAY", 500*time.Millisecond),
			RequestsPerSecond: getFloatEnv("REQUESTS_PER_SECOND", 0),
			Burst:             getIntEnv("REQUESTS_BURST", 1),
		},
		Redis: RedisConfig{
			URL:    getEnv("REDIS_URL", ""),
			Window: getDurationEnv("RATE_LIMIT_WINDOW", 5*time.Minute),
		},
		Warehouse: WarehouseConfig{
			DSN:        getEnv("DATABASE_URL", ""),
			Schema:     getEnv("DATABASE_SCHEMA", "public"),
			MaxConns:   int32(getIntEnv("DATABASE_MAX_CONNS", 4)),
			ViaBouncer: getBoolEnv("DATABASE_VIA_BOUNCER", false),
			AuditTable: getEnv("AUDIT_TABLE", "etl_executions"),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getBoolEnv("LOG_PRETTY", false),
		},
		Facebook: FacebookConfig{
			BaseURL:       getEnv("FACEBOOK_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getEnv("FACEBOOK_API_VERSION", "v22.0"),
			GroupsEnv:     getEnv("FACEBOOK_GROUPS_ENV", "SECRET_FACEBOOK_GROUPS_CONFIG"),
			GroupsFile:    getEnv("FACEBOOK_GROUPS_FILE", "groups_config.json"),
			Level:         getEnv("FACEBOOK_LEVEL", "ad"),
			DatePreset:    getEnv("FACEBOOK_DATE_PRESET", "yesterday"),
			Fields:        getEnv("FACEBOOK_FIELDS", "account_id,account_name,campaign_id,campaign_name,ad_id,ad_name,date_start,date_stop,spend,impressions,clicks,ctr,cpm"),
			TimeIncrement: getEnv("FACEBOOK_TIME_INCREMENT", "1"),
			Breakdowns:    getEnv("FACEBOOK_BREAKDOWNS", ""),
			PageSize:      getIntEnv("FACEBOOK_PAGE_SIZE", 50),
			SkipAccounts:  getListEnv("FACEBOOK_SKIP_ACCOUNTS"),
			VerifyAccess:  getBoolEnv("FACEBOOK_VERIFY_ACCESS", true),
			Budgets:       getBoolEnv("FACEBOOK_BUDGETS", false),
			Creatives:     getBoolEnv("FACEBOOK_CREATIVES", false),
			Table:         getEnv("FACEBOOK_TABLE", "facebook_ads_performance"),
		},
		GoogleAds: GoogleAdsConfig{
			BaseURL:         getEnv("GOOGLE_ADS_BASE_URL", "https://googleads.googleapis.com"),
			APIVersion:      getEnv("GOOGLE_ADS_API_VERSION", "v18"),
			AccessToken:     getEnv("GOOGLE_ADS_ACCESS_TOKEN", ""),
			DeveloperToken:  getEnv("GOOGLE_ADS_DEVELOPER_TOKEN", ""),
			LoginCustomerID: getEnv("GOOGLE_ADS_LOGIN_CUSTOMER_ID", ""),
			CustomerIDs:     getListEnv("GOOGLE_ADS_CUSTOMER_IDS"),
			DaysOffset:      getIntEnv("GOOGLE_ADS_DAYS_OFFSET", 1),
			Table:           getEnv("GOOGLE_ADS_TABLE", "googleads_campaign_daily"),
		},
		GAM: GAMConfig{
			BaseURL:    getEnv("GAM_BASE_URL", "https://external-api.activeview.app"),
			Token:      getEnv("GAM_API_TOKEN", ""),
			Sites:      sites,
			DaysOffset: getIntEnv("REPORT_DAYS_OFFSET", 1),
			Key:        getEnv("GAM_KVP_KEY", "utm_content"),
			Table:      getEnv("GAM_TABLE", "gam_adsperformance"),
		},
		Supabase: SupabaseConfig{
			URL:      strings.TrimSpace(getEnv("SUPABASE_URL", "")),
			Key:      strings.TrimSpace(getEnv("SUPABASE_KEY", "")),
			PageSize: getIntEnv("SUPABASE_PAGE_SIZE", 1000),
			Table:    getEnv("SUPABASE_VAT_TABLE", "sheets_vat"),

			CreativeMappingSource: getEnv("SUPABASE_CREATIVE_MAPPING_SOURCE", "adsperfomance_creative_mapping"),
			CreativeMappingTable:  getEnv("SUPABASE_CREATIVE_MAPPING_TABLE", "cloud_adsperformance_creative_mapping"),
		},
		Sheets: SheetsConfig{
			BaseURL:     getEnv("SHEETS_BASE_URL", "https://sheets.googleapis.com"),
			SheetID:     getEnv("SHEET_ID", ""),
			Range:       getEnv("WORKSHEET", "adaccount_currency"),
			AccessToken: getEnv("SHEETS_ACCESS_TOKEN", ""),
			Table:       getEnv("SHEETS_CURRENCY_TABLE", "sheets_adaccount_currency"),
			AdxFee: SheetSource{
				SheetID: getEnv("SHEETS_ADXFEE_SHEET_ID", ""),
				Range:   getEnv("SHEETS_ADXFEE_RANGE", "adxfee"),
				Table:   getEnv("SHEETS_ADXFEE_TABLE", "sheets_adxfee"),
			},
			Pages: SheetSource{
				SheetID: getEnv("SHEETS_PAGES_SHEET_ID", ""),
				Range:   getEnv("SHEETS_PAGES_RANGE", "Sheet1"),
				Table:   getEnv("SHEETS_PAGES_TABLE", "cloud_helper_page_per_hour"),
			},
		},
		Timezone: getEnv("TIMEZONE", "America/Sao_Paulo"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

// Validate checks the values shared by every job. Job-specific credentials are
// checked by the job that needs them.
func (c *Config) Validate() error {
	if c.Fetch.MaxWorkers < 1 {
		return errors.Errorf("MAX_WORKERS must be positive, got %d", c.Fetch.MaxWorkers)
	}
	if c.Fetch.MaxChecks < 1 {
		return errors.Errorf("MAX_CHECKS must be positive, got %d", c.Fetch.MaxChecks)
	}
	if c.Fetch.SleepSeconds < 0 {
		return errors.Errorf("SLEEP_SECONDS must not be negative, got %d", c.Fetch.SleepSeconds)
	}
	if c.Fetch.BatchSize < 0 {
		return errors.Errorf("BATCH_SIZE must not be negative, got %d", c.Fetch.BatchSize)
	}
	if c.Fetch.RequestTimeout <= 0 {
		return errors.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.Fetch.RequestTimeout)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.Wrapf(err, "invalid TIMEZONE %q", c.Timezone)
	}

	if c.Warehouse.DSN == "" {
		log.Warn().Msg("DATABASE_URL not set. Rows will only be counted, not stored")
	}
	return nil
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RetryPolicy converts the fetch knobs into the fetcher's retry policy.
func (f FetchConfig) RetryPolicy() fetch.RetryPolicy {
	policy := fetch.DefaultRetryPolicy()
	policy.MaxAttempts = f.MaxChecks
	policy.CourtesyDelay = f.RequestDelay
	policy.BaseDelay = time.Duration(f.SleepSeconds) * time.Second
	policy.MaxDelay = f.MaxDelay
	policy.RateLimitCooldown = f.RateLimitDelay
	policy.RequestTimeout = f.RequestTimeout
	return policy
}

// Scheduler converts the concurrency knobs into a scheduler configuration.
func (f FetchConfig) Scheduler() scheduler.Config {
	return scheduler.Config{
		MaxConcurrency: f.MaxWorkers,
		BatchSize:      f.BatchSize,
		BatchDelay:     f.BatchDelay,
	}
}

// Helper functions to get environment variables with defaults

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Int("default", defaultValue).Msg("Invalid integer value, using default")
		return defaultValue
	}
	return value
}

func getFloatEnv(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Float64("default", defaultValue).Msg("Invalid float value, using default")
		return defaultValue
	}
	return value
}

func getBoolEnv(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Bool("default", defaultValue).Msg("Invalid boolean value, using default")
		return defaultValue
	}
	return value
}

// getDurationEnv accepts Go durations ("1m30s") and plain seconds ("0.2").
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	seconds, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Dur("default", defaultValue).Msg("Invalid duration value, using default")
		return defaultValue
	}
	return time.Duration(seconds * float64(time.Second))
}

// getListEnv splits a comma-separated variable, dropping blanks.
func getListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
