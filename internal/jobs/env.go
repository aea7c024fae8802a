package jobs

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/leo-cloudarbitration/functions/internal/config"
	"github.com/leo-cloudarbitration/functions/pkg/fetch"
	"github.com/leo-cloudarbitration/functions/pkg/ratelimit"
)

// Env carries the dependencies shared by job builders.
type Env struct {
	Config     *config.Config
	HTTPClient *http.Client
	Cooldown   ratelimit.Oracle
	Pacer      *ratelimit.Pacer
	Sleeper    fetch.Sleeper
	Now        func() time.Time
}

func (e *Env) fetcher(d fetch.Dialect) *fetch.Fetcher {
	opts := []fetch.Option{fetch.WithPolicy(e.Config.Fetch.RetryPolicy())}
	if e.HTTPClient != nil {
		opts = append(opts, fetch.WithHTTPClient(e.HTTPClient))
	}
	if e.Cooldown != nil {
		opts = append(opts, fetch.WithCooldown(e.Cooldown))
	}
	if e.Pacer != nil {
		opts = append(opts, fetch.WithPacer(e.Pacer))
	}
	if e.Sleeper != nil {
		opts = append(opts, fetch.WithSleeper(e.Sleeper))
	}
	return fetch.New(d, opts...)
}

// today returns the current time in the configured zone.
func (e *Env) today() time.Time {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return now().In(e.Config.Location())
}

// reportDate is the local date offset days before today, as YYYY-MM-DD.
func (e *Env) reportDate(offset int) string {
	return e.today().AddDate(0, 0, -offset).Format("2006-01-02")
}

// Builder assembles a job spec from the environment.
type Builder func(env *Env) (Spec, error)

type entry struct {
	build       Builder
	description string
}

var registry = map[string]entry{
	FacebookInsightsJob: {FacebookInsights, "Graph API insights per ad account, grouped by token"},
	GAMKVPJob:           {GAMKVP, "GAM key-value report per network and site, aggregated by key/value"},
	GoogleAdsJob:        {GoogleAds, "Google Ads campaign metrics per customer for one day"},
	SupabaseVATJob:      {SupabaseVAT, "VAT periods per ad account from Supabase"},
	SheetsCurrencyJob:   {SheetsCurrency, "Ad account currencies from a Google Sheet"},
	CreativeMappingJob:  {CreativeMapping, "Creative mapping table from Supabase"},
	AdxFeeJob:           {AdxFee, "AdX fee per network and date from a Google Sheet"},
	PagesPerHourJob:     {PagesPerHour, "Page categories from a Google Sheet"},
}

// Names returns the registered job names in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the one-line description of a job.
func Describe(name string) string {
	return registry[name].description
}

// Build returns the spec of the named job.
func Build(name string, env *Env) (Spec, error) {
	e, ok := registry[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return e.build(env)
}

func missing(key string) error {
	return fmt.Errorf("%w: %s", ErrMissingConfig, key)
}
