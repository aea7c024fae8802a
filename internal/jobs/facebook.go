package jobs

import (
	"context"
	"net/url"
	"strings"

	"github.com/leo-cloudarbitration/functions/internal/config"
	"github.com/leo-cloudarbitration/functions/pkg/fetch"
	"github.com/leo-cloudarbitration/functions/pkg/fetch/dialect"
	"github.com/leo-cloudarbitration/functions/pkg/logging"
	"github.com/leo-cloudarbitration/functions/pkg/warehouse"
	"github.com/rs/zerolog/log"
)

// FacebookInsightsJob is the Graph API insights job.
const FacebookInsightsJob = "facebook-insights"

// hourlyBreakdown is renamed to "hour" in the table.
const hourlyBreakdown = "hourly_stats_aggregated_by_advertiser_time_zone"

func facebookTable(name string) warehouse.Table {
	return warehouse.Table{
		Name: name,
		Schema: warehouse.Schema{
			{Name: "date_start", Type: warehouse.TypeDate},
			{Name: "date_stop", Type: warehouse.TypeDate},
			{Name: "hour", Type: warehouse.TypeString},
			{Name: "account_id", Type: warehouse.TypeString},
			{Name: "account_name", Type: warehouse.TypeString},
			{Name: "campaign_id", Type: warehouse.TypeString},
			{Name: "campaign_name", Type: warehouse.TypeString},
			{Name: "ad_id", Type: warehouse.TypeString},
			{Name: "ad_name", Type: warehouse.TypeString},
			{Name: "impressions", Type: warehouse.TypeInteger},
			{Name: "clicks", Type: warehouse.TypeInteger},
			{Name: "reach", Type: warehouse.TypeInteger},
			{Name: "spend", Type: warehouse.TypeFloat},
			{Name: "ctr", Type: warehouse.TypeFloat},
			{Name: "cpm", Type: warehouse.TypeFloat},
			{Name: "cpc", Type: warehouse.TypeFloat},
			{Name: "creative_id", Type: warehouse.TypeString},
			{Name: "daily_budget", Type: warehouse.TypeFloat},
			{Name: "lifetime_budget", Type: warehouse.TypeFloat},
			{Name: "campaign_status", Type: warehouse.TypeString},
			{Name: "campaign_end_time", Type: warehouse.TypeTimestamp},
			{Name: "imported_at", Type: warehouse.TypeTimestamp},
		},
	}
}

// FacebookInsights builds the insights job. Each group's accounts are split
// across its tokens; with VerifyAccess the first account of each token slice is
// probed and a fatal answer marks the whole slice access_denied. Budgets and
// Creatives add side units per account whose records are merged into the
// insights rows by facebookRows.
func FacebookInsights(env *Env) (Spec, error) {
	cfg := env.Config.Facebook
	f := env.fetcher(dialect.Facebook())
	base := strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.APIVersion

	query := url.Values{}
	query.Set("fields", cfg.Fields)
	query.Set("level", cfg.Level)
	query.Set("date_preset", cfg.DatePreset)
	query.Set("time_increment", cfg.TimeIncrement)
	if cfg.Breakdowns != "" {
		query.Set("breakdowns", cfg.Breakdowns)
	}

	skip := make(map[string]bool, len(cfg.SkipAccounts))
	for _, acct := range cfg.SkipAccounts {
		skip[acct] = true
	}

	units := func(ctx context.Context) ([]Unit, error) {
		groups, err := config.LoadGroups(cfg.GroupsEnv, cfg.GroupsFile)
		if err != nil {
			return nil, err
		}

		var out []Unit
		for _, g := range groups {
			for _, a := range g.Split() {
				accounts := make([]string, 0, len(a.Accounts))
				for _, acct := range a.Accounts {
					if skip[acct] {
						log.Info().Str("component", "jobs").Str("unit", acct).Msg("Account skipped by configuration")
						continue
					}
					accounts = append(accounts, acct)
				}
				if len(accounts) == 0 {
					continue
				}

				var denied *fetch.PageError
				if cfg.VerifyAccess {
					denied = verifyAccess(ctx, f, base, a, accounts[0])
				}

				for _, acct := range accounts {
					out = append(out, Unit{
						ID:    acct,
						Group: g.Name,
						Request: fetch.FetchRequest{
							URL:      base + "/" + acct + "/insights",
							Query:    query,
							Token:    a.Token,
							PageSize: cfg.PageSize,
							Label:    acct,
						},
						Denied: denied,
					})
					for _, side := range sideEdges(cfg) {
						out = append(out, Unit{
							ID:    acct + "/" + side.edge,
							Group: g.Name,
							Request: fetch.FetchRequest{
								URL:      base + "/" + acct + "/" + side.edge,
								Query:    url.Values{"fields": {side.fields}},
								Token:    a.Token,
								PageSize: cfg.PageSize,
								Label:    acct + "/" + side.edge,
							},
							Annotate: map[string]any{sourceField: side.edge},
							Denied:   denied,
						})
					}
				}
			}
		}
		return out, nil
	}

	return Spec{
		Name:         FacebookInsightsJob,
		Table:        facebookTable(cfg.Table),
		Disposition:  warehouse.WriteTruncate,
		Fetcher:      f,
		UnitDelay:    env.Config.Fetch.AccountDelay,
		ClearOnEmpty: true,
		Units:        units,
		Transform:    facebookRows,
	}, nil
}

// verifyAccess probes one account with the slice's token. Only fatal answers
// deny access; a probe that ran out of retries lets the units try on their own.
func verifyAccess(ctx context.Context, f *fetch.Fetcher, base string, a config.Assignment, account string) *fetch.PageError {
	probe := fetch.FetchRequest{
		URL:   base + "/" + account,
		Query: url.Values{"fields": {"id,name"}},
		Token: a.Token,
		Label: account + ":access",
	}
	_, perr := f.FetchPage(ctx, probe, "", 0)
	if perr == nil {
		return nil
	}

	logger := logging.NewLogger("jobs").With().Str("group", a.Group).Int("token", a.Index+1).Logger()
	if perr.Kind.Fatal() {
		logger.Error().Err(perr).Int("accounts", len(a.Accounts)).Msg("Token has no access, skipping its accounts")
		return perr
	}
	logger.Warn().Err(perr).Msg("Access probe failed, continuing")
	return nil
}
