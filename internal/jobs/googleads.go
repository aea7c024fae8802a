package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/leo-cloudarbitration/functions/pkg/fetch"
	"github.com/leo-cloudarbitration/functions/pkg/fetch/dialect"
	"github.com/leo-cloudarbitration/functions/pkg/warehouse"
)

// GoogleAdsJob is the Google Ads campaign job.
const GoogleAdsJob = "googleads"

const googleAdsQuery = `SELECT customer.id, customer.descriptive_name, campaign.id, campaign.name, ` +
	`segments.date, customer.currency_code, campaign_budget.amount_micros, metrics.cost_micros, ` +
	`metrics.clicks, metrics.average_cpc, metrics.impressions, metrics.ctr, metrics.conversions, ` +
	`metrics.cost_per_conversion FROM campaign WHERE segments.date = '%s'`

func googleAdsTable(name string) warehouse.Table {
	return warehouse.Table{
		Name: name,
		Schema: warehouse.Schema{
			{Name: "account_name", Type: warehouse.TypeString},
			{Name: "account_id", Type: warehouse.TypeString},
			{Name: "campaign_id", Type: warehouse.TypeString},
			{Name: "campaign_name", Type: warehouse.TypeString},
			{Name: "date", Type: warehouse.TypeDate},
			{Name: "moeda", Type: warehouse.TypeString},
			{Name: "budget", Type: warehouse.TypeFloat},
			{Name: "spend", Type: warehouse.TypeFloat},
			{Name: "clicks", Type: warehouse.TypeInteger},
			{Name: "cpc", Type: warehouse.TypeFloat},
			{Name: "impressions", Type: warehouse.TypeInteger},
			{Name: "ctr", Type: warehouse.TypeFloat},
			{Name: "conversions", Type: warehouse.TypeFloat},
			{Name: "cost_per_conversion", Type: warehouse.TypeFloat},
			{Name: "imported_at", Type: warehouse.TypeTimestamp},
		},
	}
}

// GoogleAds builds the Google Ads job: one paged search per customer.
func GoogleAds(env *Env) (Spec, error) {
	cfg := env.Config.GoogleAds
	if len(cfg.CustomerIDs) == 0 {
		return Spec{}, missing("GOOGLE_ADS_CUSTOMER_IDS")
	}
	if cfg.AccessToken == "" {
		return Spec{}, missing("GOOGLE_ADS_ACCESS_TOKEN")
	}

	d := dialect.Google(dialect.GoogleOptions{
		RecordsPath:     "results",
		DeveloperToken:  cfg.DeveloperToken,
		LoginCustomerID: strings.ReplaceAll(cfg.LoginCustomerID, "-", ""),
	})
	date := env.reportDate(cfg.DaysOffset)
	base := strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.APIVersion

	units := func(context.Context) ([]Unit, error) {
		out := make([]Unit, 0, len(cfg.CustomerIDs))
		for _, id := range cfg.CustomerIDs {
			id = strings.ReplaceAll(id, "-", "")
			out = append(out, Unit{
				ID: id,
				Request: fetch.FetchRequest{
					URL:   base + "/customers/" + id + "/googleAds:search",
					Body:  map[string]any{"query": fmt.Sprintf(googleAdsQuery, date)},
					Token: cfg.AccessToken,
					Label: id,
				},
			})
		}
		return out, nil
	}

	return Spec{
		Name:        GoogleAdsJob,
		Table:       googleAdsTable(cfg.Table),
		Disposition: warehouse.WriteAppend,
		Fetcher:     env.fetcher(d),
		Units:       units,
		Transform:   googleAdsRows,
	}, nil
}

// googleAdsRows flattens search results. Money fields arrive in micros.
func googleAdsRows(records []fetch.Record, now time.Time) []map[string]any {
	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, map[string]any{
			"account_name":        lookup(rec, "customer", "descriptiveName"),
			"account_id":          lookup(rec, "customer", "id"),
			"campaign_id":         lookup(rec, "campaign", "id"),
			"campaign_name":       lookup(rec, "campaign", "name"),
			"date":                lookup(rec, "segments", "date"),
			"moeda":               lookup(rec, "customer", "currencyCode"),
			"budget":              micros(lookup(rec, "campaignBudget", "amountMicros")),
			"spend":               micros(lookup(rec, "metrics", "costMicros")),
			"clicks":              lookup(rec, "metrics", "clicks"),
			"cpc":                 micros(lookup(rec, "metrics", "averageCpc")),
			"impressions":         lookup(rec, "metrics", "impressions"),
			"ctr":                 lookup(rec, "metrics", "ctr"),
			"conversions":         lookup(rec, "metrics", "conversions"),
			"cost_per_conversion": micros(lookup(rec, "metrics", "costPerConversion")),
			"imported_at":         now,
		})
	}
	return rows
}
