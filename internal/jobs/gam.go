package jobs

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/leo-cloudarbitration/functions/pkg/fetch"
	"github.com/leo-cloudarbitration/functions/pkg/fetch/dialect"
	"github.com/leo-cloudarbitration/functions/pkg/warehouse"
)

// GAMKVPJob is the GAM key-value report job.
const GAMKVPJob = "gam-kvp"

func gamTable(name string) warehouse.Table {
	return warehouse.Table{
		Name: name,
		Schema: warehouse.Schema{
			{Name: "date", Type: warehouse.TypeDate},
			{Name: "network_id", Type: warehouse.TypeString},
			{Name: "site_name", Type: warehouse.TypeString},
			{Name: "key", Type: warehouse.TypeString},
			{Name: "value", Type: warehouse.TypeString},
			{Name: "impressions", Type: warehouse.TypeInteger},
			{Name: "clicks", Type: warehouse.TypeInteger},
			{Name: "ctr", Type: warehouse.TypeFloat},
			{Name: "revenue", Type: warehouse.TypeFloat},
			{Name: "ecpm", Type: warehouse.TypeFloat},
			{Name: "match_rate", Type: warehouse.TypeFloat},
			{Name: "imported_at", Type: warehouse.TypeTimestamp},
		},
	}
}

// GAMKVP builds the GAM key-value job: one unit per (network, site).
func GAMKVP(env *Env) (Spec, error) {
	cfg := env.Config.GAM
	if len(cfg.Sites) == 0 {
		return Spec{}, missing("GAM_SITES")
	}
	if cfg.Token == "" {
		return Spec{}, missing("GAM_API_TOKEN")
	}

	date := env.reportDate(cfg.DaysOffset)
	base := strings.TrimRight(cfg.BaseURL, "/")

	units := func(context.Context) ([]Unit, error) {
		out := make([]Unit, 0, len(cfg.Sites))
		for _, s := range cfg.Sites {
			query := url.Values{}
			query.Set("start_date", date)
			query.Set("end_date", date)
			query.Set("key", cfg.Key)

			out = append(out, Unit{
				ID:    s.Site,
				Group: s.NetworkID,
				Request: fetch.FetchRequest{
					URL:   base + "/report/kvp/" + url.PathEscape(s.NetworkID) + "/" + url.PathEscape(s.Site) + "/from-gam",
					Query: query,
					Token: cfg.Token,
					Label: s.Site,
				},
				Annotate: map[string]any{"network_id": s.NetworkID, "site": s.Site},
			})
		}
		return out, nil
	}

	return Spec{
		Name:        GAMKVPJob,
		Table:       gamTable(cfg.Table),
		Disposition: warehouse.WriteAppend,
		Fetcher:     env.fetcher(dialect.GAM()),
		Units:       units,
		Transform: func(records []fetch.Record, now time.Time) []map[string]any {
			return aggregateKVP(records, cfg.Key, date, now)
		},
	}, nil
}

type kvpKey struct {
	network, site, key, value string
}

type kvpAggregate struct {
	impressions int64
	clicks      int64
	revenue     float64
	ctrSum      float64
	ecpmSum     float64
	matchSum    float64
	weight      int64
}

// aggregateKVP sums records by (network, site, key, value). CTR, eCPM and match
// rate are impression-weighted means; revenue micros become units. Only rows
// whose key equals keep survive.
func aggregateKVP(records []fetch.Record, keep, date string, now time.Time) []map[string]any {
	groups := make(map[kvpKey]*kvpAggregate)
	var order []kvpKey

	for _, rec := range records {
		k := kvpKey{
			network: stringOf(rec["network_id"]),
			site:    stringOf(rec["site"]),
			key:     stringOf(rec["key"]),
			value:   stringOf(rec["value"]),
		}
		if k.key != keep {
			continue
		}

		impressions := intOf(rec["ad_exchange_line_item_level_impressions"])
		revenueMicros := floatOf(rec["ad_exchange_line_item_level_revenue"])
		var ecpm, matchRate float64
		if impressions > 0 {
			ecpm = revenueMicros / float64(impressions) / 1_000
			matchRate = floatOf(rec["ad_exchange_active_view_viewable_impressions"]) / float64(impressions)
		}

		agg, ok := groups[k]
		if !ok {
			agg = &kvpAggregate{}
			groups[k] = agg
			order = append(order, k)
		}
		agg.impressions += impressions
		agg.clicks += intOf(rec["ad_exchange_line_item_level_clicks"])
		agg.revenue += revenueMicros / 1e6
		agg.ctrSum += floatOf(rec["ad_exchange_line_item_level_ctr"]) * float64(impressions)
		agg.ecpmSum += ecpm * float64(impressions)
		agg.matchSum += matchRate * float64(impressions)
		agg.weight += impressions
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.network != b.network {
			return a.network < b.network
		}
		if a.site != b.site {
			return a.site < b.site
		}
		if a.key != b.key {
			return a.key < b.key
		}
		return a.value < b.value
	})

	rows := make([]map[string]any, 0, len(order))
	for _, k := range order {
		agg := groups[k]
		row := map[string]any{
			"date":        date,
			"network_id":  k.network,
			"site_name":   k.site,
			"key":         k.key,
			"value":       k.value,
			"impressions": agg.impressions,
			"clicks":      agg.clicks,
			"revenue":     agg.revenue,
			"ctr":         0.0,
			"ecpm":        0.0,
			"match_rate":  0.0,
			"imported_at": now,
		}
		if agg.weight > 0 {
			w := float64(agg.weight)
			row["ctr"] = agg.ctrSum / w
			row["ecpm"] = agg.ecpmSum / w
			row["match_rate"] = agg.matchSum / w
		}
		rows = append(rows, row)
	}
	return rows
}
