package jobs

import (
	"strings"
	"time"

	"github.com/leo-cloudarbitration/functions/internal/config"
	"github.com/leo-cloudarbitration/functions/pkg/fetch"
)

// sourceField tags records fetched by side units with the Graph edge they came from.
const sourceField = "_source"

// Graph edges fetched next to insights.
const (
	edgeCampaigns = "campaigns"
	edgeAdSets    = "adsets"
	edgeAds       = "ads"
)

// dynamicCreative replaces the creative id of every ad in a campaign that
// runs dynamic creatives.
const dynamicCreative = "dynamic_creative"

type sideEdge struct {
	edge   string
	fields string
}

func sideEdges(cfg config.FacebookConfig) []sideEdge {
	var edges []sideEdge
	if cfg.Budgets {
		edges = append(edges,
			sideEdge{edgeCampaigns, "id,name,daily_budget,lifetime_budget,stop_time,status"},
			sideEdge{edgeAdSets, "id,name,campaign_id,daily_budget"},
		)
	}
	if cfg.Creatives {
		edges = append(edges, sideEdge{edgeAds, "id,campaign_id,creative{id,name,asset_feed_spec}"})
	}
	return edges
}

type campaignBudget struct {
	daily    float64
	lifetime float64
	status   string
	endTime  any
}

// facebookRows turns insights records into rows and merges the side edges:
// campaign budgets (cents) by campaign_id, falling back to the sum of ad set
// daily budgets when the campaign has none, and creative ids by ad_id.
func facebookRows(records []fetch.Record, now time.Time) []map[string]any {
	var insights []fetch.Record
	budgets := map[string]*campaignBudget{}
	adsetDaily := map[string]float64{}
	var ads []fetch.Record

	for _, rec := range records {
		switch rec[sourceField] {
		case edgeCampaigns:
			id := cleanID(rec["id"])
			budgets[id] = &campaignBudget{
				daily:    floatOf(rec["daily_budget"]),
				lifetime: floatOf(rec["lifetime_budget"]),
				status:   stringOf(rec["status"]),
				endTime:  rec["stop_time"],
			}
		case edgeAdSets:
			adsetDaily[cleanID(rec["campaign_id"])] += floatOf(rec["daily_budget"])
		case edgeAds:
			ads = append(ads, rec)
		default:
			insights = append(insights, rec)
		}
	}
	creatives := creativeIDs(ads)

	rows := DefaultTransform(insights, now)
	for _, row := range rows {
		if hour, ok := row[hourlyBreakdown]; ok {
			row["hour"] = hour
		}

		campaignID := cleanID(row["campaign_id"])
		daily := adsetDaily[campaignID]
		if b := budgets[campaignID]; b != nil {
			if b.daily > 0 {
				daily = b.daily
			}
			row["lifetime_budget"] = b.lifetime / 100
			row["campaign_status"] = b.status
			row["campaign_end_time"] = b.endTime
		}
		row["daily_budget"] = daily / 100

		if id, ok := creatives[cleanID(row["ad_id"])]; ok {
			row["creative_id"] = id
		}
	}
	return rows
}

// creativeIDs maps ad ids to creative ids. A campaign whose first listed ad
// carries a dynamic creative maps all its ads to dynamicCreative.
func creativeIDs(ads []fetch.Record) map[string]string {
	dynamic := map[string]bool{}
	for _, ad := range ads {
		campaignID := cleanID(ad["campaign_id"])
		if _, seen := dynamic[campaignID]; seen {
			continue
		}
		creative, _ := ad["creative"].(map[string]any)
		dynamic[campaignID] = isDynamicCreative(creative)
	}

	out := make(map[string]string, len(ads))
	for _, ad := range ads {
		adID := cleanID(ad["id"])
		if dynamic[cleanID(ad["campaign_id"])] {
			out[adID] = dynamicCreative
			continue
		}
		out[adID] = cleanID(lookup(ad, "creative", "id"))
	}
	return out
}

var dynamicNameHints = []string{"dynamic", "dinâmico", "auto", "template"}

// isDynamicCreative reports whether a creative has an asset feed or a name
// marking it as dynamic.
func isDynamicCreative(creative map[string]any) bool {
	if creative == nil {
		return false
	}
	switch spec := creative["asset_feed_spec"].(type) {
	case map[string]any:
		if len(spec) > 0 {
			return true
		}
	case []any:
		if len(spec) > 0 {
			return true
		}
	case string:
		if spec != "" {
			return true
		}
	}

	name := strings.ToLower(stringOf(creative["name"]))
	for _, hint := range dynamicNameHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}
