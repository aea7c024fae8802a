package jobs

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/leo-cloudarbitration/functions/pkg/fetch"
	"github.com/leo-cloudarbitration/functions/pkg/warehouse"
)

// Helper sync jobs: small reference tables copied as a whole on every run.
const (
	CreativeMappingJob = "supabase-creative-mapping"
	AdxFeeJob          = "sheets-adxfee"
	PagesPerHourJob    = "sheets-pages-per-hour"
)

func creativeMappingTable(name string) warehouse.Table {
	return warehouse.Table{
		Name: name,
		Schema: warehouse.Schema{
			{Name: "id", Type: warehouse.TypeString},
			{Name: "creative_id", Type: warehouse.TypeString},
			{Name: "creative_name", Type: warehouse.TypeString},
			{Name: "campaign_id", Type: warehouse.TypeString},
			{Name: "campaign_name", Type: warehouse.TypeString},
			{Name: "ad_account_id", Type: warehouse.TypeString},
			{Name: "platform", Type: warehouse.TypeString},
			{Name: "created_at", Type: warehouse.TypeTimestamp},
			{Name: "updated_at", Type: warehouse.TypeTimestamp},
			{Name: "imported_at", Type: warehouse.TypeTimestamp},
		},
	}
}

// CreativeMapping copies the creative mapping table from Supabase.
func CreativeMapping(env *Env) (Spec, error) {
	cfg := env.Config.Supabase

	query := url.Values{}
	query.Set("select", "*")
	query.Set("order", "id.asc")

	return supabaseSpec(env, CreativeMappingJob, cfg.CreativeMappingSource, query,
		creativeMappingTable(cfg.CreativeMappingTable), creativeMappingRows)
}

func creativeMappingRows(records []fetch.Record, now time.Time) []map[string]any {
	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row := map[string]any{
			"created_at":  rec["created_at"],
			"updated_at":  rec["updated_at"],
			"imported_at": now,
		}
		for _, key := range []string{"id", "creative_id", "campaign_id", "ad_account_id"} {
			row[key] = cleanID(rec[key])
		}
		for _, key := range []string{"creative_name", "campaign_name", "platform"} {
			row[key] = strings.TrimSpace(stringOf(rec[key]))
		}
		rows = append(rows, row)
	}
	return rows
}

func adxFeeTable(name string) warehouse.Table {
	return warehouse.Table{
		Name: name,
		Schema: warehouse.Schema{
			{Name: "date", Type: warehouse.TypeDate},
			{Name: "adxfee", Type: warehouse.TypeFloat},
			{Name: "network_code", Type: warehouse.TypeString},
			{Name: "imported_at", Type: warehouse.TypeTimestamp},
		},
	}
}

// AdxFee copies the AdX fee sheet.
func AdxFee(env *Env) (Spec, error) {
	src := env.Config.Sheets.AdxFee
	if src.SheetID == "" {
		return Spec{}, missing("SHEETS_ADXFEE_SHEET_ID")
	}
	return sheetSpec(env, AdxFeeJob, src, adxFeeTable(src.Table), adxFeeRows)
}

// adxFeeRows reads the fee from "adxfee", or from "xrate" in older sheets.
// Rows without a valid date or fee are dropped.
func adxFeeRows(records []fetch.Record, now time.Time) []map[string]any {
	var rows []map[string]any
	for _, row := range sheetRecords(records) {
		date := warehouse.CoerceValue(warehouse.TypeDate, row["date"])
		if date == nil {
			continue
		}
		raw, ok := row["adxfee"]
		if !ok {
			raw = row["xrate"]
		}
		fee, ok := parseDecimal(raw)
		if !ok {
			continue
		}
		rows = append(rows, map[string]any{
			"date":         date,
			"adxfee":       fee,
			"network_code": cleanID(row["network_code"]),
			"imported_at":  now,
		})
	}
	return rows
}

// parseDecimal accepts "0.15" and the comma form "0,15".
func parseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func pagesPerHourTable(name string) warehouse.Table {
	return warehouse.Table{
		Name: name,
		Schema: warehouse.Schema{
			{Name: "url", Type: warehouse.TypeString},
			{Name: "category", Type: warehouse.TypeString},
			{Name: "category_mae", Type: warehouse.TypeString},
			{Name: "imported_at", Type: warehouse.TypeTimestamp},
		},
	}
}

// PagesPerHour copies the page category sheet.
func PagesPerHour(env *Env) (Spec, error) {
	src := env.Config.Sheets.Pages
	if src.SheetID == "" {
		return Spec{}, missing("SHEETS_PAGES_SHEET_ID")
	}
	return sheetSpec(env, PagesPerHourJob, src, pagesPerHourTable(src.Table), pagesPerHourRows)
}

func pagesPerHourRows(records []fetch.Record, now time.Time) []map[string]any {
	var rows []map[string]any
	for _, row := range sheetRecords(records) {
		u := strings.TrimSpace(row["url"])
		if u == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"url":          u,
			"category":     strings.TrimSpace(row["category"]),
			"category_mae": strings.TrimSpace(row["category_mae"]),
			"imported_at":  now,
		})
	}
	return rows
}
