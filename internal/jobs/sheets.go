package jobs

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/leo-cloudarbitration/functions/internal/config"
	"github.com/leo-cloudarbitration/functions/pkg/fetch"
	"github.com/leo-cloudarbitration/functions/pkg/fetch/dialect"
	"github.com/leo-cloudarbitration/functions/pkg/warehouse"
)

// SheetsCurrencyJob is the ad account currency job.
const SheetsCurrencyJob = "sheets-currency"

func currencyTable(name string) warehouse.Table {
	return warehouse.Table{
		Name: name,
		Schema: warehouse.Schema{
			{Name: "account_id", Type: warehouse.TypeString},
			{Name: "account_name", Type: warehouse.TypeString},
			{Name: "currency", Type: warehouse.TypeString},
			{Name: "imported_at", Type: warehouse.TypeTimestamp},
		},
	}
}

// SheetsCurrency builds the currency job from one sheet range.
func SheetsCurrency(env *Env) (Spec, error) {
	cfg := env.Config.Sheets
	if cfg.SheetID == "" {
		return Spec{}, missing("SHEET_ID")
	}
	src := config.SheetSource{SheetID: cfg.SheetID, Range: cfg.Range, Table: cfg.Table}
	return sheetSpec(env, SheetsCurrencyJob, src, currencyTable(cfg.Table), currencyRows)
}

// sheetSpec builds a job loading one sheet range into a truncated table.
func sheetSpec(env *Env, name string, src config.SheetSource, table warehouse.Table, transform func([]fetch.Record, time.Time) []map[string]any) (Spec, error) {
	cfg := env.Config.Sheets
	if cfg.AccessToken == "" {
		return Spec{}, missing("SHEETS_ACCESS_TOKEN")
	}

	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/v4/spreadsheets/" + url.PathEscape(src.SheetID) +
		"/values/" + url.PathEscape(src.Range)

	units := func(context.Context) ([]Unit, error) {
		return []Unit{{
			ID: src.Range,
			Request: fetch.FetchRequest{
				URL:   endpoint,
				Token: cfg.AccessToken,
				Label: src.Range,
			},
		}}, nil
	}

	return Spec{
		Name:        name,
		Table:       table,
		Disposition: warehouse.WriteTruncate,
		Fetcher:     env.fetcher(dialect.Google(dialect.GoogleOptions{RecordsPath: "values"})),
		Units:       units,
		Transform:   transform,
	}, nil
}

// sheetRecords maps every row after the first to the header names.
func sheetRecords(records []fetch.Record) []map[string]string {
	if len(records) == 0 {
		return nil
	}
	header := cells(records[0])

	out := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		values := cells(rec)
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(values) {
				row[strings.TrimSpace(name)] = values[i]
			}
		}
		out = append(out, row)
	}
	return out
}

// currencyRows keeps rows with both an account id and a currency.
func currencyRows(records []fetch.Record, now time.Time) []map[string]any {
	var rows []map[string]any
	for _, row := range sheetRecords(records) {
		accountID := cleanID(row["account_id"])
		currency := strings.ToUpper(strings.TrimSpace(row["currency"]))
		if accountID == "" || currency == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"account_id":   accountID,
			"account_name": strings.TrimSpace(row["account_name"]),
			"currency":     currency,
			"imported_at":  now,
		})
	}
	return rows
}

func cells(rec fetch.Record) []string {
	raw, _ := rec["row"].([]any)
	out := make([]string, len(raw))
	for i, v := range raw {
		out[i] = stringOf(v)
	}
	return out
}
