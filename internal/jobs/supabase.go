package jobs

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/leo-cloudarbitration/functions/pkg/fetch"
	"github.com/leo-cloudarbitration/functions/pkg/fetch/dialect"
	"github.com/leo-cloudarbitration/functions/pkg/warehouse"
)

// SupabaseVATJob is the Supabase VAT job.
const SupabaseVATJob = "supabase-vat"

func vatTable(name string) warehouse.Table {
	return warehouse.Table{
		Name: name,
		Schema: warehouse.Schema{
			{Name: "start_date", Type: warehouse.TypeDate},
			{Name: "account_id", Type: warehouse.TypeString},
			{Name: "account_name", Type: warehouse.TypeString},
			{Name: "vat", Type: warehouse.TypeFloat},
			{Name: "imported_at", Type: warehouse.TypeTimestamp},
		},
	}
}

// SupabaseVAT builds the VAT job. The table is replaced on every run.
func SupabaseVAT(env *Env) (Spec, error) {
	query := url.Values{}
	query.Set("select", "conta_anuncio_id,conta_anuncio,vat")
	query.Set("order", "conta_anuncio_id.asc")

	return supabaseSpec(env, SupabaseVATJob, "accounts", query, vatTable(env.Config.Supabase.Table), vatRows)
}

// supabaseSpec builds a job reading one PostgREST resource into a truncated
// table. query must carry an order so offsets stay stable between pages.
func supabaseSpec(env *Env, name, resource string, query url.Values, table warehouse.Table, transform func([]fetch.Record, time.Time) []map[string]any) (Spec, error) {
	cfg := env.Config.Supabase
	if cfg.URL == "" {
		return Spec{}, missing("SUPABASE_URL")
	}
	if cfg.Key == "" {
		return Spec{}, missing("SUPABASE_KEY")
	}

	units := func(context.Context) ([]Unit, error) {
		return []Unit{{
			ID: resource,
			Request: fetch.FetchRequest{
				URL:      strings.TrimRight(cfg.URL, "/") + "/rest/v1/" + url.PathEscape(resource),
				Query:    query,
				Token:    cfg.Key,
				PageSize: cfg.PageSize,
				Label:    resource,
			},
		}}, nil
	}

	return Spec{
		Name:        name,
		Table:       table,
		Disposition: warehouse.WriteTruncate,
		Fetcher:     env.fetcher(dialect.Supabase(cfg.Key)),
		Units:       units,
		Transform:   transform,
	}, nil
}

// vatRows expands each account's vat array into one row per period. Accounts
// with no periods produce no rows; periods missing a date or rate are dropped.
func vatRows(records []fetch.Record, now time.Time) []map[string]any {
	var rows []map[string]any
	for _, rec := range records {
		accountID := cleanID(rec["conta_anuncio_id"])
		if accountID == "" {
			continue
		}
		periods, _ := rec["vat"].([]any)
		for _, p := range periods {
			period, ok := p.(map[string]any)
			if !ok || period["start_date"] == nil || period["vat"] == nil {
				continue
			}
			rows = append(rows, map[string]any{
				"start_date":   period["start_date"],
				"account_id":   accountID,
				"account_name": strings.TrimSpace(stringOf(rec["conta_anuncio"])),
				"vat":          period["vat"],
				"imported_at":  now,
			})
		}
	}
	return rows
}
