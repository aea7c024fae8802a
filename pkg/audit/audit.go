// Package audit summarizes a job run into one execution record and appends it
// to an audit table.
package audit

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/leo-cloudarbitration/functions/pkg/logging"
	"github.com/leo-cloudarbitration/functions/pkg/warehouse"
	"github.com/rs/zerolog"
)

// UnitStatus is the outcome of one unit of work.
type UnitStatus string

const (
	StatusSuccess      UnitStatus = "success"
	StatusNoData       UnitStatus = "no_data"
	StatusAccessDenied UnitStatus = "access_denied"
	StatusError        UnitStatus = "error"
)

// Failed reports whether the status counts against the run.
func (s UnitStatus) Failed() bool {
	return s == StatusAccessDenied || s == StatusError
}

// rank orders statuses when several units roll up into one group.
func (s UnitStatus) rank() int {
	switch s {
	case StatusError:
		return 3
	case StatusAccessDenied:
		return 2
	case StatusSuccess:
		return 1
	default:
		return 0
	}
}

// UnitReport is the result of one unit (one account under one token).
type UnitReport struct {
	Unit     string
	Group    string
	Records  int
	Duration time.Duration
	Status   UnitStatus
	Err      error
}

// Execution is one row of the audit table.
type Execution struct {
	ID               string
	Timestamp        time.Time
	Script           string
	TotalGroups      int
	SuccessfulGroups int
	FailedGroups     int
	NoDataGroups     int
	TotalRecords     int64
	ElapsedSeconds   float64
	Status           string
	ErrorSummary     string
}

// Summarize rolls unit reports up by group. A group takes the worst status of
// its units (error, then access_denied, then success, then no_data). The run is
// "success" unless some group was denied access or failed.
func Summarize(script string, reports []UnitReport, elapsed time.Duration, now time.Time) Execution {
	groups := make(map[string]UnitStatus)
	var order []string
	var records int64

	for _, r := range reports {
		records += int64(r.Records)

		name := r.Group
		if name == "" {
			name = r.Unit
		}
		prev, seen := groups[name]
		if !seen {
			order = append(order, name)
			groups[name] = r.Status
			continue
		}
		if r.Status.rank() > prev.rank() {
			groups[name] = r.Status
		}
	}
	sort.Strings(order)

	exec := Execution{
		ID:             now.Format("20060102_150405"),
		Timestamp:      now,
		Script:         script,
		TotalGroups:    len(order),
		TotalRecords:   records,
		ElapsedSeconds: elapsed.Seconds(),
		Status:         string(StatusSuccess),
	}

	var denied, failed []string
	for _, name := range order {
		switch groups[name] {
		case StatusSuccess:
			exec.SuccessfulGroups++
		case StatusNoData:
			exec.NoDataGroups++
		case StatusAccessDenied:
			denied = append(denied, name)
		case StatusError:
			failed = append(failed, name)
		}
	}
	exec.FailedGroups = len(denied) + len(failed)

	var parts []string
	if len(denied) > 0 {
		parts = append(parts, "Access denied: "+strings.Join(denied, ", "))
	}
	if len(failed) > 0 {
		parts = append(parts, "Errors: "+strings.Join(failed, ", "))
	}
	if exec.FailedGroups > 0 {
		exec.Status = string(StatusError)
		exec.ErrorSummary = strings.Join(parts, "; ")
	}

	return exec
}

// Table returns the audit table definition.
func Table(name string) warehouse.Table {
	return warehouse.Table{
		Name: name,
		Schema: warehouse.Schema{
			{Name: "execution_id", Type: warehouse.TypeString},
			{Name: "execution_timestamp", Type: warehouse.TypeTimestamp},
			{Name: "script_name", Type: warehouse.TypeString},
			{Name: "total_groups", Type: warehouse.TypeInteger},
			{Name: "successful_groups", Type: warehouse.TypeInteger},
			{Name: "failed_groups", Type: warehouse.TypeInteger},
			{Name: "no_data_groups", Type: warehouse.TypeInteger},
			{Name: "total_records", Type: warehouse.TypeInteger},
			{Name: "execution_time_seconds", Type: warehouse.TypeFloat},
			{Name: "status", Type: warehouse.TypeString},
			{Name: "error_summary", Type: warehouse.TypeString},
		},
	}
}

// Row converts the execution into a row of Table. An empty error summary is NULL.
func (e Execution) Row() warehouse.Row {
	var summary any
	if e.ErrorSummary != "" {
		summary = e.ErrorSummary
	}
	return warehouse.Row{
		e.ID,
		e.Timestamp,
		e.Script,
		int64(e.TotalGroups),
		int64(e.SuccessfulGroups),
		int64(e.FailedGroups),
		int64(e.NoDataGroups),
		e.TotalRecords,
		e.ElapsedSeconds,
		e.Status,
		summary,
	}
}

// Recorder appends executions to the audit table.
type Recorder struct {
	sink   warehouse.Sink
	table  warehouse.Table
	logger zerolog.Logger
}

// NewRecorder creates a recorder writing to tableName through sink.
func NewRecorder(sink warehouse.Sink, tableName string) *Recorder {
	return &Recorder{
		sink:   sink,
		table:  Table(tableName),
		logger: logging.NewLogger("audit"),
	}
}

// Record appends exec. Failures are logged and never returned: the audit row
// must not fail a run that already loaded its data.
func (r *Recorder) Record(ctx context.Context, exec Execution) {
	if err := warehouse.EnsureTable(ctx, r.sink, r.table); err != nil {
		r.logger.Error().Err(err).Str("table", r.table.Name).Msg("Failed to ensure audit table")
		return
	}

	if _, err := r.sink.Load(ctx, r.table, []warehouse.Row{exec.Row()}, warehouse.WriteAppend); err != nil {
		r.logger.Error().Err(err).Str("execution_id", exec.ID).Msg("Failed to record execution")
		return
	}

	r.logger.Info().
		Str("execution_id", exec.ID).
		Str("script", exec.Script).
		Str("status", exec.Status).
		Int("total_groups", exec.TotalGroups).
		Int("failed_groups", exec.FailedGroups).
		Int64("total_records", exec.TotalRecords).
		Msg("Execution recorded")
}
