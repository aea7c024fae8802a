// Package jobs holds the ETL pipelines and the runner that drives them: units
// are fetched through the scheduler, their records mapped and loaded into the
// warehouse, and the run is summarized into the audit table.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leo-cloudarbitration/functions/pkg/audit"
	"github.com/leo-cloudarbitration/functions/pkg/fetch"
	"github.com/leo-cloudarbitration/functions/pkg/logging"
	"github.com/leo-cloudarbitration/functions/pkg/metrics"
	"github.com/leo-cloudarbitration/functions/pkg/scheduler"
	"github.com/leo-cloudarbitration/functions/pkg/warehouse"
	"github.com/rs/zerolog"
)

var (
	// ErrJobFailed is returned when every unit failed or the load failed.
	ErrJobFailed = errors.New("job failed")

	// ErrUnknownJob is returned by Build for unregistered names.
	ErrUnknownJob = errors.New("unknown job")

	// ErrMissingConfig is returned by builders when a required setting is empty.
	ErrMissingConfig = errors.New("missing configuration")
)

// Unit is one independently fetched resource, usually one account under one token.
type Unit struct {
	ID      string
	Group   string
	Request fetch.FetchRequest

	// Annotate is merged into every record of the unit.
	Annotate map[string]any

	// Denied skips the fetch and reports the unit as access_denied.
	Denied *fetch.PageError
}

// Spec describes one job.
type Spec struct {
	Name        string
	Table       warehouse.Table
	Disposition warehouse.WriteDisposition
	Fetcher     *fetch.Fetcher

	// UnitDelay is slept before each unit starts.
	UnitDelay time.Duration

	// ClearOnEmpty truncates the table when the run produced no rows and at
	// least one unit succeeded.
	ClearOnEmpty bool

	// ClearOnTotalFailure truncates the table when every unit failed and no rows remain.
	ClearOnTotalFailure bool

	Units func(ctx context.Context) ([]Unit, error)

	// Transform maps all fetched records to rows keyed by column name.
	// Nil means DefaultTransform.
	Transform func(records []fetch.Record, now time.Time) []map[string]any
}

// Result summarizes one run.
type Result struct {
	Job       string
	Execution audit.Execution
	Reports   []audit.UnitReport
	Rows      int64
	Cleared   bool
	Failed    bool
}

// Err returns ErrJobFailed when the run failed.
func (r Result) Err() error {
	if !r.Failed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrJobFailed, r.Job)
}

// Runner executes job specs.
type Runner struct {
	sink     warehouse.Sink
	recorder *audit.Recorder
	sched    scheduler.Config
	loc      *time.Location
	sleeper  fetch.Sleeper
	pushURL  string
	dryRun   bool
	now      func() time.Time
	logger   zerolog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithScheduler sets the concurrency configuration.
func WithScheduler(cfg scheduler.Config) RunnerOption {
	return func(r *Runner) {
		r.sched = cfg
	}
}

// WithLocation sets the zone used for imported_at and execution ids.
func WithLocation(loc *time.Location) RunnerOption {
	return func(r *Runner) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithUnitSleeper replaces the sleeper used for unit delays.
func WithUnitSleeper(s fetch.Sleeper) RunnerOption {
	return func(r *Runner) {
		r.sleeper = s
	}
}

// WithPushgateway pushes metrics to url at the end of each run.
func WithPushgateway(url string) RunnerOption {
	return func(r *Runner) {
		r.pushURL = url
	}
}

// WithDryRun fetches and maps but neither loads nor audits.
func WithDryRun(dryRun bool) RunnerOption {
	return func(r *Runner) {
		r.dryRun = dryRun
	}
}

// WithAuditTable sets the audit table name.
func WithAuditTable(name string) RunnerOption {
	return func(r *Runner) {
		r.recorder = audit.NewRecorder(r.sink, name)
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a runner loading into sink.
func NewRunner(sink warehouse.Sink, opts ...RunnerOption) *Runner {
	r := &Runner{
		sink:    sink,
		sched:   scheduler.DefaultConfig(),
		loc:     time.UTC,
		sleeper: fetch.ContextSleeper{},
		now:     time.Now,
		logger:  logging.NewLogger("runner"),
	}
	r.recorder = audit.NewRecorder(sink, "etl_executions")
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type unitResult struct {
	report  audit.UnitReport
	records []fetch.Record
}

// Run executes spec. Unit failures never abort siblings: they are reported in
// the result and the audit row. The returned error is non-nil when units could
// not be built, when the load failed, or when every unit failed.
func (r *Runner) Run(ctx context.Context, spec Spec) (Result, error) {
	start := r.now()
	logger := r.logger.With().Str("job", spec.Name).Logger()

	if err := spec.Table.Schema.Validate(); err != nil {
		return Result{Job: spec.Name, Failed: true}, fmt.Errorf("job %s: %w", spec.Name, err)
	}

	units, err := spec.Units(ctx)
	if err != nil {
		return Result{Job: spec.Name, Failed: true}, fmt.Errorf("job %s: build units: %w", spec.Name, err)
	}
	logger.Info().Int("units", len(units)).Str("table", spec.Table.Name).Msg("Job started")

	unitResults := r.fetchUnits(ctx, spec, units)

	result := Result{Job: spec.Name}
	var records []fetch.Record
	for _, ur := range unitResults {
		result.Reports = append(result.Reports, ur.report)
		records = append(records, ur.records...)
	}
	result.Failed = allFailed(result.Reports)

	now := r.now().In(r.loc)
	transform := spec.Transform
	if transform == nil {
		transform = DefaultTransform
	}
	rows := warehouse.Coerce(spec.Table.Schema, transform(records, now))
	result.Rows = int64(len(rows))

	var loadErr error
	if r.dryRun {
		logger.Info().Int("rows", len(rows)).Msg("Dry run, skipping load")
	} else {
		result.Cleared, loadErr = r.load(ctx, logger, spec, rows, result.Failed)
	}

	exec := audit.Summarize(spec.Name, result.Reports, r.now().Sub(start), now)
	if loadErr != nil {
		result.Failed = true
		exec.Status = string(audit.StatusError)
		exec.ErrorSummary = joinSummary(exec.ErrorSummary, "Load failed: "+loadErr.Error())
	}
	result.Execution = exec

	if !r.dryRun {
		r.recorder.Record(ctx, exec)
	}

	metrics.MarkCompleted(spec.Name, exec.Status, now)
	if err := metrics.Push(ctx, r.pushURL, spec.Name); err != nil {
		logger.Warn().Err(err).Msg("Failed to push metrics")
	}

	event := logger.Info()
	if result.Failed {
		event = logger.Error()
	}
	event.
		Str("status", exec.Status).
		Int("units", len(result.Reports)).
		Int("failed_groups", exec.FailedGroups).
		Int64("rows", result.Rows).
		Bool("cleared", result.Cleared).
		Dur("elapsed", r.now().Sub(start)).
		Msg("Job finished")

	if loadErr != nil {
		return result, fmt.Errorf("job %s: %w", spec.Name, loadErr)
	}
	return result, result.Err()
}

// fetchUnits runs every unit through the scheduler and returns results in unit order.
func (r *Runner) fetchUnits(ctx context.Context, spec Spec, units []Unit) []unitResult {
	tasks := make([]scheduler.Task[unitResult], len(units))
	index := make(map[string]int, len(units))
	for i, u := range units {
		id := fmt.Sprintf("%s#%d", u.ID, i)
		index[id] = i
		tasks[i] = scheduler.Task[unitResult]{
			ID: id,
			Run: func(ctx context.Context) (unitResult, error) {
				return r.runUnit(ctx, spec, u), nil
			},
		}
	}

	out := make([]unitResult, len(units))
	for _, res := range scheduler.Run(ctx, r.sched, tasks) {
		i := index[res.ID]
		if res.Err != nil {
			out[i] = unitResult{report: audit.UnitReport{
				Unit:     units[i].ID,
				Group:    units[i].Group,
				Duration: res.Duration,
				Status:   audit.StatusError,
				Err:      res.Err,
			}}
			continue
		}
		out[i] = res.Value
	}
	return out
}

func (r *Runner) runUnit(ctx context.Context, spec Spec, u Unit) unitResult {
	start := time.Now()
	logger := r.logger.With().Str("job", spec.Name).Str("unit", u.ID).Str("group", u.Group).Logger()
	report := audit.UnitReport{Unit: u.ID, Group: u.Group}

	if u.Denied != nil {
		report.Status = audit.StatusAccessDenied
		report.Err = u.Denied
		logger.Warn().Err(u.Denied).Msg("Unit skipped, access denied")
		return unitResult{report: report}
	}

	if spec.UnitDelay > 0 {
		if err := r.sleeper.Sleep(ctx, spec.UnitDelay); err != nil {
			report.Status = audit.StatusError
			report.Err = err
			report.Duration = time.Since(start)
			return unitResult{report: report}
		}
	}

	outcome := spec.Fetcher.FetchAll(ctx, u.Request)
	for _, rec := range outcome.Records {
		for k, v := range u.Annotate {
			rec[k] = v
		}
	}

	report.Records = len(outcome.Records)
	report.Status = UnitStatus(outcome)
	report.Err = outcome.Err()
	report.Duration = time.Since(start)

	event := logger.Info()
	if report.Status.Failed() {
		event = logger.Warn().Err(report.Err)
	}
	event.
		Str("status", string(report.Status)).
		Int("records", report.Records).
		Int("pages", outcome.Pages).
		Int("calls", outcome.Calls).
		Dur("duration", report.Duration).
		Msg("Unit finished")

	return unitResult{report: report, records: outcome.Records}
}

// load writes rows, or clears the table when the run produced none and the spec asks for it.
func (r *Runner) load(ctx context.Context, logger zerolog.Logger, spec Spec, rows []warehouse.Row, failed bool) (bool, error) {
	if err := warehouse.EnsureTable(ctx, r.sink, spec.Table); err != nil {
		return false, fmt.Errorf("ensure table %s: %w", spec.Table.Name, err)
	}

	if len(rows) == 0 {
		truncate := (spec.ClearOnEmpty && !failed) || (spec.ClearOnTotalFailure && failed)
		if !truncate {
			logger.Warn().Str("table", spec.Table.Name).Msg("No rows to load")
			return false, nil
		}
		if _, err := r.sink.Load(ctx, spec.Table, nil, warehouse.WriteTruncate); err != nil {
			return false, fmt.Errorf("clear table %s: %w", spec.Table.Name, err)
		}
		logger.Warn().Str("table", spec.Table.Name).Msg("Table cleared")
		return true, nil
	}

	n, err := r.sink.Load(ctx, spec.Table, rows, spec.Disposition)
	if err != nil {
		return false, fmt.Errorf("load table %s: %w", spec.Table.Name, err)
	}
	logger.Info().
		Str("table", spec.Table.Name).
		Str("disposition", string(spec.Disposition)).
		Int64("rows", n).
		Msg("Rows loaded")
	return false, nil
}

// UnitStatus maps a fetch outcome to the audit status of its unit.
// A partial failure is an error even though its records are kept.
func UnitStatus(out fetch.Outcome) audit.UnitStatus {
	switch out.Status {
	case fetch.StatusSuccess:
		if len(out.Records) == 0 {
			return audit.StatusNoData
		}
		return audit.StatusSuccess
	case fetch.StatusFailure:
		if out.Reason != nil &&
			(out.Reason.Kind == fetch.KindFatalAuthOrNotFound || out.Reason.Kind == fetch.KindFatalPermission) {
			return audit.StatusAccessDenied
		}
		return audit.StatusError
	default:
		return audit.StatusError
	}
}

// DefaultTransform copies every record and stamps imported_at.
func DefaultTransform(records []fetch.Record, now time.Time) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row := make(map[string]any, len(rec)+1)
		for k, v := range rec {
			row[k] = v
		}
		row["imported_at"] = now
		out = append(out, row)
	}
	return out
}

func allFailed(reports []audit.UnitReport) bool {
	if len(reports) == 0 {
		return false
	}
	for _, r := range reports {
		if !r.Status.Failed() {
			return false
		}
	}
	return true
}

func joinSummary(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "; "
		}
		out += p
	}
	return out
}
