// Package fetch provides the rate-limited paginated fetcher shared by every ETL job:
// courtesy delay, provider-specific error classification, backoff and cursor following.
package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/leo-cloudarbitration/functions/pkg/logging"
	"github.com/leo-cloudarbitration/functions/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

const userAgent = "leo-etl/1.0"

// Prometheus metrics for fetch operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_fetch_requests_total",
		Help: "Total HTTP requests by provider and status",
	}, []string{"provider", "status"})

	fetchRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "etl_fetch_request_duration_seconds",
		Help:    "HTTP request duration in seconds by provider",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider"})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_fetch_errors_total",
		Help: "Total classified errors by provider and kind",
	}, []string{"provider", "kind"})

	fetchPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_fetch_pages_total",
		Help: "Total pages accepted by provider",
	}, []string{"provider"})

	fetchRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_fetch_records_total",
		Help: "Total records accumulated by provider",
	}, []string{"provider"})

	fetchOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_fetch_outcomes_total",
		Help: "Total FetchAll outcomes by provider and status",
	}, []string{"provider", "status"})
)

// Status is the tag of an Outcome.
type Status string

const (
	// StatusSuccess means the cursor chain was exhausted.
	StatusSuccess Status = "success"

	// StatusPartialFailure means at least one page succeeded before a page failed.
	StatusPartialFailure Status = "partial_failure"

	// StatusFailure means the first page failed.
	StatusFailure Status = "failure"
)

// Outcome is the result of FetchAll.
type Outcome struct {
	Status Status

	// Records holds every record of the successful page prefix, in arrival order.
	Records []Record

	// Reason is set for PartialFailure and Failure.
	Reason *PageError

	// Pages is the number of pages accepted.
	Pages int

	// Calls is the number of HTTP calls made.
	Calls int

	// RateLimitHits counts rate-limit classifications across all pages.
	RateLimitHits int
}

// Err returns Reason as an error, or nil.
func (o Outcome) Err() error {
	if o.Reason == nil {
		return nil
	}
	return o.Reason
}

// Fetcher follows one paginated resource. It is safe for concurrent use.
type Fetcher struct {
	dialect    Dialect
	policy     RetryPolicy
	httpClient *http.Client
	sleeper    Sleeper
	cooldown   ratelimit.Oracle
	pacer      *ratelimit.Pacer
	logger     zerolog.Logger
	now        func() time.Time
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithPolicy sets the retry policy.
func WithPolicy(p RetryPolicy) Option {
	return func(f *Fetcher) { f.policy = p }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithSleeper replaces the real sleeper (tests record sleeps instead).
func WithSleeper(s Sleeper) Option {
	return func(f *Fetcher) { f.sleeper = s }
}

// WithCooldown records rate-limit hits in oracle and logs recent ones.
func WithCooldown(oracle ratelimit.Oracle) Option {
	return func(f *Fetcher) { f.cooldown = oracle }
}

// WithPacer waits on a shared pacer before every attempt.
func WithPacer(p *ratelimit.Pacer) Option {
	return func(f *Fetcher) { f.pacer = p }
}

// WithLogger sets the logger. The provider field is added.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// New creates a fetcher for the given dialect.
func New(dialect Dialect, opts ...Option) *Fetcher {
	f := &Fetcher{
		dialect:    dialect,
		policy:     DefaultRetryPolicy(),
		httpClient: &http.Client{},
		sleeper:    ContextSleeper{},
		logger:     logging.NewLogger("fetcher"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}

	f.policy = f.policy.normalized()
	f.logger = f.logger.With().Str("provider", dialect.Name).Logger()

	return f
}

// Policy returns the effective retry policy.
func (f *Fetcher) Policy() RetryPolicy {
	return f.policy
}

// FetchAll follows the cursor chain of req until it is exhausted or a page fails.
// It never returns an error: failures are reported through the Outcome.
func (f *Fetcher) FetchAll(ctx context.Context, req FetchRequest) Outcome {
	logger := f.logger.With().Str("unit", req.Label).Logger()

	var out Outcome
	if err := f.validate(req); err != nil {
		out.Status = StatusFailure
		out.Reason = &PageError{Provider: f.dialect.Name, Kind: KindFatalBadRequest, Message: "invalid request", Err: err}
		logger.Error().Err(err).Msg("Invalid fetch request")
		fetchOutcomesTotal.WithLabelValues(f.dialect.Name, string(out.Status)).Inc()
		return out
	}

	cursor := ""
	for pageIndex := 0; ; pageIndex++ {
		pageSize := f.dialect.pageSize(pageIndex, req.PageSize)

		page, state, calls, perr := f.fetchPage(ctx, logger, req, cursor, pageSize)
		out.Calls += calls
		out.RateLimitHits += state.RateLimitHits

		if perr != nil {
			out.Reason = perr
			if out.Pages == 0 {
				out.Status = StatusFailure
			} else {
				out.Status = StatusPartialFailure
			}

			logger.Error().
				Str("status", string(out.Status)).
				Str("error_kind", string(perr.Kind)).
				Int("page", pageIndex).
				Int("records", len(out.Records)).
				Int("calls", out.Calls).
				Err(perr).
				Msg("Pagination stopped on failed page")
			break
		}

		out.Pages++
		out.Records = append(out.Records, page.Records...)
		fetchPagesTotal.WithLabelValues(f.dialect.Name).Inc()
		fetchRecordsTotal.WithLabelValues(f.dialect.Name).Add(float64(len(page.Records)))

		logger.Debug().
			Int("page", pageIndex).
			Int("page_size", pageSize).
			Int("records", len(page.Records)).
			Bool("has_next", page.NextCursor != "").
			Msg("Page accepted")

		if page.NextCursor == "" {
			out.Status = StatusSuccess
			break
		}
		if page.NextCursor == cursor {
			logger.Warn().
				Str("cursor", cursor).
				Int("page", pageIndex).
				Msg("Provider returned the cursor just requested, stopping pagination")
			out.Status = StatusSuccess
			break
		}
		cursor = page.NextCursor
	}

	fetchOutcomesTotal.WithLabelValues(f.dialect.Name, string(out.Status)).Inc()

	logger.Info().
		Str("status", string(out.Status)).
		Int("pages", out.Pages).
		Int("records", len(out.Records)).
		Int("calls", out.Calls).
		Msg("Fetch finished")

	return out
}

// FetchPage fetches a single page with courtesy delay, classification and backoff.
func (f *Fetcher) FetchPage(ctx context.Context, req FetchRequest, cursor string, pageSize int) (Page, *PageError) {
	logger := f.logger.With().Str("unit", req.Label).Logger()
	page, _, _, perr := f.fetchPage(ctx, logger, req, cursor, pageSize)
	return page, perr
}

func (f *Fetcher) fetchPage(ctx context.Context, logger zerolog.Logger, req FetchRequest, cursor string, pageSize int) (Page, RetryState, int, *PageError) {
	var state RetryState
	calls := 0

	f.logCooldownHint(ctx, logger)

	var last *PageError
	for state.Attempt = 0; state.Attempt < f.policy.MaxAttempts; state.Attempt++ {
		if err := f.sleep(ctx, f.policy.CourtesyDelay); err != nil {
			return Page{}, state, calls, f.cancelled(err, state, cursor)
		}
		if err := f.pacer.Wait(ctx); err != nil {
			return Page{}, state, calls, f.cancelled(err, state, cursor)
		}

		calls++
		page, perr := f.attempt(ctx, logger, req, cursor, pageSize)
		if perr == nil {
			if state.Attempt > 0 {
				logger.Info().
					Int("attempt", state.Attempt+1).
					Str("cursor", cursor).
					Msg("Page succeeded after retry")
			}
			return page, state, calls, nil
		}

		perr.Attempts = state.Attempt + 1
		perr.Cursor = cursor
		last = perr
		fetchErrorsTotal.WithLabelValues(f.dialect.Name, string(perr.Kind)).Inc()

		if perr.Kind == KindRateLimit {
			state.RateLimitHits++
			f.recordHit(ctx, logger)
		}

		if !perr.Kind.Retryable() {
			logger.Error().
				Str("error_kind", string(perr.Kind)).
				Int("status", perr.StatusCode).
				Int("attempt", perr.Attempts).
				Str("cursor", cursor).
				Str("message", perr.Message).
				Msg("Non-retryable error, giving up on page")
			return Page{}, state, calls, perr
		}

		if state.Attempt+1 >= f.policy.MaxAttempts {
			break
		}

		state.NextDelay = f.policy.Backoff(perr.Kind, state.Attempt)
		fetchRetriesTotal.WithLabelValues(f.dialect.Name, string(perr.Kind)).Inc()
		fetchRetryBackoffSeconds.WithLabelValues(f.dialect.Name, string(perr.Kind)).Observe(state.NextDelay.Seconds())

		logger.Warn().
			Str("error_kind", string(perr.Kind)).
			Int("status", perr.StatusCode).
			Int("attempt", perr.Attempts).
			Int("max_attempts", f.policy.MaxAttempts).
			Dur("backoff", state.NextDelay).
			Str("message", perr.Message).
			Msg("Retrying page after backoff")

		if err := f.sleep(ctx, state.NextDelay); err != nil {
			return Page{}, state, calls, f.cancelled(err, state, cursor)
		}
	}

	fetchRetryExhaustedTotal.WithLabelValues(f.dialect.Name, string(last.Kind)).Inc()
	logger.Error().
		Str("error_kind", string(last.Kind)).
		Int("max_attempts", f.policy.MaxAttempts).
		Str("cursor", cursor).
		Msg("Retry attempts exhausted")

	return Page{}, state, calls, last
}

// attempt performs one HTTP call and classifies its result.
func (f *Fetcher) attempt(ctx context.Context, logger zerolog.Logger, req FetchRequest, cursor string, pageSize int) (Page, *PageError) {
	reqCtx, cancel := context.WithTimeout(ctx, f.policy.RequestTimeout)
	defer cancel()

	httpReq, err := f.newHTTPRequest(reqCtx, req, cursor, pageSize)
	if err != nil {
		return Page{}, &PageError{Provider: f.dialect.Name, Kind: KindFatalBadRequest, Message: "build request", Err: err}
	}

	logger.Debug().
		Str("method", httpReq.Method).
		Str("path", httpReq.URL.Path).
		Str("cursor", cursor).
		Int("page_size", pageSize).
		Msg("Executing request")

	start := time.Now()
	resp, err := f.httpClient.Do(httpReq)
	fetchRequestDuration.WithLabelValues(f.dialect.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		kind := f.classifyTransport(ctx, err)
		fetchRequestsTotal.WithLabelValues(f.dialect.Name, string(kind)).Inc()
		return Page{}, &PageError{Provider: f.dialect.Name, Kind: kind, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		kind := f.classifyTransport(ctx, err)
		fetchRequestsTotal.WithLabelValues(f.dialect.Name, string(kind)).Inc()
		return Page{}, &PageError{Provider: f.dialect.Name, Kind: kind, StatusCode: resp.StatusCode, Message: "read body", Err: err}
	}

	fetchRequestsTotal.WithLabelValues(f.dialect.Name, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		page, err := f.dialect.Decode(body, cursor, pageSize)
		if err != nil {
			return Page{}, &PageError{
				Provider:   f.dialect.Name,
				Kind:       KindDecode,
				StatusCode: resp.StatusCode,
				Message:    "decode page",
				Err:        err,
			}
		}
		return page, nil
	}

	detail := f.dialect.describe(body)
	return Page{}, &PageError{
		Provider:   f.dialect.Name,
		Kind:       f.dialect.classify(resp.StatusCode, body),
		StatusCode: resp.StatusCode,
		Code:       detail.Code,
		Subcode:    detail.Subcode,
		Message:    detail.Message,
	}
}

// classifyTransport separates caller cancellation from timeouts and connection errors.
func (f *Fetcher) classifyTransport(ctx context.Context, err error) ErrorKind {
	if ctx.Err() != nil {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetworkTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindNetworkTimeout
	}
	return KindNetwork
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return f.sleeper.Sleep(ctx, d)
}

func (f *Fetcher) cancelled(err error, state RetryState, cursor string) *PageError {
	return &PageError{
		Provider: f.dialect.Name,
		Kind:     KindCancelled,
		Message:  "context done",
		Attempts: state.Attempt,
		Cursor:   cursor,
		Err:      err,
	}
}

// recordHit stores a rate-limit hit. Oracle failures are logged only.
func (f *Fetcher) recordHit(ctx context.Context, logger zerolog.Logger) {
	if f.cooldown == nil {
		return
	}
	if err := f.cooldown.RecordHit(ctx, f.dialect.Name, f.now()); err != nil {
		logger.Warn().Err(err).Msg("Failed to record rate limit hit")
	}
}

// logCooldownHint logs a recent rate-limit hit. It never delays the request.
func (f *Fetcher) logCooldownHint(ctx context.Context, logger zerolog.Logger) {
	if f.cooldown == nil {
		return
	}
	state, err := f.cooldown.State(ctx, f.dialect.Name)
	if err != nil {
		logger.Debug().Err(err).Msg("Cooldown state unavailable")
		return
	}
	now := f.now()
	if state.Active(now) {
		logger.Warn().
			Dur("since_last_hit", state.Since(now)).
			Dur("remaining", state.Remaining(now)).
			Msg("Provider rate limited recently")
	}
}
