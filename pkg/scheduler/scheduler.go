package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/leo-cloudarbitration/functions/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for scheduled units.
var (
	unitsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "etl_scheduler_units_started_total",
		Help: "Total units of work started",
	})

	unitsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_scheduler_units_completed_total",
		Help: "Total units of work completed by outcome",
	}, []string{"outcome"})

	unitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "etl_scheduler_unit_duration_seconds",
		Help:    "Duration of a unit of work in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "etl_scheduler_batches_total",
		Help: "Total batches started",
	})
)

var (
	// ErrTaskPanicked wraps the value of a recovered panic.
	ErrTaskPanicked = errors.New("task panicked")

	// ErrNotStarted is returned for tasks skipped because the context ended first.
	ErrNotStarted = errors.New("task not started")
)

// Config holds scheduler configuration.
type Config struct {
	// MaxConcurrency is the maximum number of tasks in flight.
	MaxConcurrency int

	// BatchSize is the number of tasks admitted per batch.
	BatchSize int

	// BatchDelay is slept between batches, not after the last one.
	BatchDelay time.Duration

	// Logger defaults to the global logger with component=scheduler.
	Logger *zerolog.Logger
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 15,
		BatchSize:      15,
		BatchDelay:     500 * time.Millisecond,
	}
}

// Task is one independent unit of work.
type Task[T any] struct {
	ID  string
	Run func(ctx context.Context) (T, error)
}

// Result is the outcome of one task.
type Result[T any] struct {
	ID       string
	Value    T
	Err      error
	Duration time.Duration
	Batch    int
}

// Run executes tasks and returns their results in completion order.
// A failing or panicking task never affects its siblings. A zero BatchSize
// runs everything as one batch.
func Run[T any](ctx context.Context, cfg Config, tasks []Task[T]) []Result[T] {
	if len(tasks) == 0 {
		return nil
	}

	def := DefaultConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = len(tasks)
	}
	logger := logging.NewLogger("scheduler")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	start := time.Now()
	results := make([]Result[T], 0, len(tasks))
	batches := (len(tasks) + cfg.BatchSize - 1) / cfg.BatchSize

	for batch := 0; batch < batches; batch++ {
		lo := batch * cfg.BatchSize
		hi := min(lo+cfg.BatchSize, len(tasks))

		if batch > 0 && cfg.BatchDelay > 0 {
			if err := sleep(ctx, cfg.BatchDelay); err != nil {
				results = append(results, skipped(tasks[lo:], batch, err)...)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			results = append(results, skipped(tasks[lo:], batch, err)...)
			break
		}

		batchesTotal.Inc()
		logger.Info().
			Int("batch", batch+1).
			Int("batches", batches).
			Int("units", hi-lo).
			Msg("Starting batch")

		results = append(results, runBatch(ctx, logger, cfg.MaxConcurrency, batch, tasks[lo:hi])...)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Info().
		Int("units", len(tasks)).
		Int("failed", failed).
		Int("batches", batches).
		Dur("duration", time.Since(start)).
		Msg("All units finished")

	return results
}

// runBatch runs one batch through a worker pool and collects results as they complete.
func runBatch[T any](ctx context.Context, logger zerolog.Logger, workers, batch int, tasks []Task[T]) []Result[T] {
	queue := make(chan Task[T], len(tasks))
	out := make(chan Result[T], len(tasks))

	for _, task := range tasks {
		queue <- task
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < min(workers, len(tasks)); i++ {
		wg.Add(1)
		go worker(ctx, logger, batch, queue, out, &wg, i)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]Result[T], 0, len(tasks))
	for r := range out {
		results = append(results, r)
	}
	return results
}

// worker processes tasks from the queue
func worker[T any](ctx context.Context, logger zerolog.Logger, batch int, queue <-chan Task[T], out chan<- Result[T], wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for task := range queue {
		out <- runTask(ctx, logger, batch, task)
	}

	logger.Debug().Int("worker_id", workerID).Int("batch", batch+1).Msg("Worker completed")
}

func runTask[T any](ctx context.Context, logger zerolog.Logger, batch int, task Task[T]) (res Result[T]) {
	res = Result[T]{ID: task.ID, Batch: batch}
	start := time.Now()
	unitsStartedTotal.Inc()

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("%w: %v", ErrTaskPanicked, p)
			logger.Error().
				Str("unit", task.ID).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("Unit panicked")
		}

		res.Duration = time.Since(start)
		unitDuration.Observe(res.Duration.Seconds())

		outcome := "ok"
		switch {
		case errors.Is(res.Err, ErrTaskPanicked):
			outcome = "panic"
		case res.Err != nil:
			outcome = "error"
		}
		unitsCompletedTotal.WithLabelValues(outcome).Inc()
	}()

	res.Value, res.Err = task.Run(ctx)
	return res
}

func skipped[T any](tasks []Task[T], batch int, cause error) []Result[T] {
	out := make([]Result[T], len(tasks))
	for i, task := range tasks {
		out[i] = Result[T]{ID: task.ID, Batch: batch, Err: fmt.Errorf("%w: %w", ErrNotStarted, cause)}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
