package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/leo-cloudarbitration/functions/internal/config"
	"github.com/leo-cloudarbitration/functions/internal/jobs"
	"github.com/leo-cloudarbitration/functions/pkg/logging"
	"github.com/leo-cloudarbitration/functions/pkg/ratelimit"
	"github.com/leo-cloudarbitration/functions/pkg/warehouse"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run <job>",
		Short: "Run one ETL job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), root, args[0], dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "fetch and transform without loading or auditing")
	return cmd
}

func runJob(ctx context.Context, root *rootOptions, name string, dryRun bool) error {
	cfg, logger, err := setup(root, name)
	if err != nil {
		return err
	}

	cooldown, closeOracle, err := openOracle(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeOracle()

	sink, closeSink, err := openSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	env := &jobs.Env{
		Config:   cfg,
		Cooldown: cooldown,
		Pacer:    ratelimit.NewPacer(cfg.Fetch.RequestsPerSecond, cfg.Fetch.Burst),
	}
	spec, err := jobs.Build(name, env)
	if err != nil {
		return err
	}

	runner := jobs.NewRunner(sink,
		jobs.WithScheduler(cfg.Fetch.Scheduler()),
		jobs.WithLocation(cfg.Location()),
		jobs.WithPushgateway(cfg.Metrics.PushgatewayURL),
		jobs.WithAuditTable(cfg.Warehouse.AuditTable),
		jobs.WithDryRun(dryRun),
	)
	result, err := runner.Run(ctx, spec)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	logger.Info().
		Int64("rows", result.Rows).
		Str("status", result.Execution.Status).
		Msg("Job succeeded")
	return nil
}

// setup loads the configuration and installs the global logger.
func setup(root *rootOptions, job string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(root.envFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level := cfg.Logging.Level
	if root.logLevel != "" {
		level = root.logLevel
	}
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(level),
		Pretty: root.pretty || cfg.Logging.Pretty,
		Job:    job,
	})
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

// openOracle shares rate-limit hints through Redis when REDIS_URL is set and
// keeps them in process otherwise.
func openOracle(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ratelimit.Oracle, func(), error) {
	if cfg.Redis.URL == "" {
		return ratelimit.NewMemoryOracle(cfg.Redis.Window), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis unreachable, using in-process cooldown oracle")
		_ = client.Close()
		return ratelimit.NewMemoryOracle(cfg.Redis.Window), func() {}, nil
	}

	logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return ratelimit.NewRedisOracle(client, cfg.Redis.Window, logger), func() { _ = client.Close() }, nil
}

// openSink connects to Postgres when DATABASE_URL is set. Without it rows are
// kept in memory, which only makes sense together with --dry-run.
func openSink(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (warehouse.Sink, func(), error) {
	if cfg.Warehouse.DSN == "" {
		logger.Warn().Msg("DATABASE_URL not set, rows are kept in memory")
		return warehouse.NewMemorySink(), func() {}, nil
	}

	sink, err := warehouse.NewPostgresSink(ctx, warehouse.PostgresConfig{
		DSN:        cfg.Warehouse.DSN,
		Schema:     cfg.Warehouse.Schema,
		MaxConns:   int(cfg.Warehouse.MaxConns),
		ViaBouncer: cfg.Warehouse.ViaBouncer,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open warehouse: %w", err)
	}
	return sink, sink.Close, nil
}
