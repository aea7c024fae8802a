package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leo-cloudarbitration/functions/pkg/logging"
	"github.com/rs/zerolog"
)

// PostgresConfig holds Postgres sink configuration.
type PostgresConfig struct {
	// DSN is a libpq connection string or URL.
	DSN string

	// Schema qualifies every table (default "public").
	Schema string

	// MaxConns caps the pool (default 4).
	MaxConns int

	// ViaBouncer switches to the simple protocol for PgBouncer in transaction mode.
	ViaBouncer bool

	// MaxRetryElapsed bounds connect and load retries (default 2 minutes).
	MaxRetryElapsed time.Duration
}

// PostgresSink loads tables through COPY inside a transaction.
type PostgresSink struct {
	pool   *pgxpool.Pool
	cfg    PostgresConfig
	logger zerolog.Logger
}

// NewPostgresSink opens a pool and waits for the database with exponential backoff.
func NewPostgresSink(ctx context.Context, cfg PostgresConfig) (*PostgresSink, error) {
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}
	if cfg.MaxRetryElapsed <= 0 {
		cfg.MaxRetryElapsed = 2 * time.Minute
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	if cfg.ViaBouncer {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	s := &PostgresSink{
		pool:   pool,
		cfg:    cfg,
		logger: logging.NewLogger("warehouse").With().Str("schema", cfg.Schema).Logger(),
	}

	err = s.retry(ctx, "connect", func() error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	return s, nil
}

// Close releases the pool.
func (s *PostgresSink) Close() {
	s.pool.Close()
}

// EnsureTable creates the table when it does not exist. Existing tables are never altered.
func (s *PostgresSink) EnsureTable(ctx context.Context, table Table) error {
	if err := table.Schema.Validate(); err != nil {
		return fmt.Errorf("table %s: %w", table.Name, err)
	}

	cols := make([]string, len(table.Schema))
	for i, f := range table.Schema {
		cols[i] = pgx.Identifier{f.Name}.Sanitize() + " " + postgresType(f.Type)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.identifier(table).Sanitize(), strings.Join(cols, ", "))

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", table.Name, err)
	}
	return nil
}

// Load implements Sink. The truncate (if any) and the COPY commit together.
func (s *PostgresSink) Load(ctx context.Context, table Table, rows []Row, disposition WriteDisposition) (int64, error) {
	if err := checkRows(table, rows); err != nil {
		loadErrorsTotal.WithLabelValues(table.Name).Inc()
		return 0, err
	}

	start := time.Now()
	var copied int64

	err := s.retry(ctx, "load "+table.Name, func() error {
		n, err := s.loadOnce(ctx, table, rows, disposition)
		if err != nil {
			return classifyPgError(err)
		}
		copied = n
		return nil
	})
	loadDuration.WithLabelValues(table.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		loadErrorsTotal.WithLabelValues(table.Name).Inc()
		return 0, fmt.Errorf("load %s: %w", table.Name, err)
	}

	rowsLoadedTotal.WithLabelValues(table.Name, string(disposition)).Add(float64(copied))
	s.logger.Info().
		Str("table", table.Name).
		Str("disposition", string(disposition)).
		Int64("rows", copied).
		Dur("duration", time.Since(start)).
		Msg("Table loaded")

	return copied, nil
}

func (s *PostgresSink) loadOnce(ctx context.Context, table Table, rows []Row, disposition WriteDisposition) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	ident := s.identifier(table)
	if disposition == WriteTruncate {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+ident.Sanitize()); err != nil {
			return 0, fmt.Errorf("truncate: %w", err)
		}
	}

	var n int64
	if len(rows) > 0 {
		src := make([][]any, len(rows))
		for i, r := range rows {
			src[i] = r
		}
		n, err = tx.CopyFrom(ctx, ident, table.Schema.Names(), pgx.CopyFromRows(src))
		if err != nil {
			return 0, fmt.Errorf("copy: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (s *PostgresSink) identifier(table Table) pgx.Identifier {
	return pgx.Identifier{s.cfg.Schema, table.Name}
}

// retry runs op with exponential backoff until it succeeds, returns a
// permanent error, or MaxRetryElapsed passes.
func (s *PostgresSink) retry(ctx context.Context, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = s.cfg.MaxRetryElapsed

	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		s.logger.Warn().
			Err(err).
			Str("operation", what).
			Dur("backoff", wait).
			Msg("Warehouse operation failed, retrying")
	})
}

// classifyPgError marks errors that retrying cannot fix as permanent:
// syntax/undefined objects (class 42) and data exceptions (class 22).
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "42") || strings.HasPrefix(pgErr.Code, "22") {
			return backoff.Permanent(err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	return err
}

func postgresType(t FieldType) string {
	switch t {
	case TypeInteger:
		return "BIGINT"
	case TypeFloat:
		return "DOUBLE PRECISION"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDate:
		return "DATE"
	case TypeTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}
