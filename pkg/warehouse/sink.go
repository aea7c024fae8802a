package warehouse

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for table loads.
var (
	rowsLoadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_warehouse_rows_loaded_total",
		Help: "Total rows loaded by table and write disposition",
	}, []string{"table", "disposition"})

	loadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "etl_warehouse_load_duration_seconds",
		Help:    "Table load duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"table"})

	loadErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_warehouse_load_errors_total",
		Help: "Total failed table loads",
	}, []string{"table"})
)

// Sink is a bulk table-load destination.
type Sink interface {
	// Load writes rows into table. WriteTruncate replaces existing rows; a
	// truncate with zero rows clears the table. Returns the number of rows written.
	Load(ctx context.Context, table Table, rows []Row, disposition WriteDisposition) (int64, error)
}

// MemorySink keeps tables in memory. Used by tests and dry runs.
type MemorySink struct {
	mu     sync.RWMutex
	tables map[string][]Row
	loads  []LoadRecord
}

// LoadRecord describes one Load call seen by a MemorySink.
type LoadRecord struct {
	Table       string
	Rows        int
	Disposition WriteDisposition
}

// NewMemorySink creates an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{tables: make(map[string][]Row)}
}

// Load implements Sink.
func (m *MemorySink) Load(ctx context.Context, table Table, rows []Row, disposition WriteDisposition) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkRows(table, rows); err != nil {
		loadErrorsTotal.WithLabelValues(table.Name).Inc()
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]Row, len(rows))
	for i, r := range rows {
		copied[i] = append(Row(nil), r...)
	}

	if disposition == WriteTruncate {
		m.tables[table.Name] = copied
	} else {
		m.tables[table.Name] = append(m.tables[table.Name], copied...)
	}
	m.loads = append(m.loads, LoadRecord{Table: table.Name, Rows: len(rows), Disposition: disposition})

	rowsLoadedTotal.WithLabelValues(table.Name, string(disposition)).Add(float64(len(rows)))
	return int64(len(rows)), nil
}

// Rows returns a copy of the rows currently held for table.
func (m *MemorySink) Rows(table string) []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Row(nil), m.tables[table]...)
}

// Loads returns every Load call in order.
func (m *MemorySink) Loads() []LoadRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]LoadRecord(nil), m.loads...)
}

// TableCreator is implemented by sinks that can create missing tables.
type TableCreator interface {
	EnsureTable(ctx context.Context, table Table) error
}

// EnsureTable creates table when sink supports it and is a no-op otherwise.
func EnsureTable(ctx context.Context, sink Sink, table Table) error {
	if tc, ok := sink.(TableCreator); ok {
		return tc.EnsureTable(ctx, table)
	}
	return nil
}
