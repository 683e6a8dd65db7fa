// Package storage provides the SQLite store behind the s4 gateway:
// opening the database, handing out request-scoped connections, and
// executing arbitrary SQL into uniform row records.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"s4/config"
	"s4/metrics"
)

// RowRecord is one result row keyed by column name. Column order from
// the engine is not preserved in the record itself; duplicate column
// names collide and the last value wins.
type RowRecord map[string]any

// Store holds the SQLite database behind the gateway. The *sql.DB is
// process-lifetime; individual requests acquire and release their own
// connections from it.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.SugaredLogger

	// memConn pins one connection open for in-memory databases so the
	// shared store survives pool churn between requests. Nil for file
	// databases.
	memConn *sql.Conn
}

// NewStore opens the database at path and applies the standard
// pragmas. The in-memory sentinel is rewritten to a shared-cache URI
// with one pinned connection, so every request-scoped connection
// observes the same logical store for the life of the process.
func NewStore(path string, logger *zap.SugaredLogger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	memory := path == config.MemoryDatabase

	// Pragmas go in the DSN so they apply to every pooled connection,
	// not just the one an Exec happens to land on.
	var dsn string
	if memory {
		// Separate connections to a plain ":memory:" each get their
		// own empty database. Shared cache keeps one logical store.
		dsn = "file::memory:?cache=shared&_pragma=busy_timeout(5000)"
	} else {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}

	if err := s.configure(memory); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Infow("SQLite store ready", "path", path, "in_memory", memory)
	return s, nil
}

// configure verifies the connection and pragmas, and pins the
// in-memory handle when needed.
func (s *Store) configure(memory bool) error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if !memory {
		// WAL lets concurrent readers proceed alongside the single
		// writer. In-memory databases only support the memory journal.
		var journalMode string
		if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
			return fmt.Errorf("failed to query journal mode: %w", err)
		}
		if journalMode != "wal" {
			return fmt.Errorf("WAL mode not enabled (got: %s)", journalMode)
		}
	}

	if memory {
		conn, err := s.db.Conn(context.Background())
		if err != nil {
			return fmt.Errorf("failed to pin in-memory connection: %w", err)
		}
		s.memConn = conn
	}

	return nil
}

// Acquire opens a connection scoped to a single request. The caller
// must release it with Conn.Close on every exit path.
func (s *Store) Acquire(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	return conn, nil
}

// Execute runs one SQL statement verbatim on the given connection and
// materializes every result row before returning. Statements that
// produce no rows (DDL, most DML) yield an empty, non-nil slice. The
// statement commits immediately; failures surface as the driver's
// error, never retried.
func (s *Store) Execute(ctx context.Context, conn *sql.Conn, sqlText string) ([]RowRecord, error) {
	start := time.Now()

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		metrics.QueriesExecuted.WithLabelValues("error").Inc()
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		metrics.QueriesExecuted.WithLabelValues("error").Inc()
		return nil, err
	}

	records := make([]RowRecord, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			metrics.QueriesExecuted.WithLabelValues("error").Inc()
			return nil, err
		}

		record := make(RowRecord, len(columns))
		for i, name := range columns {
			record[name] = normalizeValue(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		metrics.QueriesExecuted.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.QueriesExecuted.WithLabelValues("success").Inc()
	metrics.QueryDuration.Observe(time.Since(start).Seconds())
	return records, nil
}

// Query runs one statement on its own request-scoped connection,
// releasing the connection before returning. Rows are fully
// materialized first, so the handle is never released mid-stream.
func (s *Store) Query(ctx context.Context, sqlText string) ([]RowRecord, error) {
	conn, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			s.logger.Warnw("Failed to release database connection", "error", cerr)
		}
	}()

	return s.Execute(ctx, conn, sqlText)
}

// normalizeValue converts driver-specific cell values into JSON-ready
// Go values. BLOB/TEXT cells that arrive as byte slices become strings.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Stats exposes pool statistics, used to verify connections are
// released after requests complete.
func (s *Store) Stats() sql.DBStats {
	return s.db.Stats()
}

// Path returns the database location the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Close releases the pinned in-memory connection, if any, and closes
// the database.
func (s *Store) Close() error {
	if s.memConn != nil {
		if err := s.memConn.Close(); err != nil {
			s.logger.Warnw("Failed to close pinned in-memory connection", "error", err)
		}
		s.memConn = nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close SQLite database: %w", err)
	}
	return nil
}
