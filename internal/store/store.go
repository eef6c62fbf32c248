// Package store persists journal entries, their sentence chunks and vectors,
// and chat messages in SQLite or Postgres (pgvector).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"

	"github.com/starford/reverie/internal/apperr"
	"github.com/starford/reverie/internal/query"
)

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// sqliteDriver registers vec_distance_cosine and contains_fold on every new connection.
const sqliteDriver = "sqlite3_reverie"

const sqliteParams = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("vec_distance_cosine", vecDistanceCosine, true); err != nil {
				return err
			}
			return conn.RegisterFunc("contains_fold", query.FoldContains, true)
		},
	})
}

func vecDistanceCosine(a, b []byte) (float64, error) {
	va, err := query.DecodeVector(a)
	if err != nil {
		return 0, err
	}
	vb, err := query.DecodeVector(b)
	if err != nil {
		return 0, err
	}
	return query.CosineDistance(va, vb)
}

// Config selects and tunes the backing database.
type Config struct {
	Driver       string
	DSN          string
	Dimensions   int
	MaxOpenConns int
}

// Store wraps a sql.DB with journal-specific operations.
type Store struct {
	conn *sql.DB
	d    query.Dialect
	dims int
}

// Open opens (or creates) the database and applies the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("store: dimensions must be positive, got %d", cfg.Dimensions)
	}

	var (
		driver, dsn string
		d           query.Dialect
	)
	switch cfg.Driver {
	case DriverSQLite, "":
		driver, d = sqliteDriver, query.SQLite{}
		dsn = cfg.DSN
		if strings.Contains(dsn, "?") {
			dsn += "&" + sqliteParams
		} else {
			dsn += "?" + sqliteParams
		}
	case DriverPostgres:
		driver, d, dsn = "pgx", query.Postgres{}, cfg.DSN
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	for _, stmt := range schema(d, cfg.Dimensions) {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("store: apply schema: %w", err)
		}
	}
	return &Store{conn: conn, d: d, dims: cfg.Dimensions}, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fail("ping", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Dialect returns the SQL dialect in use.
func (s *Store) Dialect() query.Dialect { return s.d }

// Dimensions returns the vector size the store accepts.
func (s *Store) Dimensions() int { return s.dims }

// rebind converts '?' markers to the dialect's placeholders.
func (s *Store) rebind(sql string) string {
	out, _ := query.Rebind(s.d, sql)
	return out
}

// vector validates v and converts it to a driver value; nil becomes NULL.
func (s *Store) vector(v []float32) (any, error) {
	if v == nil {
		return nil, nil
	}
	if len(v) != s.dims {
		return nil, fmt.Errorf("%w: vector has %d dimensions, want %d", apperr.ErrStore, len(v), s.dims)
	}
	return s.d.Vector(v), nil
}

// fail marks err as a store-level error unless it is already classified.
func fail(op string, err error) error {
	for _, known := range []error{apperr.ErrStore, apperr.ErrNotFound, apperr.ErrForbidden, apperr.ErrConflict} {
		if errors.Is(err, known) {
			return fmt.Errorf("store: %s: %w", op, err)
		}
	}
	return fmt.Errorf("%w: store: %s: %w", apperr.ErrStore, op, err)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
