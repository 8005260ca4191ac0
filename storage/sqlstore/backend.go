package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/poiesic/steamset/storage"
)

// Options configures Open.
type Options struct {
	// Driver is DriverPostgres or DriverSQLite.
	Driver string
	// DSN is passed to sql.Open unchanged, except that the SQLite pragmas
	// this package depends on are appended when missing.
	DSN string
	// Dimension is the width of the vector columns created by Migrate.
	Dimension int
	// MaxOpenConns caps the pool. SQLite always uses a single connection.
	MaxOpenConns int
}

// Backend is a database/sql store that implements every relational
// repository interface in the storage package.
type Backend struct {
	db        *sql.DB
	dialect   dialect
	dimension int
	logger    *slog.Logger
	closed    atomic.Bool
}

var (
	_ storage.LookupRepository          = (*Backend)(nil)
	_ storage.ImportRepository          = (*Backend)(nil)
	_ storage.EmbeddingRunRepository    = (*Backend)(nil)
	_ storage.EmbeddingRepository       = (*Backend)(nil)
	_ storage.MaterializationRepository = (*Backend)(nil)
)

// Open connects to the database and verifies the connection.
// It does not apply the schema; call Migrate for that.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", opts.Dimension)
	}

	dsn := opts.DSN
	if d.name == sqliteDialect.name {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if d.name == sqliteDialect.name {
		// Temp tables and :memory: databases are per connection.
		db.SetMaxOpenConns(1)
	} else if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, classify(err))
	}

	return &Backend{
		db:        db,
		dialect:   d,
		dimension: opts.Dimension,
		logger:    slog.Default().With("component", "sqlstore", "dialect", d.name),
	}, nil
}

// Close closes the underlying pool.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}

// IsClosed returns true once Close has been called.
func (b *Backend) IsClosed() bool {
	return b.closed.Load()
}

// Dialect returns "postgres" or "sqlite".
func (b *Backend) Dialect() string {
	return b.dialect.name
}

// Dimension returns the configured vector width.
func (b *Backend) Dimension() int {
	return b.dimension
}

// DB exposes the pool for callers that need ad hoc reads.
func (b *Backend) DB() *sql.DB {
	return b.db
}

// WithTx runs fn inside a transaction. The transaction commits if fn returns
// nil and rolls back otherwise. Errors are classified into the storage
// sentinels.
func (b *Backend) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if b.closed.Load() {
		return storage.ErrStorageClosed
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			b.logger.Warn("rollback failed", "error", rbErr)
		}
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	return nil
}

func (b *Backend) exec(ctx context.Context, q queryer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, b.dialect.rebind(query), args...)
}

func (b *Backend) query(ctx context.Context, q queryer, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, b.dialect.rebind(query), args...)
}

func (b *Backend) queryRow(ctx context.Context, q queryer, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, b.dialect.rebind(query), args...)
}

func (b *Backend) checkOpen() error {
	if b.closed.Load() {
		return storage.ErrStorageClosed
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = ":memory:"
	}
	sep := "?"
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == '?' {
			sep = "&"
			break
		}
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
