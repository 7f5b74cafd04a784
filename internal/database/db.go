package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DIALECT_POSTGRES = "postgres"
	DIALECT_SQLITE   = "sqlite3"
)

var ErrNoDatabase = errors.New("no database connection string is configured")

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db      DBTX
	dialect string
}

func New(db DBTX, dialect string) *Queries {
	return &Queries{db: db, dialect: dialect}
}

// Dialect picks the driver from the connection string. postgres:// URLs use
// lib/pq; anything else is treated as a SQLite path.
func Dialect(dsn string) (string, string) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DIALECT_POSTGRES, dsn
	}

	return DIALECT_SQLITE, strings.TrimPrefix(dsn, "sqlite://")
}

// Open connects to the run history database and creates the schema.
func Open(ctx context.Context, dsn string) (*sql.DB, *Queries, error) {
	slog.Debug(">>database.Open")
	defer slog.Debug("<<database.Open")

	if len(dsn) == 0 {
		return nil, nil, ErrNoDatabase
	}

	dialect, source := Dialect(dsn)
	db, err := sql.Open(dialect, source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DIALECT_SQLITE {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	queries := New(db, dialect)
	if err := queries.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	slog.Info("opened run history database", "dialect", dialect)

	return db, queries, nil
}

func (q *Queries) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if q.dialect == DIALECT_POSTGRES {
		schema = postgresSchema
	}

	if _, err := q.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (q *Queries) rebind(query string) string {
	if q.dialect != DIALECT_POSTGRES {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}
