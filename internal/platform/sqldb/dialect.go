// Package sqldb opens the SQL backends the ledger runs on and applies their
// embedded migrations. Queries are written with '?' placeholders and rebound
// per dialect.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect identifies a SQL backend.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Open connects to the backend and verifies the connection. SQLite is held
// to a single connection so writers never contend for the database lock.
func Open(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case Postgres:
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)
		}
	case SQLite:
		db, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	if strings.HasPrefix(path, "file:") || strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// Rebind rewrites '?' placeholders into the dialect's bind syntax.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
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

// LockSuffix returns the row locking clause for reads made inside a write
// transaction. SQLite serializes writers itself.
func (d Dialect) LockSuffix() string {
	if d == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

// In renders "column matches any of values" with its arguments.
func (d Dialect) In(column string, values []int64) (string, []any) {
	if d == Postgres {
		return column + " = ANY(?)", []any{pq.Array(values)}
	}
	if len(values) == 0 {
		return "1 = 0", nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return column + " IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ") + ")", args
}
