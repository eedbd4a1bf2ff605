package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Rebind переводит плейсхолдеры "?" в "$n" для postgres.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
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

// Parse разбирает DATABASE_URL: postgres://... или sqlite:///path/to.db
// (три слеша — относительный путь, четыре — абсолютный).
func Parse(dsn string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return Postgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite:///"):
		return SQLite, strings.TrimPrefix(dsn, "sqlite:///"), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return SQLite, strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:", strings.HasSuffix(dsn, ".db"):
		return SQLite, dsn, nil
	}
	return "", "", fmt.Errorf("unsupported DATABASE_URL %q", dsn)
}

func Open(ctx context.Context, dsn string) (*sql.DB, Dialect, error) {
	dialect, source, err := Parse(dsn)
	if err != nil {
		return nil, "", err
	}

	if dialect == SQLite {
		if source != ":memory:" && !strings.HasPrefix(source, "file:") {
			if dir := filepath.Dir(source); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, "", fmt.Errorf("create db dir: %w", err)
				}
			}
		}
		if !strings.Contains(source, "_pragma") {
			sep := "?"
			if strings.Contains(source, "?") {
				sep = "&"
			}
			source += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
	}

	db, err := sql.Open(string(dialect), source)
	if err != nil {
		return nil, "", fmt.Errorf("db open: %w", err)
	}
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("db ping: %w", err)
	}

	return db, dialect, nil
}
