// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/sijms/go-ora/v2"
)

// Dialect is a database/sql driver name with its placeholder style.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
	Oracle   Dialect = "oracle"
)

// ParseDialect validates a configured driver name.
func ParseDialect(driver string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(driver))); d {
	case SQLite, Postgres, Oracle:
		return d, nil
	case "sqlite":
		return SQLite, nil
	case "postgresql":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q (want sqlite3, postgres, or oracle)", driver)
	}
}

// Rebind rewrites "?" placeholders for the dialect: "$n" for postgres,
// ":n" for oracle. Question marks inside single-quoted literals are kept.
func (d Dialect) Rebind(query string) string {
	if d == SQLite {
		return query
	}
	prefix := "$"
	if d == Oracle {
		prefix = ":"
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for _, r := range query {
		switch {
		case r == '\'':
			quoted = !quoted
			b.WriteRune(r)
		case r == '?' && !quoted:
			n++
			b.WriteString(prefix)
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Open opens and pings a database. SQLite databases get WAL journaling and
// foreign keys.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, Dialect, error) {
	d, err := ParseDialect(driver)
	if err != nil {
		return nil, "", err
	}
	if dsn == "" {
		return nil, "", fmt.Errorf("%s: empty dsn", d)
	}
	if d == SQLite && !strings.Contains(dsn, "?") && dsn != ":memory:" {
		dsn += "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	}

	db, err := sql.Open(string(d), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("opening %s database: %w", d, err)
	}
	if d == SQLite {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("pinging %s database: %w", d, err)
	}
	return db, d, nil
}
