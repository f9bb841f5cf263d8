package dbx

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
)

// Dialect names the SQL flavour a repository talks to.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DialectForDriver maps a database/sql driver name to its Dialect.
func DialectForDriver(driver string) Dialect {
	switch driver {
	case "pgx", "postgres":
		return Postgres
	default:
		return SQLite
	}
}

// Rebind rewrites '?' placeholders into the dialect's native form.
// Queries are written once with '?' and rebound for PostgreSQL ($1, $2, ...).
// Question marks inside single-quoted literals are left alone.
func Rebind(d Dialect, query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsClosed reports whether err comes from a closed *sql.DB or connection.
// database/sql does not export that error value, so the message is matched.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	return strings.Contains(err.Error(), "sql: database is closed")
}

// WrapError prefixes err with msg and marks closed-handle failures with
// common.ErrStoreUnavailable.
func WrapError(msg string, err error) error {
	if IsClosed(err) {
		return fmt.Errorf("%s: %w: %w", msg, common.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
