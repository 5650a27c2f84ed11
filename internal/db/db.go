package db

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"threadhub/internal/config"
)

// DB is a *sql.DB that remembers its driver so queries written with `?`
// placeholders can be rebound for postgres.
type DB struct {
	*sql.DB
	Driver string
}

// Open returns a DB based on the configured driver.
func Open(cfg *config.Config) (*DB, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return OpenSQLite(cfg.DBPath)
	case "postgres":
		return OpenPostgres(cfg.DBUrl)
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", cfg.DBDriver)
	}
}

// Rebind rewrites `?` placeholders into `$1, $2, ...` for postgres.
func (d *DB) Rebind(query string) string {
	if d.Driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
