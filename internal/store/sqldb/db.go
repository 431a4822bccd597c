// Package sqldb implements store.Store over database/sql. The same SQL
// text serves both backends: Postgres via the pgx stdlib driver and SQLite
// via modernc (both accept $N placeholders, ON CONFLICT, and RETURNING).
package sqldb

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

// DB implements store.Store.
type DB struct {
	db      *sql.DB
	backend string // "postgres" | "sqlite"
}

var _ store.Store = (*DB)(nil)

// Open connects to Postgres when dsn is non-empty, otherwise to the SQLite
// file at sqlitePath.
func Open(dsn, sqlitePath string) (*DB, error) {
	if dsn != "" {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(16)
		db.SetConnMaxIdleTime(5 * time.Minute)
		return &DB{db: db, backend: "postgres"}, nil
	}
	db, err := sql.Open("sqlite", sqlitePath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return &DB{db: db, backend: "sqlite"}, nil
}

// Backend reports which driver the store runs on.
func (d *DB) Backend() string { return d.backend }

func (d *DB) Close() error { return d.db.Close() }

// Ping verifies connectivity at startup.
func (d *DB) Ping() error { return d.db.Ping() }
