package rdbms

import (
	"context"
	"strings"

	"github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/logger"
	_ "modernc.org/sqlite"
)

// newSqliteConnection opens a SQLite database using a DSN of the form sqlite:<path> or sqlite://<path>.
// Use sqlite::memory: for an in-memory database.
func newSqliteConnection(ctx context.Context, log logger.Logger, dsn string) (*Connection, error) {
	_, path := splitScheme(dsn)
	if strings.TrimSpace(path) == "" {
		path = ":memory:"
	}
	conn := &Connection{DbType: constants.ConnectionTypeSqlite}
	if err := openAndPing(ctx, conn, "sqlite", path); err != nil {
		return nil, err
	}
	if path == ":memory:" { // if each pooled connection would see a different database...
		conn.DbSql.SetMaxOpenConns(1)
	}
	log.Info("Successful database connection to SQLite: ", path)
	return conn, nil
}
