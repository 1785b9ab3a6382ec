package rdbms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/lib/pq"
	"github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/helper"
	"github.com/relloyd/casepipe/logger"
	"github.com/xo/dburl"
)

// supportedDsnConnectionTypes is a map where keys are the database types that are opened via dburl.
// Snowflake, Netezza and SQLite connections are handled explicitly so do not need to be here.
var supportedDsnConnectionTypes = map[string]struct{}{
	constants.ConnectionTypeSqlServer: {},
	constants.ConnectionTypePostgres:  {},
}

// isSupportedConnection returns true if it can look up the supplied connection type in map
// supportedDsnConnectionTypes.
func isSupportedConnection(connectionType string) bool {
	_, ok := supportedDsnConnectionTypes[connectionType]
	return ok
}

// Connection is an open database handle plus the connection type used to pick SQL dialect details.
type Connection struct {
	DbSql  *sql.DB
	DbType string
}

func (c *Connection) Close() error {
	return c.DbSql.Close()
}

// GetConnectionType returns the connection type of the DSN based on its scheme.
func GetConnectionType(dsn string) (string, error) {
	scheme, _ := splitScheme(dsn)
	switch scheme {
	case constants.ConnectionTypeSnowflake, constants.ConnectionTypeNetezza, constants.ConnectionTypeSqlite:
		return scheme, nil
	}
	u, err := dburl.Parse(dsn)
	if err != nil { // if the DSN could not be parsed...
		return "", fmt.Errorf("error parsing DSN: %w", err)
	}
	dbType := normaliseDriverName(u.Driver)
	if !isSupportedConnection(dbType) {
		return "", fmt.Errorf("unsupported database type, %q", u.OriginalScheme)
	}
	return dbType, nil
}

// OpenDbConnection opens and pings a database connection for the supplied DSN.
func OpenDbConnection(ctx context.Context, log logger.Logger, dsn string) (*Connection, error) {
	dbType, err := GetConnectionType(dsn)
	if err != nil {
		return nil, err
	}
	log.Debug("opening connection type ", dbType) // don't log password details!
	switch dbType {
	case constants.ConnectionTypeSnowflake:
		return newSnowflakeConnection(ctx, log, dsn)
	case constants.ConnectionTypeNetezza:
		return newNetezzaConnection(ctx, log, dsn)
	case constants.ConnectionTypeSqlite:
		return newSqliteConnection(ctx, log, dsn)
	default:
		return newConnectionWithDsn(ctx, log, dsn)
	}
}

func newConnectionWithDsn(ctx context.Context, log logger.Logger, dsn string) (*Connection, error) {
	u, err := dburl.Parse(dsn)
	if err != nil { // if the DSN could not be parsed...
		return nil, fmt.Errorf("error parsing DSN: %w", err)
	}
	conn := &Connection{DbType: normaliseDriverName(u.Driver)}
	if err = openAndPing(ctx, conn, u.Driver, u.DSN); err != nil {
		return nil, err
	}
	log.Info("Successful database connection to ", u.Redacted())
	return conn, nil
}

func openAndPing(ctx context.Context, conn *Connection, driver string, dsn string) (err error) {
	conn.DbSql, err = sql.Open(driver, dsn)
	if err != nil {
		return err
	}
	if err = conn.DbSql.PingContext(ctx); err != nil {
		_ = conn.DbSql.Close()
		return fmt.Errorf("error connecting to %v database: %w", conn.DbType, err)
	}
	return nil
}

// normaliseDriverName maps dburl driver names onto connection types.
func normaliseDriverName(driver string) string {
	switch driver {
	case "mssql", "sqlserver":
		return constants.ConnectionTypeSqlServer
	case "postgres", "pgx":
		return constants.ConnectionTypePostgres
	default:
		return driver
	}
}

// splitScheme returns the lower case scheme of dsn and the rest of it after "scheme:" and any "//".
func splitScheme(dsn string) (scheme string, rest string) {
	scheme, rest = helper.Split(dsn, ":")
	if rest == "" && !strings.Contains(dsn, ":") {
		return "", dsn
	}
	return strings.ToLower(scheme), strings.TrimPrefix(rest, "//")
}
