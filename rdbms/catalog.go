package rdbms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/stream"
	td "github.com/relloyd/casepipe/table-definition"
)

// SqlCatalog reads the materialized table from a database.
type SqlCatalog struct {
	log  logger.Logger
	conn *Connection
}

// NewSqlCatalog opens a connection using dsn.
// The caller must Close() the catalog.
func NewSqlCatalog(ctx context.Context, log logger.Logger, dsn string) (*SqlCatalog, error) {
	conn, err := OpenDbConnection(ctx, log, dsn)
	if err != nil {
		return nil, err
	}
	return NewSqlCatalogWithConnection(log, conn), nil
}

// NewSqlCatalogWithConnection wraps an existing connection.
func NewSqlCatalogWithConnection(log logger.Logger, conn *Connection) *SqlCatalog {
	return &SqlCatalog{log: log, conn: conn}
}

func (c *SqlCatalog) Close() error {
	return c.conn.Close()
}

// MaxPartitionID returns SELECT MAX(partition_date) for the table.
// Found is false when the table is empty or missing.
func (c *SqlCatalog) MaxPartitionID(ctx context.Context, table string) (max int, found bool, err error) {
	st := SchemaTable{SchemaTable: table}
	if err = st.Validate(); err != nil {
		return 0, false, err
	}
	q := fmt.Sprintf("SELECT MAX(%v) FROM %v", constants.ColumnPartitionDate, st.String())
	var v sql.NullInt64
	if err = c.conn.DbSql.QueryRowContext(ctx, q).Scan(&v); err != nil {
		if isTableNotFound(err) {
			c.log.Warn("Table ", table, " not found; treating it as empty")
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("error fetching max %v from %v: %w", constants.ColumnPartitionDate, table, err)
	}
	c.log.Debug("Max ", constants.ColumnPartitionDate, " in ", table, " is ", v.Int64, " (valid=", v.Valid, ")")
	return int(v.Int64), v.Valid, nil
}

// ReadAll returns SELECT * for the table with each row keyed by the declared target names.
// Column names are matched case insensitively. Declared columns missing from the table are nil.
// A missing table has no rows.
func (c *SqlCatalog) ReadAll(ctx context.Context, table string, columns td.TableColumns) ([]stream.Record, error) {
	st := SchemaTable{SchemaTable: table}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	h := &recordCollector{targets: columns.TargetNames()}
	if err := SqlQuery(ctx, c.log, c.conn.DbSql, fmt.Sprintf("SELECT * FROM %v", st.String()), h); err != nil {
		if isTableNotFound(err) {
			c.log.Warn("Table ", table, " not found; treating it as empty")
			return nil, nil
		}
		return nil, err
	}
	c.log.Debug("Read ", len(h.rows), " rows from ", table)
	return h.rows, nil
}

// CreateTable creates the table for the declared columns using the connection's data type mapping.
func (c *SqlCatalog) CreateTable(ctx context.Context, table string, columns td.TableColumns) error {
	st := SchemaTable{SchemaTable: table}
	if err := st.Validate(); err != nil {
		return err
	}
	mapper, err := td.GetMapper(c.conn.DbType)
	if err != nil {
		return err
	}
	ddl, err := td.CreateTableDDL(st.String(), columns, mapper)
	if err != nil {
		return err
	}
	c.log.Info("Executing DDL: ", ddl)
	_, err = c.conn.DbSql.ExecContext(ctx, ddl)
	return err
}

// recordCollector implements SqlResultHandler and builds records keyed by target column names.
type recordCollector struct {
	targets []string
	index   map[string]int // target name -> result column position
	rows    []stream.Record
}

func (r *recordCollector) HandleHeader(columns []string) error {
	r.index = make(map[string]int, len(r.targets))
	for idx, name := range columns {
		for _, tgt := range r.targets {
			if strings.EqualFold(name, tgt) {
				r.index[tgt] = idx
			}
		}
	}
	return nil
}

func (r *recordCollector) HandleRow(values []interface{}) error {
	rec := stream.NewRecord()
	for _, tgt := range r.targets {
		if idx, ok := r.index[tgt]; ok {
			rec.SetData(tgt, values[idx])
		} else {
			rec.SetData(tgt, nil)
		}
	}
	r.rows = append(r.rows, rec)
	return nil
}

// tableNotFoundMessages are the driver errors for a missing table.
var tableNotFoundMessages = []string{
	"no such table",       // sqlite
	"invalid object name", // sqlserver
	"ora-00942",           // oracle
}

// isTableNotFound reports whether err says the table does not exist.
// Missing columns are not matched.
func isTableNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range tableNotFoundMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	// postgres and netezza say "relation ... does not exist"; snowflake says "object ... does not exist".
	return strings.Contains(msg, "does not exist") &&
		(strings.Contains(msg, "relation") || strings.Contains(msg, "object") || strings.Contains(msg, "table"))
}
