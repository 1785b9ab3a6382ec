package rdbms

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/relloyd/casepipe/logger"
)

// SqlResultHandler receives the column names once and then each row of a query result.
type SqlResultHandler interface {
	HandleHeader(columns []string) error
	HandleRow(values []interface{}) error
}

// SqlQuery runs sqltext and feeds the results to the handler i.
func SqlQuery(ctx context.Context, log logger.Logger, db *sql.DB, sqltext string, i SqlResultHandler, args ...interface{}) error {
	log.Debug("Executing SQL: ", sqltext)
	rows, err := db.QueryContext(ctx, sqltext, args...)
	if err != nil {
		return fmt.Errorf("error during database query using SQL: '%v': %w", sqltext, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return fmt.Errorf("error fetching column types: %w", err)
	}
	for _, v := range colTypes {
		log.Trace("column ", v.Name(), " scan type = ", v.ScanType())
	}
	// Scan the values dynamically.
	lenColTypes := len(colTypes)
	scanPtrs := make([]interface{}, lenColTypes)
	scanVals := make([]interface{}, lenColTypes)
	for idx := 0; idx < lenColTypes; idx++ { // for each column...
		scanPtrs[idx] = &scanVals[idx]
	}
	// Build and send the header.
	header := make([]string, lenColTypes)
	for idx := range colTypes {
		header[idx] = colTypes[idx].Name()
	}
	if err = i.HandleHeader(header); err != nil {
		return err
	}
	// Send the rows via callback interface.
	for rows.Next() {
		if ctx.Err() != nil { // quit if asked to...
			return ctx.Err()
		}
		if err := rows.Scan(scanPtrs...); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
		row := make([]interface{}, lenColTypes)
		for idx := range scanVals { // for each value...
			if b, ok := scanVals[idx].([]byte); ok { // if the driver reused its buffer...
				row[idx] = string(b)
			} else {
				row[idx] = scanVals[idx]
			}
		}
		if err = i.HandleRow(row); err != nil {
			return err
		}
	}
	return rows.Err()
}
