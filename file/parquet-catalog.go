package file

import (
	"context"

	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/stream"
	td "github.com/relloyd/casepipe/table-definition"
	"github.com/pkg/errors"
)

// ParquetCatalog treats the Parquet output of the previous run as the materialized table.
type ParquetCatalog struct {
	log   logger.Logger
	store ObjectStore
	loc   Location
}

func NewParquetCatalog(log logger.Logger, store ObjectStore, loc Location) *ParquetCatalog {
	return &ParquetCatalog{log: log, store: store, loc: loc}
}

// MaxPartitionID returns the highest partition_date held in the Parquet output.
// Found is false when there is no output yet or it holds no partition values.
func (p *ParquetCatalog) MaxPartitionID(ctx context.Context, table string) (max int, found bool, err error) {
	rows, err := p.read(ctx, table)
	if err != nil {
		return 0, false, err
	}
	for _, row := range rows {
		v, ok := row.Lookup(c.ColumnPartitionDate)
		if !ok || v == nil {
			continue
		}
		id, err := td.CastValue(v, td.TypeInt)
		if err != nil {
			return 0, false, errors.Wrapf(err, "bad %v in %v", c.ColumnPartitionDate, p.loc)
		}
		if i := int(id.(int32)); !found || i > max {
			max = i
			found = true
		}
	}
	return
}

// ReadAll returns every row of the Parquet output projected onto the declared columns.
// Columns missing from the file are nil.
func (p *ParquetCatalog) ReadAll(ctx context.Context, table string, columns td.TableColumns) ([]stream.Record, error) {
	rows, err := p.read(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make([]stream.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Project(columns.TargetNames()))
	}
	return out, nil
}

func (p *ParquetCatalog) read(ctx context.Context, table string) ([]stream.Record, error) {
	keys, err := objectKeys(ctx, p.store, p.loc, c.ParquetFileExtension)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		p.log.Debug("No parquet objects found for table ", table, " at ", p.loc)
		return nil, nil
	}
	var rows []stream.Record
	for _, k := range keys { // for each parquet object...
		data, err := p.store.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		_, r, err := ReadParquet(ctx, data)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading %v", k)
		}
		rows = append(rows, r...)
	}
	p.log.Debug("Read ", len(rows), " rows for table ", table, " from ", p.loc)
	return rows, nil
}
