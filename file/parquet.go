package file

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/pkg/errors"
	"github.com/relloyd/casepipe/stream"
	td "github.com/relloyd/casepipe/table-definition"
)

const parquetReadBatchSize = 4096

// WriteParquet renders rows as a single Snappy compressed Parquet file with one column per declared column.
// Values must already be cast to the declared types; nil values are stored as nulls.
func WriteParquet(columns td.TableColumns, rows []stream.Record) ([]byte, error) {
	pool := memory.NewGoAllocator()
	schema := columns.ArrowSchema()
	b := array.NewRecordBuilder(pool, schema)
	defer b.Release()
	for _, row := range rows { // for each row...
		for idx, col := range columns.Columns { // for each column...
			v, _ := row.Lookup(col.Target)
			if err := appendValue(b.Field(idx), v); err != nil {
				return nil, errors.Wrapf(err, "column %v", col.Target)
			}
		}
	}
	rec := b.NewRecord()
	defer rec.Release()
	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	writer, err := pqarrow.NewFileWriter(schema, &buf, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create parquet writer")
	}
	if err := writer.Write(rec); err != nil {
		return nil, errors.Wrap(err, "failed to write parquet record")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close parquet writer")
	}
	return buf.Bytes(), nil
}

func appendValue(fb array.Builder, v interface{}) error {
	if v == nil {
		fb.AppendNull()
		return nil
	}
	switch b := fb.(type) {
	case *array.StringBuilder:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string; got %T", v)
		}
		b.Append(s)
	case *array.Int32Builder:
		i, ok := v.(int32)
		if !ok {
			return fmt.Errorf("expected int32; got %T", v)
		}
		b.Append(i)
	case *array.Int64Builder:
		i, ok := v.(int64)
		if !ok {
			return fmt.Errorf("expected int64; got %T", v)
		}
		b.Append(i)
	case *array.Float64Builder:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected float64; got %T", v)
		}
		b.Append(f)
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool; got %T", v)
		}
		b.Append(x)
	case *array.TimestampBuilder:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time; got %T", v)
		}
		b.Append(arrow.Timestamp(t.UTC().UnixMicro()))
	case *array.Date32Builder:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time; got %T", v)
		}
		b.Append(arrow.Date32FromTime(t.UTC()))
	default:
		return fmt.Errorf("unsupported arrow builder %T", fb)
	}
	return nil
}

// ReadParquet decodes a Parquet file into records keyed by column name.
// It returns the column names in file order.
func ReadParquet(ctx context.Context, data []byte) (columns []string, rows []stream.Record, err error) {
	pool := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(ctx, bytes.NewReader(data), parquet.NewReaderProperties(pool), pqarrow.ArrowReadProperties{}, pool)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read parquet table")
	}
	defer tbl.Release()
	for _, f := range tbl.Schema().Fields() {
		columns = append(columns, f.Name)
	}
	tr := array.NewTableReader(tbl, parquetReadBatchSize)
	defer tr.Release()
	for tr.Next() { // for each batch...
		rec := tr.Record()
		for rowIdx := 0; rowIdx < int(rec.NumRows()); rowIdx++ {
			row := stream.NewRecord()
			for colIdx, name := range columns {
				v, err := valueAt(rec.Column(colIdx), rowIdx)
				if err != nil {
					return nil, nil, errors.Wrapf(err, "column %v", name)
				}
				row.SetData(name, v)
			}
			rows = append(rows, row)
		}
	}
	if err := tr.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to iterate parquet table")
	}
	return columns, rows, nil
}

func valueAt(arr arrow.Array, idx int) (interface{}, error) {
	if arr.IsNull(idx) {
		return nil, nil
	}
	switch a := arr.(type) {
	case *array.String:
		return a.Value(idx), nil
	case *array.LargeString:
		return a.Value(idx), nil
	case *array.Int32:
		return a.Value(idx), nil
	case *array.Int64:
		return a.Value(idx), nil
	case *array.Float64:
		return a.Value(idx), nil
	case *array.Boolean:
		return a.Value(idx), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(idx).ToTime(unit).UTC(), nil
	case *array.Date32:
		return a.Value(idx).ToTime().UTC(), nil
	default:
		return nil, fmt.Errorf("unsupported arrow array %T", arr)
	}
}
