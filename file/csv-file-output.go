package file

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"strings"
	"time"

	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/helper"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/stream"
	td "github.com/relloyd/casepipe/table-definition"
	"github.com/pkg/errors"
)

// CSVFileOutput renders records as delimited text with a header row into an in-memory buffer.
type CSVFileOutput struct {
	log           logger.Logger
	columns       td.TableColumns
	buf           *bytes.Buffer
	gzWriter      *gzip.Writer
	fWriter       *bufio.Writer
	csvWriter     *csv.Writer
	useGzip       bool
	needHeaderRow bool
	totalRowCount int
}

// NewCSVFileOutput creates a CSV buffer for the columns using the supplied field delimiter.
// Setting useGzip compresses the output.
func NewCSVFileOutput(log logger.Logger, columns td.TableColumns, delimiter rune, useGzip bool) *CSVFileOutput {
	f := &CSVFileOutput{
		log:           log,
		columns:       columns,
		buf:           &bytes.Buffer{},
		useGzip:       useGzip,
		needHeaderRow: true,
	}
	if useGzip { // if should use gzip...
		f.gzWriter = gzip.NewWriter(f.buf)
		f.fWriter = bufio.NewWriter(f.gzWriter)
		f.csvWriter = csv.NewWriter(f.fWriter)
	} else {
		f.csvWriter = csv.NewWriter(f.buf)
	}
	f.csvWriter.Comma = delimiter
	log.Debug("CSVFileOutput delimiter=", string(delimiter), "; useGzip=", useGzip, "; columns=", columns.TargetNames())
	return f
}

// Write adds one record to the buffer, writing the header first if required.
// Nil values become empty fields. Dates are written without a time component.
func (f *CSVFileOutput) Write(rec stream.Record) error {
	if f.needHeaderRow {
		if err := f.csvWriter.Write(f.columns.TargetNames()); err != nil {
			return errors.Wrap(err, "unable to write CSV header")
		}
		f.needHeaderRow = false
	}
	fields := make([]string, len(f.columns.Columns))
	for idx, col := range f.columns.Columns { // for each output column...
		v, _ := rec.Lookup(col.Target)
		s, err := formatField(v, col.Type)
		if err != nil {
			return errors.Wrapf(err, "unable to format column %v", col.Target)
		}
		fields[idx] = s
	}
	if err := f.csvWriter.Write(fields); err != nil {
		return errors.Wrap(err, "unable to write CSV record")
	}
	f.totalRowCount++
	return nil
}

// Bytes flushes all writers and returns the finished file contents.
// Only a header is produced when no records were written.
func (f *CSVFileOutput) Bytes() ([]byte, error) {
	if f.needHeaderRow { // if there were no rows...
		if err := f.csvWriter.Write(f.columns.TargetNames()); err != nil {
			return nil, errors.Wrap(err, "unable to write CSV header")
		}
		f.needHeaderRow = false
	}
	f.csvWriter.Flush()
	if err := f.csvWriter.Error(); err != nil {
		return nil, err
	}
	if f.useGzip { // if we should flush the bufio writer...
		if err := f.fWriter.Flush(); err != nil {
			return nil, err
		}
		if err := f.gzWriter.Close(); err != nil {
			return nil, err
		}
	}
	f.log.Debug("CSVFileOutput rendered ", f.totalRowCount, " rows in ", f.buf.Len(), " bytes")
	return f.buf.Bytes(), nil
}

// RowCount returns the number of records written excluding the header.
func (f *CSVFileOutput) RowCount() int {
	return f.totalRowCount
}

func formatField(v interface{}, t td.DataType) (string, error) {
	if t == td.TypeDate {
		if ts, ok := v.(time.Time); ok {
			return ts.UTC().Format(c.TimeFormatDate), nil
		}
	}
	return helper.GetStringFromInterface(v)
}

// IsGzipKey returns true if the object key names a gzip file.
func IsGzipKey(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), c.GzipFileExtension)
}
