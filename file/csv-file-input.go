package file

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/casepipe/stream"
)

const utf8BOM = "\uFEFF"

// ReadCSV parses delimited text that starts with a header row and calls fn once per data row.
// Each record holds string values keyed by the trimmed header names.
// Short rows are padded with nil values; surplus fields are ignored.
func ReadCSV(data []byte, delimiter rune, gzipped bool, fn func(rec stream.Record) error) (header []string, err error) {
	var r io.Reader = bytes.NewReader(data)
	if gzipped {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "unable to open gzip stream")
		}
		defer gz.Close()
		r = gz
	}
	csvReader := csv.NewReader(r)
	csvReader.Comma = delimiter
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true
	header, err = csvReader.Read()
	if err == io.EOF { // if the file is empty...
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "unable to read CSV header")
	}
	for idx := range header {
		header[idx] = strings.TrimSpace(strings.TrimPrefix(header[idx], utf8BOM))
	}
	line := 1
	for {
		fields, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return header, errors.Wrapf(err, "unable to read CSV line %v", line)
		}
		rec := stream.NewRecord()
		for idx, h := range header { // for each column...
			if idx < len(fields) {
				rec.SetData(h, fields[idx])
			} else {
				rec.SetData(h, nil)
			}
		}
		if err := fn(rec); err != nil {
			return header, err
		}
	}
	return header, nil
}
