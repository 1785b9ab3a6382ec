package file

import (
	"context"
	"strings"

	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/stream"
	td "github.com/relloyd/casepipe/table-definition"
	"github.com/pkg/errors"
)

// ReplaceObject writes data to the location with overwrite semantics.
// A directory location is emptied first and data is written to part-00000<ext> inside it.
// Any other location is the object key itself and is replaced.
// The key written is returned.
func ReplaceObject(ctx context.Context, log logger.Logger, store ObjectStore, loc Location, ext string, data []byte) (string, error) {
	key := loc.Key
	if loc.IsDir() { // if the location is a directory...
		n, err := store.DeletePrefix(ctx, loc.Key)
		if err != nil {
			return "", errors.Wrapf(err, "error clearing output directory %v", loc)
		}
		log.Debug("Removed ", n, " existing objects under ", loc)
		key = loc.Join(c.OutputPartFileName + ext)
	}
	if err := store.Put(ctx, key, data); err != nil {
		return "", err
	}
	log.Info("Wrote ", len(data), " bytes to ", Location{Scheme: loc.Scheme, Bucket: loc.Bucket, Key: key})
	return key, nil
}

// WriteCSVOutput renders rows as pipe delimited text and replaces the object at loc.
// Output keys ending in .gz are compressed.
func WriteCSVOutput(ctx context.Context, log logger.Logger, store ObjectStore, loc Location, columns td.TableColumns, rows []stream.Record) (string, error) {
	out := NewCSVFileOutput(log, columns, c.CsvOutputDelimiter, !loc.IsDir() && IsGzipKey(loc.Key))
	for _, row := range rows {
		if err := out.Write(row); err != nil {
			return "", err
		}
	}
	data, err := out.Bytes()
	if err != nil {
		return "", err
	}
	return ReplaceObject(ctx, log, store, loc, c.SourceFileExtension, data)
}

// WriteParquetOutput renders rows as Parquet and replaces the object at loc.
func WriteParquetOutput(ctx context.Context, log logger.Logger, store ObjectStore, loc Location, columns td.TableColumns, rows []stream.Record) (string, error) {
	data, err := WriteParquet(columns, rows)
	if err != nil {
		return "", err
	}
	return ReplaceObject(ctx, log, store, loc, c.ParquetFileExtension, data)
}

// ReadCSVOutput reads back every delimited output object found at loc.
func ReadCSVOutput(ctx context.Context, store ObjectStore, loc Location) (header []string, rows []stream.Record, err error) {
	keys, err := objectKeys(ctx, store, loc, c.SourceFileExtension)
	if err != nil {
		return nil, nil, err
	}
	for _, k := range keys {
		data, err := store.Get(ctx, k)
		if err != nil {
			return nil, nil, err
		}
		header, err = ReadCSV(data, c.CsvOutputDelimiter, IsGzipKey(k), func(rec stream.Record) error {
			rows = append(rows, rec)
			return nil
		})
		if err != nil {
			return nil, nil, errors.Wrapf(err, "error reading %v", k)
		}
	}
	return header, rows, nil
}

// objectKeys returns the keys with the given extension under a directory location,
// or the location's own key when it names a single object that exists.
func objectKeys(ctx context.Context, store ObjectStore, loc Location, ext string) ([]string, error) {
	if !loc.IsDir() {
		keys, err := store.List(ctx, loc.Key)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if k == loc.Key {
				return []string{k}, nil
			}
		}
		return nil, nil
	}
	all, err := store.List(ctx, loc.Key)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		lk := strings.ToLower(k)
		if strings.HasSuffix(lk, ext) || strings.HasSuffix(lk, ext+c.GzipFileExtension) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
