package actions

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/casepipe/aws/dms"
	"github.com/relloyd/casepipe/config"
	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/file"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/rdbms"
	"github.com/relloyd/casepipe/stream"
	td "github.com/relloyd/casepipe/table-definition"
	"github.com/rs/xid"
)

// Catalog reads the materialized table.
type Catalog interface {
	MaxPartitionID(ctx context.Context, table string) (max int, found bool, err error)
	ReadAll(ctx context.Context, table string, columns td.TableColumns) ([]stream.Record, error)
}

// StoreOpener returns the ObjectStore that serves a location.
type StoreOpener func(loc file.Location) (file.ObjectStore, error)

// JobContext is everything a run talks to.
// Tests build one with fakes for storage, the catalog and the replication service.
type JobContext struct {
	Log         logger.Logger
	RunID       string
	RunDate     time.Time // stamped on loaded rows as load_date.
	OpenStore   StoreOpener
	Catalog     Catalog
	Replication dms.Starter
}

// NewJobContext builds the production JobContext for cfg.
// The catalog is only opened when the etl settings are present and the replication client only
// when a task ARN is set.
// A zero runDate means today (UTC).
func NewJobContext(ctx context.Context, log *logger.LoggerImpl, cfg *config.JobConfig, runDate time.Time) (*JobContext, error) {
	runID := xid.New().String()
	if runDate.IsZero() {
		runDate = time.Now().UTC()
	}
	jc := &JobContext{
		Log:     log.WithField("run", runID),
		RunID:   runID,
		RunDate: runDate.UTC().Truncate(24 * time.Hour),
		OpenStore: func(loc file.Location) (file.ObjectStore, error) {
			return file.OpenStore(loc, cfg.AwsRegion)
		},
	}
	var err error
	if cfg.Etl.ParquetOutputPath != "" {
		if jc.Catalog, err = openCatalog(ctx, jc, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Replication.ReplicationTaskArn != "" {
		if jc.Replication, err = dms.NewStarter(cfg.AwsRegion); err != nil {
			_ = jc.Close()
			return nil, err
		}
	}
	return jc, nil
}

func openCatalog(ctx context.Context, jc *JobContext, cfg *config.JobConfig) (Catalog, error) {
	switch cfg.Etl.CatalogType {
	case c.CatalogTypeSql:
		return rdbms.NewSqlCatalog(ctx, jc.Log, cfg.Etl.CatalogDsn)
	case c.CatalogTypeParquet, "":
		loc, err := file.ParseLocation(cfg.Etl.ParquetOutputPath)
		if err != nil {
			return nil, errors.Wrap(err, "bad parquet_output_path")
		}
		store, err := jc.OpenStore(loc)
		if err != nil {
			return nil, err
		}
		return file.NewParquetCatalog(jc.Log, store, loc), nil
	default:
		return nil, errors.Errorf("unsupported catalog_type %q", cfg.Etl.CatalogType)
	}
}

// Close releases the catalog connection, if any.
func (jc *JobContext) Close() error {
	if cl, ok := jc.Catalog.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
