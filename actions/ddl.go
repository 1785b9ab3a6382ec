package actions

import (
	"context"

	"github.com/pkg/errors"
	"github.com/relloyd/casepipe/config"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/rdbms"
	td "github.com/relloyd/casepipe/table-definition"
)

type DdlConfig struct {
	ConnectionType string // data type mapping to use; defaults to the type of catalog_dsn.
	Execute        bool   // run the statement against catalog_dsn.
}

// RunCreateTable returns the CREATE TABLE statement for the materialized table and executes it against
// catalog_dsn when cfg.Execute is set.
func RunCreateTable(ctx context.Context, log logger.Logger, jobCfg *config.JobConfig, cfg *DdlConfig) (string, error) {
	etlCfg, err := NewEtlConfig(jobCfg)
	if err != nil {
		return "", err
	}
	dsn := jobCfg.Etl.CatalogDsn
	connType := cfg.ConnectionType
	if connType == "" {
		if dsn == "" {
			return "", errors.New("supply a connection type or set catalog_dsn")
		}
		if connType, err = rdbms.GetConnectionType(dsn); err != nil {
			return "", err
		}
	}
	mapper, err := td.GetMapper(connType)
	if err != nil {
		return "", err
	}
	ddl, err := td.CreateTableDDL(etlCfg.TargetTable, etlCfg.Columns, mapper)
	if err != nil {
		return "", err
	}
	if !cfg.Execute {
		return ddl, nil
	}
	if dsn == "" {
		return "", errors.New("catalog_dsn is required to execute DDL")
	}
	cat, err := rdbms.NewSqlCatalog(ctx, log, dsn)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := cat.Close(); err != nil {
			log.Warn("error closing catalog: ", err)
		}
	}()
	if err = cat.CreateTable(ctx, etlCfg.TargetTable, etlCfg.Columns); err != nil {
		return "", errors.Wrapf(err, "error creating table %v", etlCfg.TargetTable)
	}
	return ddl, nil
}
