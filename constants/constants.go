package constants

// Component

const (
	ChanSize                     = 20000
	StatsCaptureFrequencySeconds = 5
	TimeFormatTimestamp          = "2006-01-02 15:04:05"  // timestamps written to CSV output.
	TimeFormatDate               = "2006-01-02"           // dates written to CSV output and accepted by --run-date.
	PartitionIdFormat            = "20060102"
	EnvVarPrefix                 = "CP" // prefixed for environment variables in twelveFactorMode
	ServiceName                  = "casepipe"
	ConfigDir                    = ".casepipe"
	ConfigFileName               = "config.yaml"
	DefaultsFileName             = "defaults.yaml" // default CLI flag values.
	ActionFuncsCommandDdl        = "ddl"
	ActionFuncsCommandEtl        = "etl"
	ActionFuncsCommandReplicate  = "replicate"
	ConnectionTypeS3             = "s3"
	ConnectionTypeFile           = "file"
	ConnectionTypeSnowflake      = "snowflake"
	ConnectionTypeNetezza        = "netezza"
	ConnectionTypeSqlServer      = "sqlserver"
	ConnectionTypePostgres       = "postgres"
	ConnectionTypeSqlite         = "sqlite"
	CatalogTypeParquet           = "parquet"
	CatalogTypeSql               = "sql"
	CastFailurePolicyNull        = "null"
	CastFailurePolicyFail        = "fail"
	OutputPartFileName           = "part-00000"
	CsvOutputDelimiter           = '|'
	SourceFileExtension          = ".csv"
	SourceCsvDelimiter           = ','
	ParquetFileExtension         = ".parquet"
	GzipFileExtension            = ".gz"
	ColumnPartitionDate          = "partition_date"
	ColumnLoadDate               = "load_date"
	ColumnYear                   = "year"
	ColumnMonth                  = "month"
	ColumnDay                    = "day"
)
