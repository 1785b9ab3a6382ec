package config

import (
	"os"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/helper"
	yamlv2 "gopkg.in/yaml.v2"
)

// ColumnConfig maps one source CSV header to a typed target column.
// Source may be empty for derived columns such as partition_date and load_date.
type ColumnConfig struct {
	Source string `mapstructure:"source"`
	Target string `mapstructure:"target" errorTxt:"columns.target" mandatory:"yes"`
	Type   string `mapstructure:"type" errorTxt:"columns.type" mandatory:"yes"`
}

// EtlSettings are the keys required by the etl command.
type EtlSettings struct {
	SourcePath        string `mapstructure:"source_path" errorTxt:"source_path" mandatory:"yes"`
	CsvOutputPath     string `mapstructure:"csv_output_path" errorTxt:"csv_output_path" mandatory:"yes"`
	ParquetOutputPath string `mapstructure:"parquet_output_path" errorTxt:"parquet_output_path" mandatory:"yes"`
	TargetDatabase    string `mapstructure:"target_database" errorTxt:"target_database" mandatory:"yes"`
	TargetTable       string `mapstructure:"target_table" errorTxt:"target_table" mandatory:"yes"`
	CatalogType       string `mapstructure:"catalog_type" errorTxt:"catalog_type" oneOf:"parquet|sql"`
	CatalogDsn        string `mapstructure:"catalog_dsn" errorTxt:"catalog_dsn"`
	CastFailurePolicy string `mapstructure:"cast_failure_policy" errorTxt:"cast_failure_policy" oneOf:"null|fail"`
	BusinessKey       string `mapstructure:"business_key" errorTxt:"business_key"`
	RecencyColumn     string `mapstructure:"recency_column" errorTxt:"recency_column"`
	RowFilter         interface{}    `mapstructure:"row_filter"`
	Columns           []ColumnConfig `mapstructure:"columns"`
}

// ReplicationSettings are the keys required by the replicate command.
type ReplicationSettings struct {
	ReplicationTaskArn   string `mapstructure:"replication_task_arn" errorTxt:"replication_task_arn" mandatory:"yes"`
	ReplicationStartType string `mapstructure:"replication_start_type" errorTxt:"replication_start_type" oneOf:"start-replication|resume-processing|reload-target"`
}

// JobConfig is the settings file shared by both commands.
// It is read once at start-up and not changed afterwards.
type JobConfig struct {
	Path        string              `mapstructure:"-"`
	AwsRegion   string              `mapstructure:"aws_region"`
	Etl         EtlSettings         `mapstructure:",squash"`
	Replication ReplicationSettings `mapstructure:",squash"`
}

// LoadJobConfig reads the settings file at path and applies defaults.
// It does not validate; call ValidateEtl or ValidateReplication for the command being run.
func LoadJobConfig(path string) (*JobConfig, error) {
	p, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	cfg := &JobConfig{}
	if err = NewConfigFile(p).Decode(cfg); err != nil {
		return nil, err
	}
	cfg.Path = p
	cfg.applyDefaults()
	return cfg, nil
}

func (c *JobConfig) applyDefaults() {
	if c.AwsRegion == "" {
		c.AwsRegion = helper.ReadValueFromEnvWithDefault("AWS_REGION", os.Getenv("AWS_DEFAULT_REGION"))
	}
	if c.Etl.CatalogType == "" {
		if c.Etl.CatalogDsn != "" {
			c.Etl.CatalogType = constants.CatalogTypeSql
		} else {
			c.Etl.CatalogType = constants.CatalogTypeParquet
		}
	}
	if c.Etl.CastFailurePolicy == "" {
		c.Etl.CastFailurePolicy = constants.CastFailurePolicyNull
	}
	if c.Replication.ReplicationStartType == "" {
		c.Replication.ReplicationStartType = "start-replication"
	}
}

// ValidateEtl returns a KeyNotFoundError if keys needed by the etl command are missing.
func (c *JobConfig) ValidateEtl() error {
	if err := helper.ValidateStructIsPopulated(c.Etl); err != nil {
		return KeyNotFoundError{configFile: c.Path, key: "etl settings", err: err}
	}
	for _, col := range c.Etl.Columns {
		if err := helper.ValidateStructIsPopulated(col); err != nil {
			return KeyNotFoundError{configFile: c.Path, key: "columns", err: err}
		}
	}
	if c.Etl.CatalogType == constants.CatalogTypeSql && c.Etl.CatalogDsn == "" {
		return KeyNotFoundError{configFile: c.Path, key: "catalog_dsn", err: errors.New("required when catalog_type is sql")}
	}
	if !helper.IsValidIdentifier(c.Etl.TargetDatabase) || !helper.IsValidIdentifier(c.Etl.TargetTable) {
		return errors.Errorf("invalid target table identifier %q.%q in config file %q", c.Etl.TargetDatabase, c.Etl.TargetTable, c.Path)
	}
	return nil
}

// ValidateReplication returns a KeyNotFoundError if keys needed by the replicate command are missing.
func (c *JobConfig) ValidateReplication() error {
	if err := helper.ValidateStructIsPopulated(c.Replication); err != nil {
		return KeyNotFoundError{configFile: c.Path, key: "replication settings", err: err}
	}
	if c.AwsRegion == "" {
		return KeyNotFoundError{configFile: c.Path, key: "aws_region", err: errors.New("set aws_region or AWS_REGION")}
	}
	return nil
}

// RowFilterJSON returns the row_filter rule as JSON logic text, or "" if none was configured.
// The rule may be written as YAML structure or as a JSON/YAML string.
func (c *JobConfig) RowFilterJSON() (string, error) {
	var b []byte
	var err error
	switch v := c.Etl.RowFilter.(type) {
	case nil:
		return "", nil
	case string:
		if strings.TrimSpace(v) == "" {
			return "", nil
		}
		b, err = yaml.YAMLToJSON([]byte(v))
	default:
		var y []byte
		if y, err = yamlv2.Marshal(v); err == nil {
			b, err = yaml.YAMLToJSON(y)
		}
	}
	if err != nil {
		return "", errors.Wrap(err, "invalid row_filter")
	}
	return string(b), nil
}
