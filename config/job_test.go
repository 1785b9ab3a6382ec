package config

import (
	"os"
	"path"
	"testing"

	. "github.com/onsi/gomega"
)

func writeConfig(t *testing.T, contents string) string {
	p := path.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

const validEtlConfig = `
source_path: s3://raw-bucket/cases
csv_output_path: s3://curated-bucket/cases_csv/
parquet_output_path: s3://curated-bucket/cases_parquet/
target_database: curated
target_table: cases
aws_region: eu-west-2
row_filter:
  "!=":
    - var: product
    - test
columns:
  - source: Case Number
    target: case_number
    type: string
`

func TestLoadJobConfig(t *testing.T) {
	g := NewGomegaWithT(t)
	cfg, err := LoadJobConfig(writeConfig(t, validEtlConfig))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.Etl.SourcePath).To(Equal("s3://raw-bucket/cases"))
	g.Expect(cfg.Etl.TargetTable).To(Equal("cases"))
	g.Expect(cfg.AwsRegion).To(Equal("eu-west-2"))
	g.Expect(cfg.Etl.CatalogType).To(Equal("parquet"))
	g.Expect(cfg.Etl.CastFailurePolicy).To(Equal("null"))
	g.Expect(cfg.Replication.ReplicationStartType).To(Equal("start-replication"))
	g.Expect(cfg.Etl.Columns).To(HaveLen(1))
	g.Expect(cfg.Etl.Columns[0].Source).To(Equal("Case Number"))
	g.Expect(cfg.ValidateEtl()).To(Succeed())
	rule, err := cfg.RowFilterJSON()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(rule).To(MatchJSON(`{"!=": [{"var": "product"}, "test"]}`))
}

func TestLoadJobConfigErrors(t *testing.T) {
	g := NewGomegaWithT(t)
	// Missing file.
	_, err := LoadJobConfig(path.Join(t.TempDir(), "missing.yaml"))
	g.Expect(err).To(BeAssignableToTypeOf(FileNotFoundError{}))
	// Malformed YAML.
	_, err = LoadJobConfig(writeConfig(t, "source_path: [unclosed"))
	g.Expect(err).To(HaveOccurred())
	// Unknown key.
	_, err = LoadJobConfig(writeConfig(t, "source_pathh: x\n"))
	g.Expect(err).To(HaveOccurred())
	// Missing mandatory key.
	cfg, err := LoadJobConfig(writeConfig(t, "source_path: /data/in\n"))
	g.Expect(err).NotTo(HaveOccurred())
	err = cfg.ValidateEtl()
	g.Expect(err).To(BeAssignableToTypeOf(KeyNotFoundError{}))
	g.Expect(err.Error()).To(ContainSubstring("csv_output_path"))
	// Bad choice.
	cfg, err = LoadJobConfig(writeConfig(t, validEtlConfig+"cast_failure_policy: maybe\n"))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.ValidateEtl()).NotTo(Succeed())
	// SQL catalog requires a DSN.
	cfg, err = LoadJobConfig(writeConfig(t, validEtlConfig+"catalog_type: sql\n"))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.ValidateEtl()).NotTo(Succeed())
}

func TestValidateReplication(t *testing.T) {
	g := NewGomegaWithT(t)
	cfg, err := LoadJobConfig(writeConfig(t, "aws_region: us-east-1\nreplication_task_arn: arn:aws:dms:us-east-1:123:task:ABC\n"))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.ValidateReplication()).To(Succeed())
	cfg, err = LoadJobConfig(writeConfig(t, "aws_region: us-east-1\n"))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.ValidateReplication()).NotTo(Succeed())
}

func TestRowFilterJSONFromString(t *testing.T) {
	g := NewGomegaWithT(t)
	cfg := &JobConfig{Etl: EtlSettings{RowFilter: `{"==": [{"var": "case_status"}, "Open"]}`}}
	rule, err := cfg.RowFilterJSON()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(rule).To(MatchJSON(`{"==": [{"var": "case_status"}, "Open"]}`))
	cfg = &JobConfig{}
	rule, err = cfg.RowFilterJSON()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(rule).To(BeEmpty())
}
