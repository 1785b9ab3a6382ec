package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/file"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/stream"
	td "github.com/relloyd/casepipe/table-definition"
	. "github.com/onsi/gomega"
)

const csvHeader = "Case Number,Last Modified Date,Status,Case Id\n"

var testRunDate = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

type etlFixture struct {
	t       *testing.T
	srcDir  string
	csvDir  string
	pqDir   string
	store   *file.LocalStore
	catalog *file.ParquetCatalog
}

func newEtlFixture(t *testing.T) *etlFixture {
	t.Helper()
	root := t.TempDir()
	f := &etlFixture{
		t:      t,
		srcDir: filepath.Join(root, "src") + "/",
		csvDir: filepath.Join(root, "out", "csv") + "/",
		pqDir:  filepath.Join(root, "out", "parquet") + "/",
		store:  file.NewLocalStore(),
	}
	f.catalog = file.NewParquetCatalog(testLogger(), f.store, file.Location{Scheme: c.ConnectionTypeFile, Key: f.pqDir})
	return f
}

func testLogger() *logger.LoggerImpl {
	return logger.NewLogger("casepipe-test", "error", true)
}

// addPartition writes a source file under the year=/month=/day= directory for the date.
func (f *etlFixture) addPartition(y, m, d int, name string, body string) {
	f.t.Helper()
	p := filepath.Join(f.srcDir, fmt.Sprintf("year=%04d", y), fmt.Sprintf("month=%02d", m), fmt.Sprintf("day=%02d", d), name)
	if err := f.store.Put(context.Background(), p, []byte(csvHeader+body)); err != nil {
		f.t.Fatal(err)
	}
}

func (f *etlFixture) jobContext() *JobContext {
	return &JobContext{
		Log:       testLogger().WithField("run", "test"),
		RunID:     "test",
		RunDate:   testRunDate,
		OpenStore: func(loc file.Location) (file.ObjectStore, error) { return f.store, nil },
		Catalog:   f.catalog,
	}
}

func (f *etlFixture) config() *EtlConfig {
	cols, err := td.NewTableColumns([]td.TableColumn{
		{Source: "Case Number", Target: "case_number", Type: td.TypeString},
		{Source: "Last Modified Date", Target: "last_modified_date", Type: td.TypeTimestamp},
		{Source: "Status", Target: "case_status", Type: td.TypeString},
		{Source: "Case Id", Target: "case_id", Type: td.TypeBigint},
	}, "case_number", "last_modified_date")
	if err != nil {
		f.t.Fatal(err)
	}
	return &EtlConfig{
		SourcePath:        f.srcDir,
		CsvOutputPath:     f.csvDir,
		ParquetOutputPath: f.pqDir,
		TargetTable:       "cases.case_snapshot",
		CastFailurePolicy: c.CastFailurePolicyNull,
		Columns:           cols,
	}
}

// table reads the materialized table back from the Parquet output keyed by case_number.
func (f *etlFixture) table() map[string]stream.Record {
	f.t.Helper()
	rows, err := f.catalog.ReadAll(context.Background(), "cases.case_snapshot", f.config().Columns)
	if err != nil {
		f.t.Fatal(err)
	}
	m := make(map[string]stream.Record, len(rows))
	for _, r := range rows {
		m[r.GetData("case_number").(string)] = r
	}
	return m
}

func TestRunEtlFullKeepsLatestRowPerKey(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	f.addPartition(2024, 3, 1, "cases.csv",
		"C1,2024-03-01 09:00:00,New,1\n"+
			"C2,2024-03-01 10:00:00,New,2\n"+
			",2024-03-01 11:00:00,Orphan,3\n")
	f.addPartition(2024, 3, 2, "cases.csv",
		"C1,2024-03-02 09:00:00,Closed,1\n"+
			"C2,2024-02-28 10:00:00,Stale,2\n")
	res, err := RunEtl(context.Background(), f.jobContext(), f.config(), ModeFull)
	g.Expect(err).To(BeNil())
	g.Expect(res.FilesRead).To(Equal(int64(2)))
	g.Expect(res.RowsRead).To(Equal(int64(5)))
	g.Expect(res.RowsMissingKey).To(Equal(int64(1)))
	g.Expect(res.RowsWritten).To(Equal(2))
	g.Expect(res.MaxPartitionAfter).To(Equal(20240302))
	g.Expect(res.CsvOutputKey).To(HaveSuffix("part-00000.csv"))
	g.Expect(res.ParquetOutputKey).To(HaveSuffix("part-00000.parquet"))
	tbl := f.table()
	g.Expect(tbl).To(HaveLen(2))
	g.Expect(tbl["C1"].GetData("case_status")).To(Equal("Closed"))
	g.Expect(tbl["C1"].GetData(c.ColumnPartitionDate)).To(BeEquivalentTo(20240302))
	g.Expect(tbl["C2"].GetData("case_status")).To(Equal("New"))
	g.Expect(tbl["C2"].GetData(c.ColumnPartitionDate)).To(BeEquivalentTo(20240301))
	ld, ok := tbl["C2"].GetData(c.ColumnLoadDate).(time.Time)
	g.Expect(ok).To(BeTrue())
	g.Expect(ld.Equal(testRunDate)).To(BeTrue())
	// The delimited output has the same rows.
	header, rows, err := file.ReadCSVOutput(context.Background(), f.store, file.Location{Scheme: c.ConnectionTypeFile, Key: f.csvDir})
	g.Expect(err).To(BeNil())
	g.Expect(header).To(Equal([]string{"case_number", "last_modified_date", "case_status", "case_id", c.ColumnPartitionDate, c.ColumnLoadDate}))
	g.Expect(rows).To(HaveLen(2))
	g.Expect(rows[0].GetData(c.ColumnLoadDate)).To(Equal("2024-03-10"))
}

func TestRunEtlFullReplacesPreviousOutput(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	f.addPartition(2024, 3, 1, "cases.csv", "C1,2024-03-01 09:00:00,New,1\nC2,2024-03-01 09:00:00,New,2\n")
	_, err := RunEtl(context.Background(), f.jobContext(), f.config(), ModeFull)
	g.Expect(err).To(BeNil())
	// Remove a source file and reload: the row disappears.
	g.Expect(os.RemoveAll(filepath.Join(f.srcDir, "year=2024"))).To(Succeed())
	f.addPartition(2024, 3, 3, "cases.csv", "C1,2024-03-03 09:00:00,Open,1\n")
	res, err := RunEtl(context.Background(), f.jobContext(), f.config(), ModeFull)
	g.Expect(err).To(BeNil())
	g.Expect(res.RowsWritten).To(Equal(1))
	tbl := f.table()
	g.Expect(tbl).To(HaveLen(1))
	g.Expect(tbl["C1"].GetData("case_status")).To(Equal("Open"))
}

func TestRunEtlDeltaMergesNewPartitions(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	f.addPartition(2024, 3, 1, "cases.csv", "C1,2024-03-01 09:00:00,New,1\nC2,2024-03-01 09:00:00,New,2\n")
	_, err := RunEtl(context.Background(), f.jobContext(), f.config(), ModeFull)
	g.Expect(err).To(BeNil())
	// An old partition arriving late is ignored by the delta.
	f.addPartition(2024, 2, 28, "late.csv", "C3,2024-02-28 09:00:00,Late,3\n")
	f.addPartition(2024, 3, 2, "cases.csv", "C1,2024-03-02 09:00:00,Closed,1\nC4,2024-03-02 09:00:00,New,4\n")
	res, err := RunEtl(context.Background(), f.jobContext(), f.config(), ModeDelta)
	g.Expect(err).To(BeNil())
	g.Expect(res.MaxPartitionBefore).To(Equal(20240301))
	g.Expect(res.MaxPartitionAfter).To(Equal(20240302))
	g.Expect(res.FilesRead).To(Equal(int64(1)))
	g.Expect(res.RowsNew).To(Equal(2))
	g.Expect(res.RowsExisting).To(Equal(2))
	g.Expect(res.RowsWritten).To(Equal(3))
	tbl := f.table()
	g.Expect(tbl).To(HaveLen(3))
	g.Expect(tbl).NotTo(HaveKey("C3"))
	g.Expect(tbl["C1"].GetData("case_status")).To(Equal("Closed"))
	g.Expect(tbl["C2"].GetData("case_status")).To(Equal("New"))
	g.Expect(tbl["C4"].GetData(c.ColumnPartitionDate)).To(BeEquivalentTo(20240302))
}

func TestRunEtlDeltaKeepsExistingRowWhenNewRowIsOlder(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	f.addPartition(2024, 3, 1, "cases.csv", "C1,2024-03-05 09:00:00,Current,1\n")
	_, err := RunEtl(context.Background(), f.jobContext(), f.config(), ModeFull)
	g.Expect(err).To(BeNil())
	f.addPartition(2024, 3, 2, "cases.csv", "C1,2024-03-01 09:00:00,Replayed,1\n")
	_, err = RunEtl(context.Background(), f.jobContext(), f.config(), ModeDelta)
	g.Expect(err).To(BeNil())
	g.Expect(f.table()["C1"].GetData("case_status")).To(Equal("Current"))
}

func TestRunEtlDeltaTieGoesToNewRow(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	f.addPartition(2024, 3, 1, "cases.csv", "C1,2024-03-01 09:00:00,Old,1\n")
	_, err := RunEtl(context.Background(), f.jobContext(), f.config(), ModeFull)
	g.Expect(err).To(BeNil())
	f.addPartition(2024, 3, 2, "cases.csv", "C1,2024-03-01 09:00:00,Same time,1\n")
	_, err = RunEtl(context.Background(), f.jobContext(), f.config(), ModeDelta)
	g.Expect(err).To(BeNil())
	g.Expect(f.table()["C1"].GetData("case_status")).To(Equal("Same time"))
}

func TestRunEtlDeltaWithoutExistingTableLoadsEverything(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	f.addPartition(2024, 3, 1, "cases.csv", "C1,2024-03-01 09:00:00,New,1\n")
	f.addPartition(2024, 3, 2, "cases.csv", "C2,2024-03-02 09:00:00,New,2\n")
	res, err := RunEtl(context.Background(), f.jobContext(), f.config(), ModeDelta)
	g.Expect(err).To(BeNil())
	g.Expect(res.MaxPartitionBefore).To(Equal(0))
	g.Expect(res.FilesRead).To(Equal(int64(2)))
	g.Expect(res.RowsExisting).To(Equal(0))
	g.Expect(f.table()).To(HaveLen(2))
}

func TestRunEtlNoNewFilesWritesNothing(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	f.addPartition(2024, 3, 1, "cases.csv", "C1,2024-03-01 09:00:00,New,1\n")
	first, err := RunEtl(context.Background(), f.jobContext(), f.config(), ModeFull)
	g.Expect(err).To(BeNil())
	before, err := os.ReadFile(first.CsvOutputKey)
	g.Expect(err).To(BeNil())
	jc := f.jobContext()
	jc.RunDate = testRunDate.AddDate(0, 0, 1)
	res, err := RunEtl(context.Background(), jc, f.config(), ModeDelta)
	g.Expect(errors.Cause(err)).To(Equal(ErrNoNewFiles))
	g.Expect(res.NoNewFiles).To(BeTrue())
	g.Expect(res.CsvOutputKey).To(BeEmpty())
	after, err := os.ReadFile(first.CsvOutputKey)
	g.Expect(err).To(BeNil())
	g.Expect(after).To(Equal(before))
}

func TestRunEtlFullWithEmptySourceReturnsNoNewFiles(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	g.Expect(os.MkdirAll(f.srcDir, 0755)).To(Succeed())
	res, err := RunEtl(context.Background(), f.jobContext(), f.config(), ModeFull)
	g.Expect(err).To(Equal(ErrNoNewFiles))
	g.Expect(res.FilesRead).To(Equal(int64(0)))
	_, err = os.Stat(f.pqDir)
	g.Expect(os.IsNotExist(err)).To(BeTrue())
}

func TestRunEtlSkipsFilesOutsidePartitions(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	f.addPartition(2024, 3, 1, "cases.csv", "C1,2024-03-01 09:00:00,New,1\n")
	g.Expect(f.store.Put(context.Background(), filepath.Join(f.srcDir, "stray.csv"), []byte(csvHeader+"C9,2024-03-01 09:00:00,Stray,9\n"))).To(Succeed())
	res, err := RunEtl(context.Background(), f.jobContext(), f.config(), ModeFull)
	g.Expect(err).To(BeNil())
	g.Expect(res.FilesSkipped).To(Equal(int64(1)))
	g.Expect(f.table()).NotTo(HaveKey("C9"))
}

func TestRunEtlCastFailurePolicies(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	f.addPartition(2024, 3, 1, "cases.csv", "C1,2024-03-01 09:00:00,New,not-a-number\n")
	// null: the value is nulled and counted.
	res, err := RunEtl(context.Background(), f.jobContext(), f.config(), ModeFull)
	g.Expect(err).To(BeNil())
	g.Expect(res.CastFailures).To(Equal(int64(1)))
	g.Expect(f.table()["C1"].GetData("case_id")).To(BeNil())
	// fail: the run aborts.
	cfg := f.config()
	cfg.CastFailurePolicy = c.CastFailurePolicyFail
	_, err = RunEtl(context.Background(), f.jobContext(), cfg, ModeFull)
	g.Expect(err).NotTo(BeNil())
	g.Expect(errors.Cause(err)).To(Equal(td.ErrCastFailed))
}

func TestRunEtlFailPolicyNeverWritesOutput(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	f.addPartition(2024, 3, 1, "cases.csv", "C1,2024-03-01 09:00:00,New,not-a-number\n")
	cfg := f.config()
	cfg.CastFailurePolicy = c.CastFailurePolicyFail
	for i := 0; i < 200; i++ { // the failing step is the last one, so repeat to catch a lost error...
		_, err := RunEtl(context.Background(), f.jobContext(), cfg, ModeFull)
		g.Expect(errors.Cause(err)).To(Equal(td.ErrCastFailed), "run %v", i)
	}
	keys, err := f.store.List(context.Background(), f.pqDir)
	g.Expect(err).To(BeNil())
	g.Expect(keys).To(BeEmpty())
}

func TestRunEtlRejectsOverlappingLocations(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	f.addPartition(2024, 3, 1, "cases.csv", "C1,2024-03-01 09:00:00,New,1\n")
	existing := filepath.Join(f.csvDir, "keep.txt")
	g.Expect(os.MkdirAll(f.csvDir, 0755)).To(Succeed())
	g.Expect(os.WriteFile(existing, []byte("x"), 0644)).To(Succeed())
	outDir := filepath.Dir(filepath.Dir(f.csvDir)) + "/"
	tests := map[string]func(cfg *EtlConfig){
		"same directory":    func(cfg *EtlConfig) { cfg.ParquetOutputPath = cfg.CsvOutputPath },
		"parquet is parent": func(cfg *EtlConfig) { cfg.ParquetOutputPath = outDir },
		"csv is parent":     func(cfg *EtlConfig) { cfg.CsvOutputPath = outDir },
		"csv file in dir":   func(cfg *EtlConfig) { cfg.CsvOutputPath = filepath.Join(f.pqDir, "cases.csv") },
		"same file":         func(cfg *EtlConfig) { cfg.CsvOutputPath = outDir + "x"; cfg.ParquetOutputPath = outDir + "x" },
		"output is input":   func(cfg *EtlConfig) { cfg.ParquetOutputPath = f.srcDir },
	}
	for name, fn := range tests {
		cfg := f.config()
		fn(cfg)
		g.Expect(cfg.Validate()).NotTo(Succeed(), name)
		_, err := RunEtl(context.Background(), f.jobContext(), cfg, ModeFull)
		g.Expect(err).NotTo(BeNil(), name)
	}
	// Nothing was deleted.
	g.Expect(existing).To(BeAnExistingFile())
	g.Expect(f.config().Validate()).To(Succeed())
}

func TestRunEtlUnparseableTimestampRanksLowest(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	f.addPartition(2024, 3, 1, "cases.csv", "C1,2024-03-01 09:00:00,Dated,1\n")
	f.addPartition(2024, 3, 2, "cases.csv", "C1,yesterday,Undated,1\n")
	_, err := RunEtl(context.Background(), f.jobContext(), f.config(), ModeFull)
	g.Expect(err).To(BeNil())
	g.Expect(f.table()["C1"].GetData("case_status")).To(Equal("Dated"))
}

func TestRunEtlRowFilter(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	f.addPartition(2024, 3, 1, "cases.csv", "C1,2024-03-01 09:00:00,New,1\nC2,2024-03-01 09:00:00,Spam,2\n")
	cfg := f.config()
	cfg.RowFilter = `{"!=": [{"var": "case_status"}, "Spam"]}`
	res, err := RunEtl(context.Background(), f.jobContext(), cfg, ModeFull)
	g.Expect(err).To(BeNil())
	g.Expect(res.RowsFiltered).To(Equal(int64(1)))
	g.Expect(f.table()).To(HaveLen(1))
}

func TestRunEtlHeaderCaseAndSpaceDiffer(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	p := filepath.Join(f.srcDir, "year=2024", "month=03", "day=01", "cases.csv")
	body := " case number ,LAST MODIFIED DATE,status,case id\nC1,2024-03-01 09:00:00,New,1\n"
	g.Expect(f.store.Put(context.Background(), p, []byte(body))).To(Succeed())
	_, err := RunEtl(context.Background(), f.jobContext(), f.config(), ModeFull)
	g.Expect(err).To(BeNil())
	g.Expect(f.table()["C1"].GetData("case_status")).To(Equal("New"))
}

func TestRunEtlDeltaRequiresCatalog(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	jc := f.jobContext()
	jc.Catalog = nil
	_, err := RunEtl(context.Background(), jc, f.config(), ModeDelta)
	g.Expect(err).NotTo(BeNil())
}

func TestRunEtlCancelled(t *testing.T) {
	g := NewGomegaWithT(t)
	f := newEtlFixture(t)
	f.addPartition(2024, 3, 1, "cases.csv", "C1,2024-03-01 09:00:00,New,1\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunEtl(ctx, f.jobContext(), f.config(), ModeFull)
	g.Expect(err).NotTo(BeNil())
	_, err = os.Stat(f.pqDir)
	g.Expect(os.IsNotExist(err)).To(BeTrue())
}
