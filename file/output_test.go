package file

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/relloyd/casepipe/aws/s3/mocks"
	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/stream"
	td "github.com/relloyd/casepipe/table-definition"
	. "github.com/onsi/gomega"
)

func testColumns() td.TableColumns {
	cols, _ := td.NewTableColumns([]td.TableColumn{
		{Source: "Case Number", Target: "case_number", Type: td.TypeString},
		{Source: "Last Modified Date", Target: "last_modified_date", Type: td.TypeTimestamp},
		{Source: "Case Id", Target: "case_id", Type: td.TypeBigint},
		{Source: "Score", Target: "score", Type: td.TypeDouble},
		{Source: "Open", Target: "is_open", Type: td.TypeBoolean},
	}, "case_number", "last_modified_date")
	return cols
}

func testRows() []stream.Record {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	load := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	return []stream.Record{
		stream.NewRecordFromMap(map[string]interface{}{
			"case_number": "C-1", "last_modified_date": ts, "case_id": int64(1), "score": 1.5, "is_open": true,
			c.ColumnPartitionDate: int32(20240102), c.ColumnLoadDate: load,
		}),
		stream.NewRecordFromMap(map[string]interface{}{
			"case_number": "C-2|x", "last_modified_date": nil, "case_id": nil, "score": nil, "is_open": false,
			c.ColumnPartitionDate: int32(20240103), c.ColumnLoadDate: load,
		}),
	}
}

func TestReplaceObjectDirectoryDeletesThenWritesPartFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockClient(ctrl)
	ctx := context.Background()
	loc := Location{Scheme: c.ConnectionTypeS3, Bucket: "b", Key: "out/csv/"}
	gomock.InOrder(
		store.EXPECT().DeletePrefix(ctx, "out/csv/").Return(2, nil),
		store.EXPECT().Put(ctx, "out/csv/part-00000.csv", []byte("data")).Return(nil),
	)
	key, err := ReplaceObject(ctx, logger.NewLogger("test", "error", false), store, loc, c.SourceFileExtension, []byte("data"))
	if err != nil {
		t.Fatal(err)
	}
	if key != "out/csv/part-00000.csv" {
		t.Fatalf("unexpected key %v", key)
	}
}

func TestReplaceObjectKeyOverwritesOnlyThatKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockClient(ctrl)
	ctx := context.Background()
	loc := Location{Scheme: c.ConnectionTypeS3, Bucket: "b", Key: "out/cases.parquet"}
	store.EXPECT().Put(ctx, "out/cases.parquet", gomock.Any()).Return(nil)
	_, err := ReplaceObject(ctx, logger.NewLogger("test", "error", false), store, loc, c.ParquetFileExtension, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
}

func TestCSVOutputRoundTrip(t *testing.T) {
	g := NewGomegaWithT(t)
	ctx := context.Background()
	log := logger.NewLogger("test", "error", false)
	store := NewLocalStore()
	loc, _ := ParseLocation(filepath.ToSlash(t.TempDir()) + "/csv/")
	g.Expect(store.Put(ctx, loc.Join("stale.csv"), []byte("old"))).To(Succeed())

	key, err := WriteCSVOutput(ctx, log, store, loc, testColumns(), testRows())
	g.Expect(err).To(BeNil())
	g.Expect(key).To(HaveSuffix("/csv/part-00000.csv"))

	data, err := store.Get(ctx, key)
	g.Expect(err).To(BeNil())
	g.Expect(string(data)).To(HavePrefix("case_number|last_modified_date|case_id|score|is_open|partition_date|load_date\n" +
		"C-1|2024-01-02 03:04:05|1|1.5|true|20240102|2024-01-10\n"))

	header, rows, err := ReadCSVOutput(ctx, store, loc)
	g.Expect(err).To(BeNil())
	g.Expect(header).To(Equal(testColumns().TargetNames()))
	g.Expect(rows).To(HaveLen(2))
	g.Expect(rows[1].GetData("case_number")).To(Equal("C-2|x"))
	g.Expect(rows[1].GetData("case_id")).To(Equal(""))
}

func TestCSVOutputGzip(t *testing.T) {
	g := NewGomegaWithT(t)
	ctx := context.Background()
	store := NewLocalStore()
	loc, _ := ParseLocation(filepath.ToSlash(t.TempDir()) + "/cases.csv.gz")
	_, err := WriteCSVOutput(ctx, logger.NewLogger("test", "error", false), store, loc, testColumns(), testRows())
	g.Expect(err).To(BeNil())
	header, rows, err := ReadCSVOutput(ctx, store, loc)
	g.Expect(err).To(BeNil())
	g.Expect(header).To(HaveLen(7))
	g.Expect(rows).To(HaveLen(2))
}

func TestCSVOutputWithNoRowsWritesHeader(t *testing.T) {
	g := NewGomegaWithT(t)
	out := NewCSVFileOutput(logger.NewLogger("test", "error", false), testColumns(), '|', false)
	data, err := out.Bytes()
	g.Expect(err).To(BeNil())
	g.Expect(string(data)).To(Equal("case_number|last_modified_date|case_id|score|is_open|partition_date|load_date\n"))
	g.Expect(out.RowCount()).To(Equal(0))
}

func TestReadCSVPadsShortRowsAndStripsBOM(t *testing.T) {
	g := NewGomegaWithT(t)
	var rows []stream.Record
	header, err := ReadCSV([]byte("\uFEFFCase Number, Status\nC-1,Open\nC-2\n"), ',', false, func(rec stream.Record) error {
		rows = append(rows, rec)
		return nil
	})
	g.Expect(err).To(BeNil())
	g.Expect(header).To(Equal([]string{"Case Number", "Status"}))
	g.Expect(rows).To(HaveLen(2))
	g.Expect(rows[0].GetData("Status")).To(Equal("Open"))
	g.Expect(rows[1].GetData("Status")).To(BeNil())
}
