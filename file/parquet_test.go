package file

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/logger"
	. "github.com/onsi/gomega"
)

func TestParquetRoundTrip(t *testing.T) {
	g := NewGomegaWithT(t)
	cols := testColumns()
	data, err := WriteParquet(cols, testRows())
	g.Expect(err).To(BeNil())

	names, rows, err := ReadParquet(context.Background(), data)
	g.Expect(err).To(BeNil())
	g.Expect(names).To(Equal(cols.TargetNames()))
	g.Expect(rows).To(HaveLen(2))
	g.Expect(rows[0].GetData("case_number")).To(Equal("C-1"))
	g.Expect(rows[0].GetData("last_modified_date")).To(Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	g.Expect(rows[0].GetData("case_id")).To(Equal(int64(1)))
	g.Expect(rows[0].GetData("score")).To(Equal(1.5))
	g.Expect(rows[0].GetData("is_open")).To(Equal(true))
	g.Expect(rows[0].GetData(c.ColumnPartitionDate)).To(Equal(int32(20240102)))
	g.Expect(rows[0].GetData(c.ColumnLoadDate)).To(Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)))
	g.Expect(rows[1].GetData("case_id")).To(BeNil())
	g.Expect(rows[1].GetData("last_modified_date")).To(BeNil())
}

func TestWriteParquetRejectsUncastValues(t *testing.T) {
	rows := testRows()
	rows[0].SetData("case_id", "1")
	if _, err := WriteParquet(testColumns(), rows); err == nil {
		t.Fatal("expected error writing a string into a bigint column")
	}
}

func TestParquetCatalog(t *testing.T) {
	g := NewGomegaWithT(t)
	ctx := context.Background()
	log := logger.NewLogger("test", "error", false)
	store := NewLocalStore()
	loc, _ := ParseLocation(filepath.ToSlash(t.TempDir()) + "/parquet/")
	cat := NewParquetCatalog(log, store, loc)

	_, found, err := cat.MaxPartitionID(ctx, "cases.current")
	g.Expect(err).To(BeNil())
	g.Expect(found).To(BeFalse())

	_, err = WriteParquetOutput(ctx, log, store, loc, testColumns(), testRows())
	g.Expect(err).To(BeNil())

	max, found, err := cat.MaxPartitionID(ctx, "cases.current")
	g.Expect(err).To(BeNil())
	g.Expect(found).To(BeTrue())
	g.Expect(max).To(Equal(20240103))

	rows, err := cat.ReadAll(ctx, "cases.current", testColumns())
	g.Expect(err).To(BeNil())
	g.Expect(rows).To(HaveLen(2))
	g.Expect(rows[0].GetDataLen()).To(Equal(7))
}
