package components

import (
	"testing"
	"time"

	. "github.com/onsi/gomega"
	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/stream"
	td "github.com/relloyd/casepipe/table-definition"
)

func rankRows(t *testing.T, dropped *int64, recs ...stream.Record) map[string]stream.Record {
	t.Helper()
	out, _ := NewLatestByKey(&LatestByKeyConfig{
		Log:          testLogger(),
		Name:         "rank",
		InputChan:    inputOf(recs...),
		KeyField:     "case_number",
		RecencyField: "last_modified_date",
		DroppedCount: dropped,
	})
	rows := collectRows(t, out)
	byKey := make(map[string]stream.Record)
	for _, r := range rows {
		k := r.GetData("case_number").(string)
		if _, dup := byKey[k]; dup {
			t.Fatal("duplicate key in output: ", k)
		}
		byKey[k] = r
	}
	return byKey
}

func TestNewLatestByKeyLatestWins(t *testing.T) {
	g := NewGomegaWithT(t)
	rows := rankRows(t, nil,
		recordOf("case_number", "A", "last_modified_date", "2021-01-02 10:00:00", "v", "t2"),
		recordOf("case_number", "A", "last_modified_date", "2021-01-01 10:00:00", "v", "t1"),
		recordOf("case_number", "B", "last_modified_date", "2021-01-01 10:00:00", "v", "b1"),
		recordOf("case_number", "B", "last_modified_date", time.Date(2021, 1, 3, 0, 0, 0, 0, time.UTC), "v", "b2"),
	)
	g.Expect(rows).To(HaveLen(2))
	g.Expect(rows["A"].GetData("v")).To(Equal("t2"))
	g.Expect(rows["B"].GetData("v")).To(Equal("b2"))
}

func TestNewLatestByKeyTieBreaks(t *testing.T) {
	g := NewGomegaWithT(t)
	ts := "2021-01-01 10:00:00"
	rows := rankRows(t, nil,
		// Higher partition wins a timestamp tie even when it arrives first.
		recordOf("case_number", "A", "last_modified_date", ts, c.ColumnPartitionDate, 20210102, "v", "p2"),
		recordOf("case_number", "A", "last_modified_date", ts, c.ColumnPartitionDate, 20210101, "v", "p1"),
		// Later arrival wins a full tie.
		recordOf("case_number", "B", "last_modified_date", ts, c.ColumnPartitionDate, int32(20210101), "v", "first"),
		recordOf("case_number", "B", "last_modified_date", ts, c.ColumnPartitionDate, "20210101", "v", "second"),
	)
	g.Expect(rows["A"].GetData("v")).To(Equal("p2"))
	g.Expect(rows["B"].GetData("v")).To(Equal("second"))
}

func TestNewLatestByKeyUnparsedAndMissingKeys(t *testing.T) {
	g := NewGomegaWithT(t)
	dropped := int64(0)
	rows := rankRows(t, &dropped,
		recordOf("case_number", "A", "last_modified_date", "2020-06-01 00:00:00", "v", "dated"),
		recordOf("case_number", "A", "last_modified_date", "not a date", "v", "garbage"),
		recordOf("case_number", "C", "last_modified_date", "", "v", "only"),
		recordOf("case_number", "", "last_modified_date", "2021-01-01 00:00:00"),
		recordOf("last_modified_date", "2021-01-01 00:00:00"),
	)
	g.Expect(rows).To(HaveLen(2))
	g.Expect(rows["A"].GetData("v")).To(Equal("dated"))
	g.Expect(rows["C"].GetData("v")).To(Equal("only"))
	g.Expect(dropped).To(Equal(int64(2)))
}

func TestNewLatestByKeySortedOutput(t *testing.T) {
	g := NewGomegaWithT(t)
	out, _ := NewLatestByKey(&LatestByKeyConfig{
		Log:          testLogger(),
		Name:         "rank sorted",
		InputChan:    inputOf(recordOf("k", "c", "ts", "2021-01-01"), recordOf("k", "a", "ts", "2021-01-01"), recordOf("k", "b", "ts", "2021-01-01")),
		KeyField:     "k",
		RecencyField: "ts",
	})
	rows := collectRows(t, out)
	keys := make([]interface{}, 0)
	for _, r := range rows {
		keys = append(keys, r.GetData("k"))
	}
	g.Expect(keys).To(Equal([]interface{}{"a", "b", "c"}))
}

func TestNewLatestByKeyCastsKeyBeforeGrouping(t *testing.T) {
	g := NewGomegaWithT(t)
	out, _ := NewLatestByKey(&LatestByKeyConfig{
		Log:  testLogger(),
		Name: "rank typed",
		InputChan: inputOf(
			recordOf("k", "007", "ts", "2021-01-01", "v", "old"),
			recordOf("k", int64(7), "ts", "2021-01-02", "v", "new"),
			recordOf("k", " 7 ", "ts", "2020-12-31", "v", "oldest"),
			recordOf("k", "x8", "ts", "2021-01-01", "v", "uncastable"),
		),
		KeyField:     "k",
		KeyType:      td.TypeBigint,
		RecencyField: "ts",
	})
	rows := collectRows(t, out)
	g.Expect(rows).To(HaveLen(2))
	values := make([]interface{}, 0)
	for _, r := range rows {
		values = append(values, r.GetData("v"))
	}
	g.Expect(values).To(ConsistOf("new", "uncastable"))
}

func TestRankKey(t *testing.T) {
	g := NewGomegaWithT(t)
	g.Expect(rankKey(recordOf("k", "007"), "k", "")).To(Equal("007"))
	g.Expect(rankKey(recordOf("k", "007"), "k", td.TypeString)).To(Equal("007"))
	g.Expect(rankKey(recordOf("k", "007"), "k", td.TypeBigint)).To(Equal("7"))
	g.Expect(rankKey(recordOf("k", int32(7)), "k", td.TypeBigint)).To(Equal("7"))
	g.Expect(rankKey(recordOf("k", "  "), "k", td.TypeBigint)).To(Equal(""))
	g.Expect(rankKey(recordOf("x", "7"), "k", td.TypeBigint)).To(Equal(""))
}
