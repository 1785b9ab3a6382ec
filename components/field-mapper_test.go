package components

import (
	"testing"
	"time"

	"github.com/cevaris/ordered_map"
	. "github.com/onsi/gomega"
)

func TestSetupRename(t *testing.T) {
	g := NewGomegaWithT(t)
	log := testLogger()

	// Test 1 - empty config is an error.
	_, err := setupRename(log, map[string]string{})
	g.Expect(err).NotTo(BeNil())

	// Test 2 - the same header folded two ways must agree.
	_, err = setupRename(log, map[string]string{"Status": "a", " status ": "b"})
	g.Expect(err).To(MatchError(ContainSubstring("ambiguous")))

	// Test 3 - exact and case insensitive matches; other fields are kept.
	fn, err := setupRename(log, map[string]string{"Case Number": "case_number", "Status": "case_status"})
	g.Expect(err).To(BeNil())
	out := fn(recordOf("Case Number", "1", " STATUS", "New", "extra", "x"))
	g.Expect(out.GetDataMap()).To(Equal(map[string]interface{}{"case_number": "1", "case_status": "New", "extra": "x"}))

	// Test 4 - swapping names does not lose values.
	fn, err = setupRename(log, map[string]string{"a": "b", "b": "a"})
	g.Expect(err).To(BeNil())
	out = fn(recordOf("a", 1, "b", 2))
	g.Expect(out.GetDataMap()).To(Equal(map[string]interface{}{"a": 2, "b": 1}))
}

func TestSetupAddConstants(t *testing.T) {
	g := NewGomegaWithT(t)
	log := testLogger()
	_, err := setupAddConstants(log, map[string]string{"fieldName": "x"})
	g.Expect(err).To(MatchError(ContainSubstring("fieldType, fieldValue")))
	_, err = setupAddConstants(log, map[string]string{"fieldName": "x", "fieldType": "float", "fieldValue": "1"})
	g.Expect(err).NotTo(BeNil())
	_, err = setupAddConstants(log, map[string]string{"fieldName": "x", "fieldType": "date", "fieldValue": "yesterday"})
	g.Expect(err).NotTo(BeNil())

	fn, err := setupAddConstants(log, map[string]string{"fieldName": "load_date", "fieldType": "date", "fieldValue": "2021-02-03"})
	g.Expect(err).To(BeNil())
	out := fn(recordOf("a", "1"))
	g.Expect(out.GetData("load_date")).To(Equal(time.Date(2021, 2, 3, 0, 0, 0, 0, time.UTC)))

	fn, err = setupAddConstants(log, map[string]string{"fieldName": "n", "fieldType": "integer", "fieldValue": "42"})
	g.Expect(err).To(BeNil())
	g.Expect(fn(recordOf()).GetData("n")).To(Equal(42))
}

func TestNewFieldMapper(t *testing.T) {
	g := NewGomegaWithT(t)
	log := testLogger()
	m := ordered_map.NewOrderedMap()
	m.Set("Case Number", "case_number")
	waiter := &MockComponentWaiter{}
	out, _ := NewFieldMapper(&FieldMapperConfig{
		Log:       log,
		Name:      "mapper",
		InputChan: inputOf(recordOf("Case Number", "1"), recordOf("Case Number", "2")),
		Steps: []ComponentStep{
			RenameStep(m),
			{Type: FieldMapperAddConstants, Data: map[string]string{"fieldName": "src", "fieldType": "string", "fieldValue": "test"}},
		},
		WaitCounter: waiter,
	})
	rows := collectRows(t, out)
	g.Expect(rows).To(HaveLen(2))
	g.Expect(rows[1].GetDataMap()).To(Equal(map[string]interface{}{"case_number": "2", "src": "test"}))
	g.Eventually(waiter.Count).Should(Equal(0))

	// Unknown mapper types abort the step.
	fn, errs := errorCatcher()
	out, _ = NewFieldMapper(&FieldMapperConfig{
		Log:            log,
		Name:           "bad mapper",
		InputChan:      inputOf(),
		Steps:          []ComponentStep{{Type: "Nope"}},
		PanicHandlerFn: fn,
	})
	g.Expect(collectRows(t, out)).To(BeEmpty())
	g.Eventually(errs).Should(Receive(MatchError(ContainSubstring("Nope"))))
}
