package stream

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	h "github.com/relloyd/casepipe/helper"
)

// NewRecord creates a new Record and returns it by value as we expect these records to go over
// channels by value too.
func NewRecord() Record {
	return Record{
		data: make(map[string]interface{}),
	}
}

func NewNilRecord() Record {
	return Record{}
}

// NewRecordFromMap wraps m without copying it.
func NewRecordFromMap(m map[string]interface{}) Record {
	if m == nil {
		return NewRecord()
	}
	return Record{data: m}
}

// Record is used to communicate data between components.
type Record struct {
	data map[string]interface{} // raw data values, which can represent null database values as nil interfaces.
}

func (sr Record) RecordIsNil() bool {
	return sr.data == nil
}

func (sr Record) SetData(name string, value interface{}) {
	sr.data[name] = value
}

// GetData returns the value of field name and panics if the field does not exist.
// Use Lookup when the field is optional.
func (sr Record) GetData(name string) interface{} {
	val, ok := sr.data[name]
	if !ok {
		panic(fmt.Sprintf("Invalid key name %q supplied while trying to fetch value from record: %v", name, sr.data))
	}
	return val
}

// Lookup returns the value of field name and whether it exists.
func (sr Record) Lookup(name string) (interface{}, bool) {
	val, ok := sr.data[name]
	return val, ok
}

// DeleteData removes field name from the record.
func (sr Record) DeleteData(name string) {
	delete(sr.data, name)
}

func (sr Record) GetDataMap() map[string]interface{} {
	return sr.data
}

func (sr Record) GetDataLen() int {
	return len(sr.data)
}

// GetDataKeysAsStrings builds a slice of strings containing the values found in sr.data for each of the supplied
// keys. Missing keys produce an empty string just like nil values.
func (sr Record) GetDataKeysAsStrings(keys []string) ([]string, error) {
	retval := make([]string, len(keys))
	for idx, k := range keys {
		s, err := h.GetStringFromInterface(sr.data[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		retval[idx] = s
	}
	return retval, nil
}

// GetSortedDataMapKeys will return a slice of the keys found in map sr.data.
func (sr Record) GetSortedDataMapKeys() []string {
	retval := make([]string, 0, len(sr.data))
	for k := range sr.data {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval
}

func (sr Record) CopyTo(t Record) {
	for k, v := range sr.data {
		t.SetData(k, v)
	}
}

// Copy returns a shallow copy of sr.
func (sr Record) Copy() Record {
	retval := NewRecord()
	sr.CopyTo(retval)
	return retval
}

// Project returns a new Record containing only the supplied keys.
// Keys missing from sr are set to nil.
func (sr Record) Project(keys []string) Record {
	retval := NewRecord()
	for _, k := range keys {
		retval.data[k] = sr.data[k]
	}
	return retval
}

// DataIsDeepEqual compares the values of the supplied keys in both records using reflect.DeepEqual.
func (sr Record) DataIsDeepEqual(targetRec Record, keys []string) bool {
	for _, k := range keys {
		if !reflect.DeepEqual(sr.data[k], targetRec.data[k]) { // if values are NOT equal then return early!
			return false
		}
	}
	return true
}

// GetJson returns the JSON representation of sr.data using the supplied keys to fetch the data.
func (sr Record) GetJson(keys []string) (string, error) {
	out := make([]string, len(keys))
	for idx, key := range keys { // for each key...
		s, err := h.GetStringFromInterface(sr.data[key])
		if err != nil {
			return "", err
		}
		jsonValue, err := json.Marshal(s)
		if err != nil {
			return "", fmt.Errorf("error marshalling the value of key %q to JSON: %w", key, err)
		}
		out[idx] = fmt.Sprintf("%q: %s", key, string(jsonValue))
	}
	return fmt.Sprintf("{%v}", strings.Join(out, ", ")), nil
}

// MergeDataStreams will combine records from s1 into a new record, followed by s2 into the new record before
// returning it. You can supply a nil s2 to create a copy of s1 that is returned.
// If allowOverwrite is false, an error is returned if a field in s2 already exists in s1.
func MergeDataStreams(s1 Record, s2 Record, allowOverwrite bool) (Record, error) {
	retval := s1.Copy()
	if !s2.RecordIsNil() { // if s2 is not empty...
		for k, v := range s2.GetDataMap() { // for each key:value in the 2nd source...
			if _, ok := retval.data[k]; ok && !allowOverwrite { // if the key already exists...
				return Record{}, fmt.Errorf("field %v exists in stream record", k)
			}
			retval.data[k] = v
		}
	}
	return retval, nil
}
