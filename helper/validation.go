package helper

import (
	"fmt"
	"reflect"
	"strings"
)

// ValidateStructIsPopulated will check if any mandatory fields in cfg are missing and that fields
// restricted by a oneOf tag hold an allowed value.
// It uses struct tags to determine which fields are mandatory and the error text to fetch.
// The error text returned is just a list of the struct tags with key "errorTxt".
func ValidateStructIsPopulated(cfg interface{}) (err error) {
	errs := make([]string, 0)
	GetStructErrorTxt4UnsetFields(cfg, &errs)
	if len(errs) > 0 {
		return fmt.Errorf("please supply values for %v", strings.Join(errs, ", "))
	}
	GetStructErrorTxt4BadChoices(cfg, &errs)
	if len(errs) > 0 {
		err = fmt.Errorf("unsupported values for %v", strings.Join(errs, ", "))
	}
	return
}

// GetStructErrorTxt4UnsetFields will reflect over interface i and build a slice containing error text strings for any
// struct fields that are unset i.e. are the zero value for the given field type.
// The error text strings are fetched from the errorTxt tags values found in the supplied interface (struct)
// where tag mandatory:"yes" is set.
func GetStructErrorTxt4UnsetFields(i interface{}, errTags *[]string) {
	walkStructFields(i, func(f reflect.Value, sf reflect.StructField) {
		if f.IsZero() && sf.Tag.Get("mandatory") == "yes" { // if the field is its zero value and it is mandatory...
			*errTags = append(*errTags, sf.Tag.Get("errorTxt"))
		}
	})
}

// GetStructErrorTxt4BadChoices appends the errorTxt of string fields whose non-empty value is not
// in the pipe separated list found in tag oneOf.
func GetStructErrorTxt4BadChoices(i interface{}, errTags *[]string) {
	walkStructFields(i, func(f reflect.Value, sf reflect.StructField) {
		choices := sf.Tag.Get("oneOf")
		if choices == "" || f.Kind() != reflect.String || f.String() == "" {
			return
		}
		for _, c := range strings.Split(choices, "|") {
			if c == f.String() {
				return
			}
		}
		*errTags = append(*errTags, fmt.Sprintf("%v (%q not one of %v)", sf.Tag.Get("errorTxt"), f.String(), choices))
	})
}

// walkStructFields calls fn for each exported leaf field of i, descending into nested structs.
func walkStructFields(i interface{}, fn func(f reflect.Value, sf reflect.StructField)) {
	val := reflect.ValueOf(i)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return
	}
	typ := val.Type()
	for idx := 0; idx < val.NumField(); idx++ { // for each field in the value/struct...
		sf := typ.Field(idx)
		if sf.PkgPath != "" { // if the field is not exported...
			continue
		}
		f := val.Field(idx)
		switch f.Kind() {
		case reflect.Struct: // if we are looking at a nested struct and need to go down another level...
			walkStructFields(f.Interface(), fn)
		case reflect.Slice, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		default:
			fn(f, sf)
		}
	}
}
