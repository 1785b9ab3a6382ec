package helper

import (
	"testing"
	"time"
)

func TestGetStringFromInterface(t *testing.T) {
	ts := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	cases := []struct {
		in       interface{}
		expected string
	}{
		{nil, ""},
		{"abc", "abc"},
		{int32(20210304), "20210304"},
		{int64(-5), "-5"},
		{1.5, "1.5"},
		{true, "true"},
		{ts, "2021-03-04 05:06:07"},
		{[]byte("xyz"), "xyz"},
	}
	for _, c := range cases {
		got, err := GetStringFromInterface(c.in)
		if err != nil {
			t.Fatal(err)
		}
		if got != c.expected {
			t.Fatalf("expected %q; got %q", c.expected, got)
		}
	}
	if _, err := GetStringFromInterface(struct{}{}); err == nil {
		t.Fatal("expected error for unhandled type")
	}
}

func TestIsValidIdentifier(t *testing.T) {
	for _, s := range []string{"cases", "CASES_2", "_x", "db$1"} {
		if !IsValidIdentifier(s) {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	for _, s := range []string{"", "1abc", "a b", "a;drop table x", "a.b"} {
		if IsValidIdentifier(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
}

func TestAtomBool(t *testing.T) {
	var b AtomBool
	if b.Get() {
		t.Fatal("expected zero value false")
	}
	b.Set(true)
	if !b.Get() {
		t.Fatal("expected true after Set(true)")
	}
}
