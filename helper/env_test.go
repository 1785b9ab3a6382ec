package helper

import (
	"os"
	"testing"
)

func TestGetEnvVarName(t *testing.T) {
	if got := GetEnvVarName("run-date"); got != "CP_RUN_DATE" {
		t.Fatalf("expected CP_RUN_DATE; got %v", got)
	}
}

func TestReadValueFromEnvWithDefault(t *testing.T) {
	name := "CP_TEST_READ_VALUE_FROM_ENV"
	_ = os.Unsetenv(name)
	if got := ReadValueFromEnvWithDefault(name, "dflt"); got != "dflt" {
		t.Fatalf("expected default value; got %q", got)
	}
	_ = os.Setenv(name, "set")
	defer os.Unsetenv(name)
	if got := ReadValueFromEnvWithDefault(name, "dflt"); got != "set" {
		t.Fatalf("expected env value; got %q", got)
	}
	if _, err := GetEnvVar("CP_TEST_MISSING_VAR", true); err == nil {
		t.Fatal("expected error for missing mandatory env var")
	}
}
