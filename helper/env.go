package helper

import (
	"fmt"
	"os"
	"strings"

	"github.com/relloyd/casepipe/constants"
)

// GetEnvVar fetches OS environment variable.
// If the variable is not set it returns empty string.
// It also returns an error if there is a missing value AND mandatory == true.
func GetEnvVar(k string, mandatory bool) (string, error) {
	if value := os.Getenv(k); value != "" {
		return value, nil
	} else if mandatory {
		return "", fmt.Errorf("environment variable %v is not set", k)
	}
	return "", nil
}

// ReadValueFromEnv reads the env var called name into val.
// If the env var is not set then return an error and leave val alone.
func ReadValueFromEnv(name string, val *string) error {
	v := os.Getenv(name)
	if v != "" { // if the environment variable was set...
		*val = v // update the callers value
		return nil
	}
	return fmt.Errorf("value for environment variable %v not found", name)
}

// ReadValueFromEnvWithDefault will read the value of name from the environment.
// If it's not set then it will return the supplied defaultValue.
func ReadValueFromEnvWithDefault(name string, defaultValue string) (v string) {
	_ = ReadValueFromEnv(name, &v)
	if v == "" {
		v = defaultValue
	}
	return
}

// GetEnvVarName converts a CLI flag name like "run-date" into the 12 factor variable name "CP_RUN_DATE".
func GetEnvVarName(flagName string) string {
	n := strings.ReplaceAll(strings.TrimSpace(strings.ToUpper(flagName)), "-", "_")
	return fmt.Sprintf("%v_%v", constants.EnvVarPrefix, n)
}
