package cmd

import (
	"os"
	"testing"

	c "github.com/relloyd/casepipe/constants"
)

var results = map[string]int{
	c.ActionFuncsCommandEtl:       0,
	c.ActionFuncsCommandReplicate: 0,
}

func getMock12FactorExecutor(action string) func() error {
	return func() error {
		results[action]++
		return nil
	}
}

var mockTwelveFactorActions = map[string]twelveFactorAction{
	c.ActionFuncsCommandEtl:       {runnerFunc: getMock12FactorExecutor(c.ActionFuncsCommandEtl)},
	c.ActionFuncsCommandReplicate: {runnerFunc: getMock12FactorExecutor(c.ActionFuncsCommandReplicate)},
}

func TestSetupTwelveFactorMode(t *testing.T) {
	defer func() {
		_ = os.Unsetenv(envVarTwelveFactorMode)
		setupTwelveFactorMode()
	}()
	_ = os.Unsetenv(envVarTwelveFactorMode)
	setupTwelveFactorMode()
	if twelveFactorMode {
		t.Fatal("expected twelveFactorMode to be false; got true")
	}
	_ = os.Setenv(envVarTwelveFactorMode, "1")
	setupTwelveFactorMode()
	if !twelveFactorMode || lambdaMode {
		t.Fatalf("expected twelveFactorMode without lambdaMode; got %v and %v", twelveFactorMode, lambdaMode)
	}
	_ = os.Setenv(envVarTwelveFactorMode, "Lambda")
	setupTwelveFactorMode()
	if !twelveFactorMode || !lambdaMode {
		t.Fatalf("expected twelveFactorMode and lambdaMode; got %v and %v", twelveFactorMode, lambdaMode)
	}
}

func TestExecute12FactorMode(t *testing.T) {
	var osVars = map[string]string{
		"CP_LOG_LEVEL":  "error",
		"CP_STACK_DUMP": "1",
		"CP_CONFIG":     "/etc/casepipe/cases.yaml",
		"CP_MODE":       "delta",
		"CP_TASK_ARN":   "arn:aws:dms:eu-west-2:123:task:cases",
	}
	for k, v := range osVars {
		_ = os.Setenv(k, v)
	}
	defer func() {
		for k := range osVars {
			_ = os.Unsetenv(k)
		}
		_ = os.Unsetenv(envVarCommand)
	}()

	// Test 1 - etl runner function is called.
	_ = os.Setenv(envVarCommand, "etl")
	if err := execute12FactorMode(mockTwelveFactorActions); err != nil {
		t.Fatalf("test 1 failed: expected nil error got error: %v", err)
	}
	assert12FactorExecution(t, "test 1", c.ActionFuncsCommandEtl)

	// Test 2 - command is case insensitive.
	_ = os.Setenv(envVarCommand, " REPLICATE ")
	if err := execute12FactorMode(mockTwelveFactorActions); err != nil {
		t.Fatalf("test 2 failed: expected nil error got error: %v", err)
	}
	assert12FactorExecution(t, "test 2", c.ActionFuncsCommandReplicate)

	// Test 3 - invalid command.
	_ = os.Setenv(envVarCommand, "invalidCommand")
	if err := execute12FactorMode(mockTwelveFactorActions); err == nil {
		t.Fatal("test 3 failed, expected: error; got: nil")
	}

	// Test 4 - missing command.
	_ = os.Unsetenv(envVarCommand)
	if err := execute12FactorMode(mockTwelveFactorActions); err == nil {
		t.Fatal("test 4 failed, expected: error; got: nil")
	}

	// Test 5 - all twelveFactorVars are fetched from the environment.
	for k, expected := range osVars { // for each hardcoded env var in this test...
		if got := twelveFactorVars[k]; got != expected {
			t.Fatalf("test 5 failed: expected %v = %v; got: %v", k, expected, got)
		}
	}
}

func assert12FactorExecution(t *testing.T, testName string, action string) {
	if results[action] == 0 {
		t.Fatalf("%v failed, expected: >0; got: 0", testName)
	}
}

func TestTwelveFactorActions(t *testing.T) {
	// Every command that can run unattended must be handled in 12 factor mode.
	for _, k := range []string{c.ActionFuncsCommandEtl, c.ActionFuncsCommandReplicate} {
		if _, ok := twelveFactorActions[k]; !ok {
			t.Fatalf("twelveFactorActions does not handle command %v", k)
		}
	}
}
