package cmd

import (
	"fmt"
	"os"
	"strings"

	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/helper"
	"github.com/relloyd/casepipe/logger"
)

// init will be called first due to the lexical order in which these functions are executed.
// This ensures the value of twelveFactorMode is set such that other init() functions that configure
// Cobra can do the job of processing all environment variables that would contain equivalent of the CLI flag
// structures used by the commands.
func init() {
	setupTwelveFactorMode()
}

// setupTwelveFactorMode will enable or disable 12 factor mode based on environment variable.
func setupTwelveFactorMode() {
	mode := os.Getenv(envVarTwelveFactorMode)
	if mode != "" { // if variable for 12factor mode is set and we should read env vars to determine actions...
		twelveFactorMode = true
		if strings.ToLower(mode) == "lambda" {
			lambdaMode = true
		}
	} else { // else 12factor mode should be off...
		twelveFactorMode = false // explicitly turn off this mode since tests may have turned it on while others require it off.
		lambdaMode = false
	}
}

const (
	envVarTwelveFactorMode = c.EnvVarPrefix + "_" + "12FACTOR_MODE"
	envVarCommand          = c.EnvVarPrefix + "_" + "COMMAND" // etl|replicate
	envVarLogLevel         = c.EnvVarPrefix + "_" + "LOG_LEVEL"
	envVarStackDump        = c.EnvVarPrefix + "_" + "STACK_DUMP"
)

var (
	twelveFactorMode bool // true if os env var envVarTwelveFactorMode is set
	lambdaMode       bool // true if os env var envVarTwelveFactorMode is "lambda"
	twelveFactorVars = map[string]string{
		envVarCommand:   "",
		envVarLogLevel:  "",
		envVarStackDump: "",
		// The remaining variables are read by addFlag.
		flagNameToEnvVar("config"):     "",
		flagNameToEnvVar("mode"):       "",
		flagNameToEnvVar("run-date"):   "",
		flagNameToEnvVar("task-arn"):   "",
		flagNameToEnvVar("start-type"): "",
	}
)

type twelveFactorAction struct {
	runnerFunc func() error
}

var twelveFactorActions = map[string]twelveFactorAction{
	c.ActionFuncsCommandEtl:       {runnerFunc: runEtl},
	c.ActionFuncsCommandReplicate: {runnerFunc: runReplicate},
}

func execute12FactorMode(acts map[string]twelveFactorAction) (err error) {
	logLevel := helper.ReadValueFromEnvWithDefault(envVarLogLevel, "warn") // fetch logLevel from env as this is not a persistent flag.
	stackDump := helper.GetTrueFalseStringAsBool(os.Getenv(envVarStackDump))
	log := logger.NewLogger(c.ServiceName, logLevel, stackDump || stackDumpOnPanic)
	log.Info("Running in 12 Factor mode...")
	for k := range twelveFactorVars { // for each env variable that we need...
		twelveFactorVars[k] = os.Getenv(k)
		log.Debug(k, "=", twelveFactorVars[k])
	}
	command, err := helper.GetEnvVar(envVarCommand, true)
	if err != nil {
		log.Error(err.Error())
		return
	}
	a, ok := acts[strings.ToLower(strings.TrimSpace(command))]
	if !ok {
		err = fmt.Errorf("invalid command %q set in %v", command, envVarCommand)
		log.Error(err.Error())
		return
	}
	// Run the action.
	err = a.runnerFunc()
	if err != nil {
		log.Error("Error: ", err)
	}
	return err
}
