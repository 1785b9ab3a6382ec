package cmd

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/relloyd/casepipe/config"
	"github.com/relloyd/casepipe/helper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type cliFlag struct {
	name      string // name of flag
	val       string // default value
	shortHand string // single character name for the flag
	desc      string // description of the flag; the long text
}

type cliFlags map[string]cliFlag

var switches = cliFlags{
	"mock": cliFlag{name: "mock", shortHand: "x", desc: "mock switch for testing"},
	"config": cliFlag{name: "config", shortHand: "c",
		desc: "The job settings `<file>` (YAML) holding paths, target table and replication task"},
	"mode": cliFlag{name: "mode", shortHand: "m",
		desc: "Load mode: \"FULL\" rebuilds the table from every partition; \"DELTA\" merges \n" +
			"partitions newer than the table's max partition_date"},
	"log-level": cliFlag{name: "log-level", shortHand: "l",
		desc: "Log level: \"error | warn | info | debug | trace\""},
	"run-date": cliFlag{name: "run-date", shortHand: "d",
		desc: "The date stamped on loaded rows as load_date, using format YYYY-MM-DD (default today, UTC)"},
	"task-arn": cliFlag{name: "task-arn", shortHand: "t",
		desc: "The replication task ARN (overrides replication_task_arn in the job settings)"},
	"start-type": cliFlag{name: "start-type", shortHand: "s",
		desc: "The replication start type: \"start-replication | resume-processing | reload-target\" \n" +
			"(overrides replication_start_type in the job settings)"},
	"port": cliFlag{name: "port", shortHand: "p",
		desc: "Port to listen on"},
	"connection-type": cliFlag{name: "connection-type", shortHand: "T",
		desc: "The database type whose data types are used in the DDL: \n" +
			"\"snowflake | sqlserver | netezza | postgres | sqlite\" (default: the type of catalog_dsn)"},
	"execute-ddl": cliFlag{name: "execute-ddl", shortHand: "e",
		desc: "Execute the generated DDL against catalog_dsn (otherwise it's printed only)"},
}

// addFlag add a flag to cobra.Command c, based on the type of targetVar (which must be a pointer).
// The name of the flag is looked up in map, cliFlags.
// When running in twelveFactorMode, the targetVar is populated using the value of environment variable for the supplied
// name, or if not set then the supplied default value is used.
// When NOT running in twelveFactorMode, the default value is fetched from the defaults file if it exists else the
// supplied defaultValue is applied.
// The flag is marked as required in Cobra based on the value of required.
// Supply a value for desc2 to append to the existing description found in map cliFlags.
func (f *cliFlags) addFlag(c *cobra.Command, targetVar interface{}, name string, defaultValue string, required bool, desc2 string) {
	v := reflect.ValueOf(targetVar)
	if v.Kind() != reflect.Ptr {
		fmt.Println("error adding flag: targetVar must be a pointer")
		os.Exit(1)
	}
	sw := f.getCliFlag(name, defaultValue, getFlagDefault) // get the cliFlag details, with defaults taken from the defaults file or the supplied defaultValue
	desc := sw.desc + desc2                                // create the full flag description for use below
	// Apply the flag.
	switch p := targetVar.(type) {
	case *string:
		if twelveFactorMode {
			*p = sw.val
		} else {
			c.Flags().StringVarP(p, sw.name, sw.shortHand, sw.val, desc)
			// Signal that the flag was set so defaults take effect.
			if sw.val != "" { // if there is a value via config or default...
				mustSetFlag(c.Flags(), sw.name, sw.val)
			}
		}
	case *bool:
		if twelveFactorMode {
			// Convert any string value into True.
			*p = sw.val != ""
		} else {
			defaultBool := helper.GetTrueFalseStringAsBool(sw.val)
			c.Flags().BoolVarP(p, sw.name, sw.shortHand, defaultBool, desc)
			if defaultBool {
				mustSetFlag(c.Flags(), sw.name, "true")
			}
		}
	case *int:
		defaultInt, err := strconv.Atoi(sw.val)
		if err != nil {
			fmt.Printf("the value for flag %q must be an integer: %v\n", sw.name, err)
			os.Exit(1)
		}
		if twelveFactorMode {
			*p = defaultInt
		} else {
			c.Flags().IntVarP(p, sw.name, sw.shortHand, defaultInt, desc)
			// Signal that the flag was set so defaults take effect.
			if sw.val != "" { // if there is a value via config or default...
				mustSetFlag(c.Flags(), sw.name, sw.val)
			}
		}
	default:
		panic("Error: unhandled CLI flag target value type")
	}
	// Optionally mark the flag as mandatory.
	if required && !twelveFactorMode && sw.val == "" { // if the flag is required and has no default...
		_ = c.MarkFlagRequired(sw.name)
	}
}

// getCliFlag fetches the value of name from the environment, when running in twelveFactorMode,
// else read the defaults file to find it.
// If a value cannot be found then use the supplied defaultValue in its place.
func (f *cliFlags) getCliFlag(name string, defaultValue string, fnGetConfig func(key string, out interface{}) error) cliFlag {
	s, ok := (*f)[name]
	if !ok {
		panic(fmt.Sprintf("unregistered CLI flag, %q", name))
	}
	if twelveFactorMode { // if we should read env vars...
		if err := helper.ReadValueFromEnv(flagNameToEnvVar(name), &s.val); err != nil { // if there's no value for the env var read into the switch val...
			// Apply the default.
			s.val = defaultValue
		}
	} else { // else check the defaults file or apply default...
		if err := fnGetConfig(s.name, &s.val); err != nil || s.val == "" { // if there was no key or no file...
			// Apply the default.
			s.val = defaultValue
		}
	}
	return s
}

var (
	defaultsFile     *config.File
	defaultsFileOnce sync.Once
)

// getFlagDefault reads key from the defaults file, ~/.casepipe/defaults.yaml.
func getFlagDefault(key string, out interface{}) error {
	defaultsFileOnce.Do(func() {
		if p, err := config.DefaultsFilePath(); err == nil {
			defaultsFile = config.NewConfigFile(p)
		}
	})
	if defaultsFile == nil {
		return errors.New("unable to find the defaults file")
	}
	return defaultsFile.Get(key, out)
}

// flagNameToEnvVar will form a sanitised environment variable name using constants.EnvVarPrefix.
func flagNameToEnvVar(name string) string {
	return helper.GetEnvVarName(name)
}

func mustSetFlag(f *pflag.FlagSet, name string, val string) {
	if err := f.Set(name, val); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadJobConfig reads the job settings file, defaulting to ~/.casepipe/config.yaml.
func loadJobConfig(path string) (*config.JobConfig, error) {
	if strings.TrimSpace(path) == "" {
		p, err := config.DefaultConfigFilePath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return config.LoadJobConfig(path)
}
