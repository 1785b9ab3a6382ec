package cmd

import (
	"fmt"

	"github.com/relloyd/casepipe/constants"
	"github.com/spf13/cobra"
)

var twelveFactorCmd = &cobra.Command{
	Use:   "12f",
	Short: `View help notes for running in Twelve-Factor mode`,
	Long: fmt.Sprintf(`
Casepipe can be controlled by environment variables so it can run as a scheduled
container task or an AWS Lambda function.

To enable Twelve-Factor mode, set environment variable CP_12FACTOR_MODE=1
(or CP_12FACTOR_MODE=lambda to run as a Lambda handler).
Choose the command with CP_COMMAND=etl or CP_COMMAND=replicate.
To supply flags documented by the regular command-line usage, set an
equivalent environment variable using the following convention:

<%s>_<flag long-name in upper case, with dashes as underscores>

For example, this will run a DELTA load:

export CP_12FACTOR_MODE=1
export CP_LOG_LEVEL=info
export CP_COMMAND=etl
export CP_MODE=delta
export CP_CONFIG=/etc/casepipe/cases.yaml

And this will start the replication task:

export CP_12FACTOR_MODE=1
export CP_COMMAND=replicate
export CP_CONFIG=/etc/casepipe/cases.yaml
export CP_TASK_ARN=arn:aws:dms:eu-west-2:123456789012:task:CASES

Then execute the CLI tool without any arguments or flags.
Set CP_STACK_DUMP=1 to print a stack dump if there is a panic.

`, constants.EnvVarPrefix),
}

func init() {
	rootCmd.AddCommand(twelveFactorCmd)
}
