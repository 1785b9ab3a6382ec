package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/relloyd/casepipe/actions"
	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/logger"
	"github.com/spf13/cobra"
)

type replicateCmdConfig struct {
	ConfigFile string
	TaskArn    string
	StartType  string
	LogLevel   string
}

var replicateCfg replicateCmdConfig

var replicateCmd = &cobra.Command{
	Use:   c.ActionFuncsCommandReplicate,
	Short: "Start the replication task that exports cases to the source bucket",
	Long: `Ask the replication service to start the task named by replication_task_arn
(or --task-arn) and print the status it reports. The command does not wait for
the task to finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplicate()
	},
}

func init() {
	rootCmd.AddCommand(replicateCmd)
	replicateCmd.Flags().SortFlags = false
	switches.addFlag(replicateCmd, &replicateCfg.ConfigFile, "config", "", false, "")
	switches.addFlag(replicateCmd, &replicateCfg.TaskArn, "task-arn", "", false, "")
	switches.addFlag(replicateCmd, &replicateCfg.StartType, "start-type", "", false, "")
	switches.addFlag(replicateCmd, &replicateCfg.LogLevel, "log-level", "info", false, "")
}

func runReplicate() error {
	jobCfg, err := loadJobConfig(replicateCfg.ConfigFile)
	if err != nil {
		return err
	}
	if replicateCfg.StartType != "" {
		jobCfg.Replication.ReplicationStartType = replicateCfg.StartType
	}
	cfg, err := actions.NewReplicationConfig(jobCfg, replicateCfg.TaskArn)
	if err != nil {
		return err
	}
	log := logger.NewLogger(c.ServiceName, replicateCfg.LogLevel, stackDumpOnPanic)
	ctx := context.Background()
	jc, err := actions.NewJobContext(ctx, log, jobCfg, time.Time{})
	if err != nil {
		return err
	}
	defer func() {
		if err := jc.Close(); err != nil {
			log.Warn("error closing catalog: ", err)
		}
	}()
	res, err := actions.RunReplicationTask(ctx, jc, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("replication task %v started with status %q\n", res.TaskArn, res.TaskStatus)
	return nil
}
