package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/casepipe/actions"
	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/logger"
	"github.com/spf13/cobra"
)

type etlCmdConfig struct {
	ConfigFile string
	Mode       string
	RunDate    string
	LogLevel   string
}

var etlCfg etlCmdConfig

var etlCmd = &cobra.Command{
	Use:   c.ActionFuncsCommandEtl,
	Short: "Load new case exports into the materialized table",
	Long: `Load case exports from the source path and write the latest row per case number
to the pipe delimited and Parquet output paths.

A FULL load rebuilds the table from every year=/month=/day= partition.
A DELTA load reads only partitions newer than the table's max partition_date and
merges them with the existing rows, keeping the most recent row per case.

If there are no new files the command exits cleanly without writing output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEtl()
	},
}

func init() {
	rootCmd.AddCommand(etlCmd)
	etlCmd.Flags().SortFlags = false
	switches.addFlag(etlCmd, &etlCfg.Mode, "mode", "", true, "")
	switches.addFlag(etlCmd, &etlCfg.ConfigFile, "config", "", false, "")
	switches.addFlag(etlCmd, &etlCfg.RunDate, "run-date", "", false, "")
	switches.addFlag(etlCmd, &etlCfg.LogLevel, "log-level", "info", false, "")
}

func runEtl() error {
	mode, err := actions.ParseMode(etlCfg.Mode)
	if err != nil {
		return err
	}
	runDate := time.Time{}
	if etlCfg.RunDate != "" {
		if runDate, err = time.Parse(c.TimeFormatDate, etlCfg.RunDate); err != nil {
			return errors.Wrap(err, "bad run date")
		}
	}
	jobCfg, err := loadJobConfig(etlCfg.ConfigFile)
	if err != nil {
		return err
	}
	cfg, err := actions.NewEtlConfig(jobCfg)
	if err != nil {
		return err
	}
	log := logger.NewLogger(c.ServiceName, etlCfg.LogLevel, stackDumpOnPanic)
	ctx := context.Background()
	jc, err := actions.NewJobContext(ctx, log, jobCfg, runDate)
	if err != nil {
		return err
	}
	defer func() {
		if err := jc.Close(); err != nil {
			log.Warn("error closing catalog: ", err)
		}
	}()
	res, err := actions.RunEtl(ctx, jc, cfg, mode)
	if errors.Cause(err) == actions.ErrNoNewFiles { // if there was nothing to load...
		jc.Log.Info("No new files to load")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println(res)
	return nil
}
