package cmd

import (
	"context"
	"fmt"

	"github.com/relloyd/casepipe/actions"
	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/logger"
	"github.com/spf13/cobra"
)

type ddlCmdConfig struct {
	ConfigFile string
	LogLevel   string
	actions.DdlConfig
}

var ddlCfg ddlCmdConfig

var ddlCmd = &cobra.Command{
	Use:   c.ActionFuncsCommandDdl,
	Short: "Print the CREATE TABLE statement for the materialized table",
	Long: `Print the CREATE TABLE statement for the materialized table using the data types
of the chosen database. Use --execute-ddl to create the table in the catalog_dsn database
so that DELTA loads can use catalog_type: sql.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobCfg, err := loadJobConfig(ddlCfg.ConfigFile)
		if err != nil {
			return err
		}
		log := logger.NewLogger(c.ServiceName, ddlCfg.LogLevel, stackDumpOnPanic)
		ddl, err := actions.RunCreateTable(context.Background(), log, jobCfg, &ddlCfg.DdlConfig)
		if err != nil {
			return err
		}
		fmt.Println(ddl)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ddlCmd)
	ddlCmd.Flags().SortFlags = false
	switches.addFlag(ddlCmd, &ddlCfg.ConfigFile, "config", "", false, "")
	switches.addFlag(ddlCmd, &ddlCfg.ConnectionType, "connection-type", "", false, "")
	switches.addFlag(ddlCmd, &ddlCfg.Execute, "execute-ddl", "", false, "")
	switches.addFlag(ddlCmd, &ddlCfg.LogLevel, "log-level", "warn", false, "")
}
