package cmd

import (
	"net"
	"time"

	"github.com/relloyd/casepipe/actions"
	"github.com/relloyd/casepipe/config"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a web service that runs loads and replication on request",
	Long: `Start a web service with these endpoints:

  GET  /health               liveness check
  GET  /status               the latest run of each command
  POST /etl/{full|delta}     run a load; optional body {"runDate": "YYYY-MM-DD"}
  POST /replication/start    start the replication task; optional body {"taskArn": "...", "startType": "..."}
  POST /stop                 shut down the server

Only one load and one replication start may run at a time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveConfig.ConfigFile == "" {
			p, err := config.DefaultConfigFilePath()
			if err != nil {
				return err
			}
			serveConfig.ConfigFile = p
		}
		serveConfig.StackDumpOnPanic = stackDumpOnPanic
		return actions.RunWebServer(&serveConfig)
	},
}

var serveConfig = actions.WebServerConfig{
	LogLevel:   "info",
	Scheme:     "http",
	Addr:       net.IP{0, 0, 0, 0},
	Port:       8080,
	RunTimeout: 30 * time.Minute,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().SortFlags = false
	serveCmd.Flags().IPVarP(&serveConfig.Addr, "address", "a", net.IP{0, 0, 0, 0}, "Address to listen on")
	switches.addFlag(serveCmd, &serveConfig.Port, "port", "8080", false, "")
	switches.addFlag(serveCmd, &serveConfig.ConfigFile, "config", "", false, "")
	switches.addFlag(serveCmd, &serveConfig.LogLevel, "log-level", "info", false, "")
	serveCmd.Flags().DurationVar(&serveConfig.RunTimeout, "run-timeout", 30*time.Minute, "The longest a request may take to respond")
}
