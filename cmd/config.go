package cmd

import (
	"fmt"
	"sort"

	"github.com/relloyd/casepipe/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show where job settings and default flag values are read from",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobPath, err := config.DefaultConfigFilePath()
		if err != nil {
			return err
		}
		defaultsPath, err := config.DefaultsFilePath()
		if err != nil {
			return err
		}
		fmt.Printf("Job settings (default for --config): %v\n", jobPath)
		fmt.Printf("Default flag values:                 %v\n", defaultsPath)
		return nil
	},
}

var configDefaultListCmd = &cobra.Command{
	Use:   "list-defaults",
	Short: "Print all default flag values",
	Long: `List default flag values stored in ~/.casepipe/defaults.yaml
by printing them all to STDOUT. Keys are flag long-names, for example:

  log-level: debug
  config: /etc/casepipe/cases.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.DefaultsFilePath()
		if err != nil {
			return err
		}
		return listDefaults(config.NewConfigFile(p))
	},
}

func listDefaults(f *config.File) error {
	var val string
	d, err := f.GetAllKeys()
	if err != nil {
		return err
	}
	sort.Strings(d)
	for _, k := range d { // for each key...
		if err := f.Get(k, &val); err != nil {
			return err
		} else {
			fmt.Printf("%v=%v\n", k, val)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDefaultListCmd)
}
