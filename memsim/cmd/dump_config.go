package cmd

import (
	"github.com/spf13/cobra"
)

var dumpConfigCmd = &cobra.Command{
	Use:   "dump-config",
	Short: "Print the configuration of the memory controller as YAML.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		s := buildSimulation(cfg, nil)

		return s.ctrl.DumpConfiguration(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(dumpConfigCmd)
}
