// Package cmd provides the command-line interface for memsim.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/memsim/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "memsim",
	Short: "memsim simulates a banked DRAM memory controller.",
	Long: `memsim simulates a banked DRAM memory controller driven by ` +
		`synthetic traffic. Parameters come from a YAML file, from MEMSIM_ ` +
		`variables in the environment or a .env file, and from flags, in ` +
		`that order of precedence.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.String("env-file", ".env", "file with MEMSIM_ variables")
	flags.Uint64("freq-mhz", 0, "controller frequency in MHz")
	flags.Uint64("latency-ns", 0, "access latency in nanoseconds")
	flags.Int("banks", 0, "number of banks, a power of two")
	flags.Int("max-pending", 0, "capacity of the pending queue")
	flags.Int("requests", 0, "number of requests to issue")
	flags.Int64("seed", 0, "traffic generator seed")
}

// loadConfig resolves the configuration of a command. Flags are applied only
// when they are explicitly set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	envFile, _ := flags.GetString("env-file")
	if err := cfg.LoadEnv(envFile); err != nil {
		return cfg, err
	}

	if flags.Changed("freq-mhz") {
		cfg.FreqMHz, _ = flags.GetUint64("freq-mhz")
	}

	if flags.Changed("latency-ns") {
		cfg.LatencyNs, _ = flags.GetUint64("latency-ns")
	}

	if flags.Changed("banks") {
		cfg.NumBanks, _ = flags.GetInt("banks")
	}

	if flags.Changed("max-pending") {
		cfg.MaxPending, _ = flags.GetInt("max-pending")
	}

	if flags.Changed("requests") {
		cfg.Traffic.NumRequests, _ = flags.GetInt("requests")
	}

	if flags.Changed("seed") {
		cfg.Traffic.Seed, _ = flags.GetInt64("seed")
	}

	if flags.Lookup("trace-db") != nil && flags.Changed("trace-db") {
		cfg.TraceDB, _ = flags.GetString("trace-db")
	}

	if flags.Lookup("event-log") != nil && flags.Changed("event-log") {
		cfg.EventLog, _ = flags.GetBool("event-log")
	}

	if flags.Lookup("monitor-port") != nil && flags.Changed("monitor-port") {
		cfg.MonitorPort, _ = flags.GetInt("monitor-port")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("memsim: %w", err)
	}

	return cfg, nil
}
