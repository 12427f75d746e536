package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/memsim/instrumentation/hooking"
	"github.com/sarchlab/memsim/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation and print a summary.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		var eventLog io.Writer
		if cfg.EventLog {
			eventLog = os.Stderr
		}

		s := buildSimulation(cfg, eventLog)

		if cfg.MonitorPort != 0 {
			openBrowser, _ := cmd.Flags().GetBool("open-browser")
			s.attachMonitor(openBrowser)
		}

		if err := s.runToCompletion(); err != nil {
			return err
		}

		s.recordBankStats()

		out := cmd.OutOrStdout()
		printSummary(out, s)

		return s.ctrl.DumpConfiguration(out)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("trace-db", "", "record request tasks in this SQLite file")
	runCmd.Flags().Bool("event-log", false, "log every event to stderr")
	runCmd.Flags().Int("monitor-port", 0, "serve the monitor on this port")
	runCmd.Flags().Bool("open-browser", false, "open the monitor in a browser")
}

func printSummary(w io.Writer, s *simulation) {
	agent := s.agent.Stats()
	ctrl := s.ctrl.Stats()

	fmt.Fprintf(w, "cycles: %d\n", s.engine.CurrentTime())
	fmt.Fprintf(w, "issued: %d\n", agent.Issued)
	fmt.Fprintf(w, "responded: %d\n", agent.Responded)
	fmt.Fprintf(w, "annulled: %d\n", agent.Annulled)
	fmt.Fprintf(w, "submissions refused: %d\n", agent.SubmitRefused)
	fmt.Fprintf(w, "responses refused: %d\n", agent.ResponsesRefused)
	fmt.Fprintf(w, "merged: %d\n", ctrl.Merged)
	fmt.Fprintf(w, "bank accesses: %d\n", ctrl.TotalAccesses())
	fmt.Fprintf(w, "average latency: %.2f cycles\n", agent.AverageLatency())
	fmt.Fprintf(w, "average service time: %.2f cycles\n",
		s.latency.AverageCycles())

	for _, pos := range []*hooking.HookPos{
		tracing.HookPosReqStart,
		tracing.HookPosReqRetry,
		tracing.HookPosReqAnnul,
	} {
		fmt.Fprintf(w, "%s: %d steps in %d requests\n", pos.Name,
			s.steps.GetStepCount(pos.Name), s.steps.GetTaskCount(pos.Name))
	}
}
