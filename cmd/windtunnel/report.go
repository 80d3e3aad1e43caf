package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/farmanp/windtunnel/pkg/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Args:  cobra.NoArgs,
	Short: "Render an HTML or text report from a completed run's artifacts",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().String("run-dir", "", "path to the run directory (required)")
	reportCmd.Flags().String("format", "html", "report format: html or text")
	reportCmd.Flags().String("output", "", "output file path (default: <run-dir>/report.<format>)")
}

func runReport(cmd *cobra.Command, args []string) error {
	runDir, _ := cmd.Flags().GetString("run-dir")
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")

	if runDir == "" {
		return fmt.Errorf("--run-dir flag is required")
	}

	r, err := report.Load(runDir)
	if err != nil {
		return fmt.Errorf("failed to load run artifacts: %w", err)
	}

	if output == "" {
		output = runDir + "/report." + format
	}

	if err := report.Render(r, report.Format(format), output); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	fmt.Printf("report written to %s\n", output)
	return nil
}
