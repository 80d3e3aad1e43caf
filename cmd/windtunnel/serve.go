package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/farmanp/windtunnel/pkg/logging"
	"github.com/farmanp/windtunnel/pkg/report"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Args:  cobra.NoArgs,
	Short: "Serve a read-only websocket tail of a run's steps as they're recorded",
	Long: `serve is an advisory convenience surface: it exposes one endpoint,
/ws, which streams steps.jsonl lines as they are appended to a run
directory. It does not start, stop, or control a run.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("run-dir", "", "path to the run directory to tail (required)")
	serveCmd.Flags().String("addr", ":8090", "address to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	runDir, _ := cmd.Flags().GetString("run-dir")
	addr, _ := cmd.Flags().GetString("addr")

	if runDir == "" {
		return fmt.Errorf("--run-dir flag is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Level:  logging.LogLevelInfo,
		Format: logging.LogFormat(cfg.Framework.LogFormat),
		Output: os.Stdout,
	})

	server := report.NewTailServer(runDir, logger)
	mux := http.NewServeMux()
	mux.Handle("/ws", server.Handler())

	logger.Info("serving run tail", "run_dir", runDir, "addr", addr)
	return http.ListenAndServe(addr, mux)
}
