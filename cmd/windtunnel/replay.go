package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/farmanp/windtunnel/pkg/replay"
	"github.com/farmanp/windtunnel/pkg/scenario"
	"github.com/farmanp/windtunnel/pkg/scenario/parser"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Args:  cobra.NoArgs,
	Short: "Re-run one recorded instance and diff it against the original run",
	Long: `Replay loads an instance's recorded scenario and correlation ID from a
run directory, re-executes its flow with turbulence and variation disabled,
and reports whether each step's outcome matches the original recording.`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().String("run-dir", "", "path to the run directory (required)")
	replayCmd.Flags().String("instance", "", "instance ID to replay (required)")
	replayCmd.Flags().String("scenario-dir", "", "directory containing scenario YAML files, searched by scenario id")
}

func runReplay(cmd *cobra.Command, args []string) error {
	runDir, _ := cmd.Flags().GetString("run-dir")
	instanceID, _ := cmd.Flags().GetString("instance")
	scenarioDir, _ := cmd.Flags().GetString("scenario-dir")

	if runDir == "" {
		return fmt.Errorf("--run-dir flag is required")
	}
	if instanceID == "" {
		return fmt.Errorf("--instance flag is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	loader := scenarioDirLoader(scenarioDir)
	engine := replay.New(http.DefaultClient, loader)

	result, err := engine.Replay(context.Background(), runDir, instanceID, cfg.SUT)
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode replay result: %w", err)
	}
	fmt.Println(string(encoded))

	if !result.Success {
		return fmt.Errorf("replay diverged from the original recording")
	}
	return nil
}

// scenarioDirLoader resolves a scenario by id, matching each *.yaml/*.yml
// file in dir whose parsed id equals the requested one.
func scenarioDirLoader(dir string) replay.ScenarioLoader {
	return func(id string) (*scenario.Scenario, error) {
		if dir == "" {
			return nil, fmt.Errorf("scenario %q: no --scenario-dir given to search", id)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read scenario dir: %w", err)
		}
		p := parser.New(nil)
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := filepath.Ext(entry.Name())
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			s, err := p.ParseFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				continue
			}
			if s.ID == id {
				return s, nil
			}
		}
		return nil, fmt.Errorf("scenario %q not found under %s", id, dir)
	}
}
