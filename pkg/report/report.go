// Package report renders human-readable summaries of a completed run
// from its JSONL artifacts, and serves a read-only step-tailing endpoint
// for operators watching a run in progress.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/farmanp/windtunnel/pkg/artifact"
	"github.com/farmanp/windtunnel/pkg/runner"
)

// Format names a report rendering.
type Format string

const (
	FormatHTML Format = "html"
	FormatText Format = "text"
)

// Report aggregates a run's artifacts for rendering.
type Report struct {
	Manifest  artifact.Manifest
	Summary   artifact.Summary
	Instances []runner.InstanceResult
}

// Load reads a run's manifest, summary, and instance records from disk.
func Load(runDir string) (*Report, error) {
	manifestData, err := os.ReadFile(filepath.Join(runDir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest artifact.Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	summaryData, err := os.ReadFile(filepath.Join(runDir, "summary.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}
	var summary artifact.Summary
	if err := json.Unmarshal(summaryData, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}

	instances, err := artifact.ReadInstances(runDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read instances: %w", err)
	}

	return &Report{Manifest: manifest, Summary: summary, Instances: instances}, nil
}

// Render writes a report to outputPath in the given format.
func Render(r *Report, format Format, outputPath string) error {
	switch format {
	case FormatHTML:
		return renderHTML(r, outputPath)
	case FormatText:
		return renderText(r, outputPath)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

func renderHTML(r *Report, outputPath string) error {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatTime": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
		"statusClass": func(passed bool) string {
			if passed {
				return "pass"
			}
			return "fail"
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse HTML template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	if err := os.WriteFile(outputPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write HTML report: %w", err)
	}
	return nil
}

func renderText(r *Report, outputPath string) error {
	var buf bytes.Buffer

	buf.WriteString(strings.Repeat("=", 72) + "\n")
	buf.WriteString("  WINDTUNNEL RUN REPORT\n")
	buf.WriteString(strings.Repeat("=", 72) + "\n\n")

	buf.WriteString(fmt.Sprintf("Run ID:       %s\n", r.Summary.RunID))
	buf.WriteString(fmt.Sprintf("Started:      %s\n", r.Manifest.Timestamp.Format(time.RFC3339)))
	buf.WriteString(fmt.Sprintf("Completed:    %s\n", r.Summary.CompletedAt.Format(time.RFC3339)))
	buf.WriteString(fmt.Sprintf("Duration:     %.1fms\n", r.Summary.DurationMS))
	buf.WriteString(fmt.Sprintf("Instances:    %d total, %d passed, %d failed, %d errored, %d cancelled\n",
		r.Summary.TotalInstances, r.Summary.PassCount, r.Summary.FailCount, r.Summary.ErrorCount, r.Summary.CancelledCount))
	buf.WriteString(fmt.Sprintf("Pass rate:    %.1f%% of instances\n", r.Summary.PassRate))
	buf.WriteString(fmt.Sprintf("Assertions:   %d/%d passed\n\n", r.Summary.AssertionsPassed, r.Summary.TotalAssertions))

	buf.WriteString("INSTANCES\n")
	buf.WriteString(strings.Repeat("-", 72) + "\n")
	for i, inst := range r.Instances {
		status := "PASS"
		if !inst.Passed {
			status = "FAIL"
		}
		buf.WriteString(fmt.Sprintf("%d. [%s] %s (steps=%d, assertions=%d/%d)\n",
			i+1, status, inst.InstanceID, inst.StepsExecuted, inst.AssertionsPassed, inst.AssertionsRun))
		if inst.Error != "" {
			buf.WriteString(fmt.Sprintf("   error: %s\n", inst.Error))
		}
	}

	buf.WriteString("\n" + strings.Repeat("=", 72) + "\n")

	if err := os.WriteFile(outputPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write text report: %w", err)
	}
	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>windtunnel run report - {{.Summary.RunID}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; max-width: 960px; margin: 0 auto; padding: 24px; color: #222; }
        h1, h2 { border-bottom: 2px solid #3a6ea5; padding-bottom: 8px; }
        table { width: 100%; border-collapse: collapse; margin: 16px 0; }
        th, td { padding: 8px 12px; text-align: left; border-bottom: 1px solid #ddd; }
        th { background: #3a6ea5; color: #fff; }
        .pass { color: #1a7f37; font-weight: bold; }
        .fail { color: #c4273c; font-weight: bold; }
    </style>
</head>
<body>
    <h1>windtunnel run report</h1>
    <p>Run ID: {{.Summary.RunID}}</p>
    <p>Started: {{formatTime .Manifest.Timestamp}} &mdash; Completed: {{formatTime .Summary.CompletedAt}}</p>
    <p>Duration: {{.Summary.DurationMS}}ms</p>

    <h2>Summary</h2>
    <table>
        <tr><th>Total</th><th>Passed</th><th>Failed</th><th>Errored</th><th>Cancelled</th><th>Assertions</th><th>Pass rate</th></tr>
        <tr>
            <td>{{.Summary.TotalInstances}}</td>
            <td>{{.Summary.PassCount}}</td>
            <td>{{.Summary.FailCount}}</td>
            <td>{{.Summary.ErrorCount}}</td>
            <td>{{.Summary.CancelledCount}}</td>
            <td>{{.Summary.AssertionsPassed}}/{{.Summary.TotalAssertions}}</td>
            <td>{{.Summary.PassRate}}%</td>
        </tr>
    </table>

    <h2>Instances</h2>
    <table>
        <tr><th>Instance</th><th>Status</th><th>Steps</th><th>Assertions</th><th>Error</th></tr>
        {{range .Instances}}
        <tr>
            <td>{{.InstanceID}}</td>
            <td class="{{statusClass .Passed}}">{{if .Passed}}PASS{{else}}FAIL{{end}}</td>
            <td>{{.StepsExecuted}}</td>
            <td>{{.AssertionsPassed}}/{{.AssertionsRun}}</td>
            <td>{{.Error}}</td>
        </tr>
        {{end}}
    </table>
</body>
</html>
`
