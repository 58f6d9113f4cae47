// Package artifact writes the run record of a batch: run.json with the
// target, timings and aggregate results, and a human-readable summary.txt.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tturner/enipcore/internal/metrics"
)

const (
	RunJSONName = "run.json"
	SummaryName = "summary.txt"
)

// RunMetadata is the content of run.json.
type RunMetadata struct {
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  string    `json:"duration"`

	Config     string `json:"config,omitempty"`
	TargetIP   string `json:"target_ip"`
	TargetPort int    `json:"target_port"`
	Via        string `json:"via,omitempty"`
	Route      string `json:"route,omitempty"`
	Requests   int    `json:"requests"`

	Stats     RunStats      `json:"stats"`
	Error     string        `json:"error,omitempty"`
	Artifacts ArtifactPaths `json:"artifacts"`
}

// RunStats is the aggregate of the run's metrics.
type RunStats struct {
	TotalOperations int            `json:"total_operations"`
	SuccessfulOps   int            `json:"successful_ops"`
	FailedOps       int            `json:"failed_ops"`
	Outcomes        map[string]int `json:"outcomes,omitempty"`
	AvgRTTMs        float64        `json:"avg_rtt_ms"`
	P50RTTMs        float64        `json:"p50_rtt_ms"`
	P95RTTMs        float64        `json:"p95_rtt_ms"`
	P99RTTMs        float64        `json:"p99_rtt_ms"`
	MaxRTTMs        float64        `json:"max_rtt_ms"`
}

// ArtifactPaths lists the other files the run produced.
type ArtifactPaths struct {
	MetricsCSV  string `json:"metrics_csv,omitempty"`
	MetricsJSON string `json:"metrics_json,omitempty"`
	PCAP        string `json:"pcap,omitempty"`
}

// Run collects metadata while a batch runs.
type Run struct {
	dir      string
	metadata RunMetadata
	now      func() time.Time
}

// NewRun creates dir and starts the run clock.
func NewRun(dir string) (*Run, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	r := &Run{dir: dir, now: time.Now}
	start := r.now()
	r.metadata.RunID = start.Format("20060102-150405")
	r.metadata.StartTime = start
	return r, nil
}

// Dir is the run directory.
func (r *Run) Dir() string {
	return r.dir
}

// Metadata returns a copy of the collected metadata.
func (r *Run) Metadata() RunMetadata {
	return r.metadata
}

// SetConfig records the request file and what it targets.
func (r *Run) SetConfig(path, ip string, port int, via string, route []byte, requests int) {
	r.metadata.Config = path
	r.metadata.TargetIP = ip
	r.metadata.TargetPort = port
	r.metadata.Via = via
	r.metadata.Requests = requests
	if len(route) > 0 {
		r.metadata.Route = fmt.Sprintf("%X", route)
	}
}

// SetArtifacts records the metrics and capture paths.
func (r *Run) SetArtifacts(paths ArtifactPaths) {
	r.metadata.Artifacts = paths
}

// Paths returns the files Finalize writes.
func (r *Run) Paths() []string {
	return []string{filepath.Join(r.dir, RunJSONName), filepath.Join(r.dir, SummaryName)}
}

// Finalize stops the clock and writes run.json and summary.txt.
func (r *Run) Finalize(summary *metrics.Summary, runErr error) error {
	r.metadata.EndTime = r.now()
	r.metadata.Duration = r.metadata.EndTime.Sub(r.metadata.StartTime).String()
	if runErr != nil {
		r.metadata.Error = runErr.Error()
	}
	if summary != nil {
		r.metadata.Stats = statsFrom(summary)
	}

	if err := os.WriteFile(filepath.Join(r.dir, SummaryName), []byte(r.summaryText(summary)), 0644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	data, err := json.MarshalIndent(r.metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.dir, RunJSONName), data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", RunJSONName, err)
	}
	return nil
}

func statsFrom(summary *metrics.Summary) RunStats {
	stats := RunStats{
		TotalOperations: summary.TotalOperations,
		SuccessfulOps:   summary.SuccessfulOps,
		FailedOps:       summary.FailedOps,
		AvgRTTMs:        summary.AvgRTT,
		P50RTTMs:        summary.P50RTT,
		P95RTTMs:        summary.P95RTT,
		P99RTTMs:        summary.P99RTT,
		MaxRTTMs:        summary.MaxRTT,
	}
	if len(summary.Outcomes) > 0 {
		stats.Outcomes = make(map[string]int, len(summary.Outcomes))
		for k, v := range summary.Outcomes {
			stats.Outcomes[string(k)] = v
		}
	}
	return stats
}

func (r *Run) summaryText(summary *metrics.Summary) string {
	m := r.metadata
	var b strings.Builder
	b.WriteString("enipcore Batch Summary\n")
	b.WriteString("======================\n\n")
	fmt.Fprintf(&b, "Run ID:     %s\n", m.RunID)
	fmt.Fprintf(&b, "Start Time: %s\n", m.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "End Time:   %s\n", m.EndTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration:   %s\n\n", m.Duration)
	fmt.Fprintf(&b, "Target: %s:%d\n", m.TargetIP, m.TargetPort)
	if m.Via != "" {
		fmt.Fprintf(&b, "Via:    %s\n", m.Via)
	}
	if m.Route != "" {
		fmt.Fprintf(&b, "Route:  %s\n", m.Route)
	}
	b.WriteString("\n")
	if summary != nil {
		b.WriteString(metrics.FormatSummary(summary))
		b.WriteString("\n")
	}
	if m.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n\n", m.Error)
	}
	b.WriteString("Artifacts\n---------\n")
	for _, entry := range []struct{ label, path string }{
		{"Metrics CSV", m.Artifacts.MetricsCSV},
		{"Metrics JSON", m.Artifacts.MetricsJSON},
		{"PCAP", m.Artifacts.PCAP},
	} {
		if entry.path != "" {
			fmt.Fprintf(&b, "%-13s %s\n", entry.label+":", entry.path)
		}
	}
	fmt.Fprintf(&b, "%-13s %s\n", "Run JSON:", RunJSONName)
	return b.String()
}
