package metrics

// Metrics output (CSV/JSON) and summary formatting

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

var csvHeader = []string{
	"timestamp",
	"target",
	"name",
	"operation",
	"service",
	"success",
	"rtt_ms",
	"general_status",
	"encap_status",
	"outcome",
	"error",
}

// Writer streams metrics to CSV and/or a JSON array.
type Writer struct {
	csvFile   io.WriteCloser
	csvWriter *csv.Writer
	jsonFile  io.WriteCloser
	jsonCount int
}

// NewWriter creates a writer; an empty path disables that output.
func NewWriter(csvPath, jsonPath string) (*Writer, error) {
	w := &Writer{}

	if csvPath != "" {
		file, err := os.Create(csvPath)
		if err != nil {
			return nil, fmt.Errorf("create CSV file: %w", err)
		}
		w.csvFile = file
		w.csvWriter = csv.NewWriter(file)
		if err := w.csvWriter.Write(csvHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("write CSV header: %w", err)
		}
		w.csvWriter.Flush()
	}

	if jsonPath != "" {
		file, err := os.Create(jsonPath)
		if err != nil {
			if w.csvFile != nil {
				w.csvFile.Close()
			}
			return nil, fmt.Errorf("create JSON file: %w", err)
		}
		w.jsonFile = file
		if _, err := io.WriteString(file, "[\n"); err != nil {
			file.Close()
			if w.csvFile != nil {
				w.csvFile.Close()
			}
			return nil, fmt.Errorf("write JSON start: %w", err)
		}
	}

	return w, nil
}

// WriteMetric writes a single metric
func (w *Writer) WriteMetric(m Metric) error {
	if w.csvWriter != nil {
		record := []string{
			m.Timestamp.Format(time.RFC3339Nano),
			m.Target,
			m.Name,
			string(m.Operation),
			m.Service,
			fmt.Sprintf("%t", m.Success),
			formatRTT(m.RTTMs),
			fmt.Sprintf("0x%02X", m.GeneralStatus),
			fmt.Sprintf("0x%04X", m.EncapStatus),
			string(m.Outcome),
			m.Error,
		}
		if err := w.csvWriter.Write(record); err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
		w.csvWriter.Flush()
	}

	if w.jsonFile != nil {
		data, err := json.MarshalIndent(m, "  ", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		sep := "  "
		if w.jsonCount > 0 {
			sep = ",\n  "
		}
		if _, err := io.WriteString(w.jsonFile, sep+string(data)); err != nil {
			return fmt.Errorf("write JSON: %w", err)
		}
		w.jsonCount++
	}

	return nil
}

// Record implements Recorder so a Writer can be attached to a session directly.
// Write errors are dropped; use WriteMetric to observe them.
func (w *Writer) Record(m Metric) {
	_ = w.WriteMetric(m)
}

// Close closes the writer and flushes all data
func (w *Writer) Close() error {
	var errs []error

	if w.csvWriter != nil {
		w.csvWriter.Flush()
		if err := w.csvWriter.Error(); err != nil {
			errs = append(errs, err)
		}
	}
	if w.csvFile != nil {
		if err := w.csvFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if w.jsonFile != nil {
		if _, err := io.WriteString(w.jsonFile, "\n]\n"); err != nil {
			errs = append(errs, err)
		}
		if err := w.jsonFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close writer: %v", errs)
	}
	return nil
}

// Tee fans a metric out to several recorders.
type Tee []Recorder

func (t Tee) Record(m Metric) {
	for _, r := range t {
		if r != nil {
			r.Record(m)
		}
	}
}

// formatRTT formats RTT value for CSV (empty string if 0)
func formatRTT(rtt float64) string {
	if rtt == 0 {
		return ""
	}
	return fmt.Sprintf("%.3f", rtt)
}

// FormatSummary formats a summary for human-readable output
func FormatSummary(summary *Summary) string {
	var b strings.Builder
	if summary.TotalOperations == 0 {
		b.WriteString("No operations recorded\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Total Operations: %d\n", summary.TotalOperations)
	fmt.Fprintf(&b, "Successful: %d (%.1f%%)\n",
		summary.SuccessfulOps, float64(summary.SuccessfulOps)/float64(summary.TotalOperations)*100)
	fmt.Fprintf(&b, "Failed: %d (%.1f%%)\n",
		summary.FailedOps, float64(summary.FailedOps)/float64(summary.TotalOperations)*100)

	if len(summary.Outcomes) > 0 {
		outcomes := make([]string, 0, len(summary.Outcomes))
		for o := range summary.Outcomes {
			outcomes = append(outcomes, string(o))
		}
		sort.Strings(outcomes)
		b.WriteString("Outcomes:")
		for _, o := range outcomes {
			fmt.Fprintf(&b, " %s=%d", o, summary.Outcomes[Outcome(o)])
		}
		b.WriteString("\n")
	}

	if summary.MaxRTT > 0 {
		b.WriteString("\nRTT Statistics:\n")
		fmt.Fprintf(&b, "  Min: %.3f ms\n", summary.MinRTT)
		fmt.Fprintf(&b, "  Max: %.3f ms\n", summary.MaxRTT)
		fmt.Fprintf(&b, "  Avg: %.3f ms\n", summary.AvgRTT)
		fmt.Fprintf(&b, "  P50: %.3f ms  P90: %.3f ms  P99: %.3f ms\n", summary.P50RTT, summary.P90RTT, summary.P99RTT)
		if len(summary.RTTBuckets) > 0 {
			fmt.Fprintf(&b, "  Buckets: <1ms=%d 1-5ms=%d 5-10ms=%d 10-50ms=%d 50-100ms=%d 100-500ms=%d >500ms=%d\n",
				summary.RTTBuckets["lt_1ms"],
				summary.RTTBuckets["1_5ms"],
				summary.RTTBuckets["5_10ms"],
				summary.RTTBuckets["10_50ms"],
				summary.RTTBuckets["50_100ms"],
				summary.RTTBuckets["100_500ms"],
				summary.RTTBuckets["gt_500ms"],
			)
		}
	}

	if len(summary.RTTByOperation) > 0 {
		ops := make([]string, 0, len(summary.RTTByOperation))
		for op := range summary.RTTByOperation {
			ops = append(ops, string(op))
		}
		sort.Strings(ops)
		b.WriteString("\nPer-Operation Statistics:\n")
		for _, op := range ops {
			stats := summary.RTTByOperation[OperationType(op)]
			fmt.Fprintf(&b, "  %s: %d ops (%d success, %d failed)", op, stats.Count, stats.Success, stats.Failed)
			if stats.MaxRTT > 0 {
				fmt.Fprintf(&b, " - RTT: min=%.3fms, max=%.3fms, avg=%.3fms", stats.MinRTT, stats.MaxRTT, stats.AvgRTT)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}
