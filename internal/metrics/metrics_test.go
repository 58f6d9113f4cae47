package metrics

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMetricsSummary(t *testing.T) {
	sink := NewSink()
	sink.Record(Metric{Operation: OperationRegister, Success: true, RTTMs: 2, Outcome: OutcomeSuccess})
	sink.Record(Metric{Operation: OperationSend, Success: true, RTTMs: 5, Outcome: OutcomeSuccess})
	sink.Record(Metric{Operation: OperationSend, Success: false, RTTMs: 10, Outcome: OutcomeCIPError, GeneralStatus: 0x05})
	sink.Record(Metric{Operation: OperationSend, Success: false, Outcome: OutcomeTimeout, Error: "i/o timeout"})

	summary := sink.GetSummary()
	if summary.TotalOperations != 4 {
		t.Fatalf("expected total ops 4, got %d", summary.TotalOperations)
	}
	if summary.SuccessfulOps != 2 || summary.FailedOps != 2 {
		t.Fatalf("unexpected success/fail counts: %d/%d", summary.SuccessfulOps, summary.FailedOps)
	}
	if summary.Outcomes[OutcomeTimeout] != 1 || summary.Outcomes[OutcomeCIPError] != 1 {
		t.Fatalf("unexpected outcomes: %v", summary.Outcomes)
	}
	if summary.MinRTT != 2 || summary.MaxRTT != 10 {
		t.Fatalf("min/max RTT = %v/%v", summary.MinRTT, summary.MaxRTT)
	}
	if summary.P50RTT != 5 || summary.P99RTT != 10 {
		t.Fatalf("percentiles P50=%v P99=%v", summary.P50RTT, summary.P99RTT)
	}
	send := summary.RTTByOperation[OperationSend]
	if send == nil || send.Count != 3 || send.Success != 1 || send.Failed != 2 || send.AvgRTT != 7.5 {
		t.Fatalf("send stats = %+v", send)
	}
	if summary.RTTBuckets["1_5ms"] != 1 || summary.RTTBuckets["5_10ms"] != 1 || summary.RTTBuckets["10_50ms"] != 1 {
		t.Fatalf("buckets = %v", summary.RTTBuckets)
	}

	text := FormatSummary(summary)
	for _, want := range []string{"Total Operations: 4", "timeout=1", "SEND: 3 ops"} {
		if !strings.Contains(text, want) {
			t.Fatalf("summary missing %q:\n%s", want, text)
		}
	}
}

func TestCIPErrorRepliesKeepTheirRTT(t *testing.T) {
	sink := NewSink()
	sink.Record(Metric{Operation: OperationSend, Success: false, RTTMs: 4, Outcome: OutcomeCIPError})
	sink.Record(Metric{Operation: OperationSend, Success: false, RTTMs: 9, Outcome: OutcomeTransport})

	summary := sink.GetSummary()
	if summary.SuccessfulOps != 0 || summary.FailedOps != 2 {
		t.Fatalf("success/fail = %d/%d, want 0/2", summary.SuccessfulOps, summary.FailedOps)
	}
	if summary.AvgRTT != 4 || summary.MaxRTT != 4 || summary.P99RTT != 4 {
		t.Fatalf("RTT avg/max/p99 = %v/%v/%v, want only the CIP error reply", summary.AvgRTT, summary.MaxRTT, summary.P99RTT)
	}
}

func TestSummaryIsACopy(t *testing.T) {
	sink := NewSink()
	sink.Record(Metric{Operation: OperationSend, Success: true, RTTMs: 1})
	summary := sink.GetSummary()
	summary.RTTByOperation[OperationSend].Count = 99
	if sink.GetSummary().RTTByOperation[OperationSend].Count != 1 {
		t.Fatalf("summary shares state with the sink")
	}
}

func TestWriterCSVAndJSON(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "m.csv")
	jsonPath := filepath.Join(dir, "m.json")
	w, err := NewWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	Tee{w, nil}.Record(Metric{Timestamp: ts, Target: "10.0.0.1:44818", Operation: OperationSend, Service: "Get_Attribute_Single", Success: true, RTTMs: 1.5})
	if err := w.WriteMetric(Metric{Timestamp: ts, Operation: OperationSend, Outcome: OutcomeTransport, Error: "connection closed"}); err != nil {
		t.Fatalf("WriteMetric failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 || records[1][6] != "1.500" || records[2][10] != "connection closed" {
		t.Fatalf("csv records = %v", records)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded []Metric
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json output invalid: %v\n%s", err, data)
	}
	if len(decoded) != 2 || decoded[0].Service != "Get_Attribute_Single" {
		t.Fatalf("json metrics = %+v", decoded)
	}
}
