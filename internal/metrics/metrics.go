package metrics

// Per-exchange metrics for encapsulation sessions

import (
	"math"
	"sort"
	"sync"
	"time"
)

// OperationType is the kind of exchange a metric describes.
type OperationType string

const (
	OperationRegister   OperationType = "REGISTER"
	OperationSend       OperationType = "SEND"
	OperationUnregister OperationType = "UNREGISTER"
)

// Outcome classifies how an exchange ended.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeCIPError    Outcome = "cip_error"
	OutcomeEncapError  Outcome = "encap_error"
	OutcomeRejected    Outcome = "rejected"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeTransport   Outcome = "transport"
	OutcomeFormatError Outcome = "format_error"
)

// Metric is one request/reply exchange.
type Metric struct {
	Timestamp     time.Time     `json:"timestamp"`
	Target        string        `json:"target"`
	Name          string        `json:"name,omitempty"`
	Operation     OperationType `json:"operation"`
	Service       string        `json:"service,omitempty"`
	Success       bool          `json:"success"`
	RTTMs         float64       `json:"rtt_ms"`
	GeneralStatus uint8         `json:"general_status"`
	EncapStatus   uint32        `json:"encap_status"`
	Outcome       Outcome       `json:"outcome"`
	Error         string        `json:"error,omitempty"`
}

// Completed reports whether a reply came back, including CIP error replies.
// Completed exchanges carry a round-trip time.
func (m Metric) Completed() bool {
	return m.Success || m.Outcome == OutcomeCIPError
}

// Recorder receives metrics. Sink implements it; sessions accept any Recorder.
type Recorder interface {
	Record(m Metric)
}

// Sink collects and aggregates metrics
type Sink struct {
	mu      sync.RWMutex
	metrics []Metric
	summary *Summary
}

// Summary contains aggregated statistics
type Summary struct {
	TotalOperations int
	SuccessfulOps   int
	FailedOps       int
	Outcomes        map[Outcome]int
	MinRTT          float64
	MaxRTT          float64
	AvgRTT          float64
	P50RTT          float64
	P90RTT          float64
	P95RTT          float64
	P99RTT          float64
	RTTBuckets      map[string]int
	RTTByOperation  map[OperationType]*OperationStats

	timed int
}

// OperationStats contains statistics for a specific operation type
type OperationStats struct {
	Count   int
	Success int
	Failed  int
	MinRTT  float64
	MaxRTT  float64
	AvgRTT  float64
	SumRTT  float64

	timed int
}

func newSummary() *Summary {
	return &Summary{
		Outcomes:       make(map[Outcome]int),
		RTTBuckets:     make(map[string]int),
		RTTByOperation: make(map[OperationType]*OperationStats),
	}
}

// NewSink creates a new metrics sink
func NewSink() *Sink {
	return &Sink{summary: newSummary()}
}

// Record records a new metric
func (s *Sink) Record(m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics = append(s.metrics, m)
	s.updateSummary(m)
}

// GetMetrics returns a copy of all recorded metrics
func (s *Sink) GetMetrics() []Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Metric, len(s.metrics))
	copy(out, s.metrics)
	return out
}

// GetSummary returns a copy of the aggregated summary with percentiles filled in.
func (s *Sink) GetSummary() *Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := newSummary()
	summary.TotalOperations = s.summary.TotalOperations
	summary.SuccessfulOps = s.summary.SuccessfulOps
	summary.FailedOps = s.summary.FailedOps
	summary.MinRTT = s.summary.MinRTT
	summary.MaxRTT = s.summary.MaxRTT
	summary.AvgRTT = s.summary.AvgRTT
	summary.timed = s.summary.timed
	for k, v := range s.summary.Outcomes {
		summary.Outcomes[k] = v
	}
	for op, stats := range s.summary.RTTByOperation {
		copied := *stats
		summary.RTTByOperation[op] = &copied
	}

	rtts := make([]float64, 0, len(s.metrics))
	for _, m := range s.metrics {
		if m.Completed() && m.RTTMs > 0 {
			rtts = append(rtts, m.RTTMs)
			incrementBucket(summary.RTTBuckets, m.RTTMs)
		}
	}
	p := computePercentiles(rtts)
	summary.P50RTT, summary.P90RTT, summary.P95RTT, summary.P99RTT = p[0], p[1], p[2], p[3]
	return summary
}

func (s *Sink) updateSummary(m Metric) {
	s.summary.TotalOperations++
	if m.Outcome != "" {
		s.summary.Outcomes[m.Outcome]++
	}
	if m.Success {
		s.summary.SuccessfulOps++
	} else {
		s.summary.FailedOps++
	}

	if m.Completed() && m.RTTMs > 0 {
		if s.summary.MinRTT == 0 || m.RTTMs < s.summary.MinRTT {
			s.summary.MinRTT = m.RTTMs
		}
		if m.RTTMs > s.summary.MaxRTT {
			s.summary.MaxRTT = m.RTTMs
		}
		s.summary.timed++
		total := s.summary.AvgRTT * float64(s.summary.timed-1)
		s.summary.AvgRTT = (total + m.RTTMs) / float64(s.summary.timed)
	}

	opStats, exists := s.summary.RTTByOperation[m.Operation]
	if !exists {
		opStats = &OperationStats{}
		s.summary.RTTByOperation[m.Operation] = opStats
	}
	opStats.Count++
	if m.Success {
		opStats.Success++
	} else {
		opStats.Failed++
	}
	if m.Completed() && m.RTTMs > 0 {
		if opStats.MinRTT == 0 || m.RTTMs < opStats.MinRTT {
			opStats.MinRTT = m.RTTMs
		}
		if m.RTTMs > opStats.MaxRTT {
			opStats.MaxRTT = m.RTTMs
		}
		opStats.SumRTT += m.RTTMs
		opStats.timed++
		opStats.AvgRTT = opStats.SumRTT / float64(opStats.timed)
	}
}

func incrementBucket(buckets map[string]int, value float64) {
	switch {
	case value < 1:
		buckets["lt_1ms"]++
	case value < 5:
		buckets["1_5ms"]++
	case value < 10:
		buckets["5_10ms"]++
	case value < 50:
		buckets["10_50ms"]++
	case value < 100:
		buckets["50_100ms"]++
	case value < 500:
		buckets["100_500ms"]++
	default:
		buckets["gt_500ms"]++
	}
}

func computePercentiles(values []float64) [4]float64 {
	var result [4]float64
	if len(values) == 0 {
		return result
	}
	sort.Float64s(values)
	result[0] = percentile(values, 0.50)
	result[1] = percentile(values, 0.90)
	result[2] = percentile(values, 0.95)
	result[3] = percentile(values, 0.99)
	return result
}

func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
