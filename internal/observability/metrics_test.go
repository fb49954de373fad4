package observability

import (
	"testing"
	"time"
)

func TestSnapshotAggregates(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets", "POST", 201, 20*time.Millisecond)
	m.RecordRequest("/tickets", "POST", 409, 40*time.Millisecond)
	m.RecordError("/tickets", "POST", "CONFLICT")
	m.RecordOutcome("claim", "success")
	m.RecordOutcome("claim", "already_done")
	m.RecordOutcome("claim", "already_done")

	s := m.Snapshot()
	if s.Requests["/tickets|POST|201"] != 1 || s.Requests["/tickets|POST|409"] != 1 {
		t.Fatalf("requests = %v", s.Requests)
	}
	if s.Errors["/tickets|POST|CONFLICT"] != 1 {
		t.Fatalf("errors = %v", s.Errors)
	}
	if s.Outcomes["claim|already_done"] != 2 {
		t.Fatalf("outcomes = %v", s.Outcomes)
	}
	if s.MeanLatencyMS["/tickets|POST"] != 30 {
		t.Fatalf("mean latency = %v", s.MeanLatencyMS)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "X")
	m.RecordOutcome("op", "success")
}
