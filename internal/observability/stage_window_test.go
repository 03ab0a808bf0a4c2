package observability

import (
	"testing"
	"time"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe(StageRouteDecided, 500)
	w.Observe(StageRouteDecided, 700)
	w.Observe(StageRouteDecided, 3000)
	w.Count("loan_fallback")
	w.Count("loan_fallback")
	w.Count("  ")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageRouteDecided || s.Samples != 3 {
		t.Fatalf("stage = %+v", s)
	}
	if s.LastMS != 3000 {
		t.Fatalf("LastMS = %.2f, want 3000", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 3000 {
		t.Fatalf("P95MS = %.2f, want (700,3000]", s.P95MS)
	}
	if s.TargetP95MS != 2500 || s.OverTarget != 1 {
		t.Fatalf("target = %.0f over = %d, want 2500 and 1", s.TargetP95MS, s.OverTarget)
	}
	if len(snap.Counters) != 1 || snap.Counters[0] != (Counter{Name: "loan_fallback", Count: 2}) {
		t.Fatalf("Counters = %+v, want loan_fallback x2", snap.Counters)
	}
}

func TestStageWindowKeepsLatestSamples(t *testing.T) {
	w := newStageWindow(2)
	w.Observe(StageTurnTotal, 10)
	w.Observe(StageTurnTotal, 20)
	w.Observe(StageTurnTotal, 30)

	s := w.Snapshot().Stages[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.AvgMS != 25 {
		t.Fatalf("AvgMS = %.2f, want 25", s.AvgMS)
	}
}

func TestStageWindowReset(t *testing.T) {
	w := newStageWindow(4)
	w.Observe(StageAgentReply, 1200)
	w.Count("analytics_fallback")
	w.Reset()

	snap := w.Snapshot()
	if len(snap.Stages) != 0 || len(snap.Counters) != 0 {
		t.Fatalf("snapshot after reset = %+v, want empty", snap)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStage(StageTurnTotal, time.Second)
	m.ObserveLLMCall(time.Second, nil)
	m.ObserveAgentFallback("loan")
	m.ResetStages()
	if snap := m.SnapshotStages(); len(snap.Stages) != 0 {
		t.Fatalf("nil metrics snapshot should be empty, got %+v", snap)
	}
}
