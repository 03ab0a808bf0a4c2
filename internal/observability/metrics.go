package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ChatRequests    *prometheus.CounterVec
	RouteDecisions  *prometheus.CounterVec
	AgentFallbacks  *prometheus.CounterVec
	LLMCalls        *prometheus.CounterVec
	LLMLatency      prometheus.Histogram
	CompactionRuns  *prometheus.CounterVec
	WSMessages      *prometheus.CounterVec
	ChatTurnLatency prometheus.Histogram
	stages          *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ChatRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"outcome"}),
		RouteDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Routing decisions by capability and source.",
		}, []string{"capability", "source"}),
		AgentFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_fallbacks_total",
			Help:      "Agent replies produced by the deterministic fallback, by agent.",
		}, []string{"agent"}),
		LLMCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Language model calls by result.",
		}, []string{"result"}),
		LLMLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_ms",
			Help:      "Language model call latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}),
		CompactionRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_compaction_runs_total",
			Help:      "Conversation memory compaction runs by result.",
		}, []string{"result"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ChatTurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_turn_latency_ms",
			Help:      "End-to-end chat turn latency in milliseconds.",
			Buckets:   []float64{200, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}),
		stages: newStageWindow(512),
	}
}

// ObserveLLMCall records one model call. Nil receivers are ignored so callers
// can run without metrics in tests.
func (m *Metrics) ObserveLLMCall(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.LLMCalls.WithLabelValues(result).Inc()
	m.LLMLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveRoute(capability, source string) {
	if m == nil {
		return
	}
	m.RouteDecisions.WithLabelValues(capability, source).Inc()
}

func (m *Metrics) ObserveAgentFallback(agent string) {
	if m == nil {
		return
	}
	m.AgentFallbacks.WithLabelValues(agent).Inc()
	m.stages.Count(agent + "_fallback")
}

func (m *Metrics) ObserveCompaction(result string) {
	if m == nil {
		return
	}
	m.CompactionRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveChatRequest(outcome string) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(outcome).Inc()
}

// ObserveStage records a pipeline stage duration in the rolling latency window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.stages.Observe(stage, ms)
	if stage == StageTurnTotal {
		m.ChatTurnLatency.Observe(ms)
	}
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	}
	return m.stages.Snapshot()
}

func (m *Metrics) ResetStages() {
	if m == nil {
		return
	}
	m.stages.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
