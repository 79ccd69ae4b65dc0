// Package metrics exposes the assistant's Prometheus instrumentation. All
// observer methods are nil-safe so wiring metrics stays optional in tests.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters/histograms for the conversation pipeline.
type BotMetrics struct {
	inboundFragments *prometheus.CounterVec
	batchesTotal     *prometheus.CounterVec
	batchSize        prometheus.Histogram
	llmAttempts      *prometheus.CounterVec
	llmLatency       prometheus.Histogram
	outboundChunks   *prometheus.CounterVec
	stageChanges     *prometheus.CounterVec
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		inboundFragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesbot",
			Subsystem: "inbound",
			Name:      "fragments_total",
			Help:      "Total inbound message fragments received from the webhook",
		}, []string{"status"}),
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesbot",
			Subsystem: "batch",
			Name:      "processed_total",
			Help:      "Total debounced batches processed",
		}, []string{"status"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "salesbot",
			Subsystem: "batch",
			Name:      "size_fragments",
			Help:      "Fragments merged per processed batch",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}),
		llmAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesbot",
			Subsystem: "llm",
			Name:      "attempts_total",
			Help:      "Total LLM completion attempts",
		}, []string{"provider", "status"}),
		llmLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "salesbot",
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Latency of LLM completions",
			Buckets:   prometheus.DefBuckets,
		}),
		outboundChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesbot",
			Subsystem: "outbound",
			Name:      "chunks_total",
			Help:      "Total outbound message chunks delivered",
		}, []string{"status"}),
		stageChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesbot",
			Subsystem: "funnel",
			Name:      "stage_changes_total",
			Help:      "Total funnel stage transitions",
		}, []string{"to"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundFragments, m.batchesTotal, m.batchSize,
		m.llmAttempts, m.llmLatency, m.outboundChunks, m.stageChanges)
	return m
}

func (m *BotMetrics) ObserveInboundFragment(status string) {
	if m == nil {
		return
	}
	m.inboundFragments.WithLabelValues(status).Inc()
}

func (m *BotMetrics) ObserveBatch(status string, size int) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(status).Inc()
	m.batchSize.Observe(float64(size))
}

func (m *BotMetrics) ObserveLLMAttempt(provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.llmAttempts.WithLabelValues(provider, status).Inc()
	m.llmLatency.Observe(seconds)
}

func (m *BotMetrics) ObserveOutboundChunk(status string) {
	if m == nil {
		return
	}
	m.outboundChunks.WithLabelValues(status).Inc()
}

func (m *BotMetrics) ObserveStageChange(to string) {
	if m == nil {
		return
	}
	m.stageChanges.WithLabelValues(to).Inc()
}
