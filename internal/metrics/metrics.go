package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 对话流程的 prometheus 指标，nil 接收者上的方法都是空操作
type Metrics struct {
	turns      *prometheus.CounterVec
	retrieval  prometheus.Histogram
	generation prometheus.Histogram
	cache      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_turns_total",
			Help: "Completed turns by outcome.",
		}, []string{"outcome"}),
		retrieval: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "assistant_retrieval_seconds",
			Help:    "Latency of embedding plus similarity search.",
			Buckets: prometheus.DefBuckets,
		}),
		generation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "assistant_generation_seconds",
			Help:    "Latency of the completion call.",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32},
		}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_embed_cache_total",
			Help: "Embedding cache lookups by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.turns, m.retrieval, m.generation, m.cache)
	}
	return m
}

func (m *Metrics) Turn(outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRetrieval(d time.Duration) {
	if m == nil {
		return
	}
	m.retrieval.Observe(d.Seconds())
}

func (m *Metrics) ObserveGeneration(d time.Duration) {
	if m == nil {
		return
	}
	m.generation.Observe(d.Seconds())
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cache.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cache.WithLabelValues("miss").Inc()
}
