package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts turn outcomes. Register it once per registry.
type Metrics struct {
	turns       *prometheus.CounterVec
	ttsFailures prometheus.Counter
	llmDuration prometheus.Histogram
}

// NewMetrics registers the engine collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fateweaver_turns_total",
				Help: "Turns generated, by outcome.",
			},
			[]string{"outcome"},
		),
		ttsFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fateweaver_tts_failures_total",
			Help: "Speech synthesis failures that left a turn without audio.",
		}),
		llmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fateweaver_llm_request_duration_seconds",
			Help:    "Latency of language model calls.",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32, 64},
		}),
	}
	for _, c := range []prometheus.Collector{m.turns, m.ttsFailures, m.llmDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) turn(outcome string) {
	if m != nil {
		m.turns.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ttsFailed() {
	if m != nil {
		m.ttsFailures.Inc()
	}
}

func (m *Metrics) observeLLM(seconds float64) {
	if m != nil {
		m.llmDuration.Observe(seconds)
	}
}
