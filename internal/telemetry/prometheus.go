package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Attribute keys understood by PrometheusSink.
const (
	AttrPercentage = "percentage"
	AttrLatencyMS  = "latency_ms"
	AttrPurpose    = "purpose"
	AttrSuccess    = "success"
)

// Metrics holds the Prometheus collectors fed by telemetry events.
type Metrics struct {
	events     *prometheus.CounterVec
	scores     prometheus.Histogram
	active     prometheus.Gauge
	llmLatency *prometheus.HistogramVec
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered. Other registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskdrill",
			Name:      "events_total",
			Help:      "Telemetry events by type.",
		},
		[]string{"type"},
	)
	scores := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "riskdrill",
		Subsystem: "scoring",
		Name:      "percentage",
		Help:      "Distribution of item score percentages.",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	})
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskdrill",
		Subsystem: "session",
		Name:      "active",
		Help:      "Sessions started and not yet completed or abandoned.",
	})
	llmLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskdrill",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "LLM request latency by purpose and outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"purpose", "status"},
	)

	collectors := []prometheus.Collector{events, scores, active, llmLatency}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				panic(err)
			}
			switch c {
			case events:
				events = already.ExistingCollector.(*prometheus.CounterVec)
			case scores:
				scores = already.ExistingCollector.(prometheus.Histogram)
			case active:
				active = already.ExistingCollector.(prometheus.Gauge)
			case llmLatency:
				llmLatency = already.ExistingCollector.(*prometheus.HistogramVec)
			}
		}
	}
	return &Metrics{events: events, scores: scores, active: active, llmLatency: llmLatency}
}

// PrometheusSink updates Metrics from events.
type PrometheusSink struct {
	M *Metrics
}

func (s PrometheusSink) Emit(e Event) {
	m := s.M
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(e.Type)).Inc()
	switch e.Type {
	case SessionStarted:
		m.active.Inc()
	case SessionCompleted, SessionAbandoned:
		m.active.Dec()
	case ResponseScored:
		if p, ok := e.Float(AttrPercentage); ok {
			m.scores.Observe(p)
		}
	case LLMRequest:
		ms, ok := e.Float(AttrLatencyMS)
		if !ok {
			return
		}
		status := "ok"
		if success, _ := e.Attrs[AttrSuccess].(bool); !success {
			status = "error"
		}
		m.llmLatency.WithLabelValues(e.String(AttrPurpose), status).Observe((time.Duration(ms) * time.Millisecond).Seconds())
	}
}
