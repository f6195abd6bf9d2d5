package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	aiCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_calls_total",
			Help: "Outbound model calls per provider/model/variant and outcome.",
		},
		[]string{"provider", "model", "variant", "outcome"},
	)

	aiCallLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_call_latency_ms",
			Help:    "Model call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 20000},
		},
		[]string{"provider", "model", "success"},
	)

	visionCascadeDepth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vision_cascade_depth",
			Help:    "Number of variant attempts before a valid description (or exhaustion).",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 15},
		},
	)
)

func init() { register(aiCalls, aiCallLatency, visionCascadeDepth) }

// ObserveAICall records one outbound model call.
func ObserveAICall(provider, model, variant, outcome string, elapsed time.Duration, ok bool) {
	aiCalls.WithLabelValues(provider, model, variant, outcome).Inc()
	aiCallLatency.WithLabelValues(provider, model, strconv.FormatBool(ok)).Observe(float64(elapsed.Milliseconds()))
}

// ObserveCascadeDepth records how many variants a describe call consumed.
func ObserveCascadeDepth(attempts int) {
	visionCascadeDepth.Observe(float64(attempts))
}
