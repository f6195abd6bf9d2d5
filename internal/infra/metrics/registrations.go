package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	lookupOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookup_outcomes_total",
			Help: "Commerce lookup outcomes by source and status.",
		},
		[]string{"source", "status"},
	)

	tagSourceCounts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tag_source_tags_total",
			Help: "Tags contributed per source (image, description, commerce, heuristic).",
		},
		[]string{"source"},
	)

	commitOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commit_outcomes_total",
			Help: "Registration commit outcomes by flow and status.",
		},
		[]string{"flow", "status"},
	)
)

func init() { register(lookupOutcomes, tagSourceCounts, commitOutcomes) }

func ObserveLookup(source, status string) { lookupOutcomes.WithLabelValues(source, status).Inc() }

func AddTagsFromSource(source string, n int) {
	if n > 0 {
		tagSourceCounts.WithLabelValues(source).Add(float64(n))
	}
}

func ObserveCommit(flow, status string) { commitOutcomes.WithLabelValues(flow, status).Inc() }
