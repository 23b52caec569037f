package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ForkLatency    = promauto.NewSummary(prometheus.SummaryOpts{Name: "script_fork_seconds", Help: "Time taken to fork a script"})
	ForkedEntities = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "script_fork_entities",
		Help:    "Number of entities copied per fork",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
	ForksTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "script_forks_total", Help: "Forks created"})

	MergeRequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "merge_requests_created_total",
		Help: "Merge requests submitted",
	})
	MergeRequestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "merge_request_transitions_total",
		Help: "Merge request status changes by new status",
	}, []string{"status"})

	TruthLocks = promauto.NewCounter(prometheus.CounterOpts{Name: "truth_locks_total", Help: "Truth lock writes"})

	AssistLatency  = promauto.NewSummary(prometheus.SummaryOpts{Name: "assist_request_seconds", Help: "Time taken by assist providers"})
	AssistRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assist_requests_total",
		Help: "Assist requests by provider and outcome",
	}, []string{"provider", "outcome"})
)
