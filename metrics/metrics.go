package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "intake"

var (
	AnswerSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answer_saves_total",
		Help:      "Answer upserts by result (saved, discarded, failed).",
	}, []string{"result"})

	SubmissionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_created_total",
		Help:      "Submissions created, by reason (first_save, fork).",
	}, []string{"reason"})

	SubmissionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_completed_total",
		Help:      "Submissions moved to completed.",
	})

	Resumes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "traversal_resumes_total",
		Help:      "Traversals resumed from an existing submission, by intent and result.",
	}, []string{"intent", "result"})

	Traversals = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "traversals_active",
		Help:      "Traversal sessions currently held by the server.",
	})
)
