// Package metrics holds the Prometheus collectors for oracle calls,
// grading and question generation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OracleRequests counts LLM calls by purpose and outcome (success/failure).
	OracleRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codequiz_oracle_requests_total",
			Help: "Total number of LLM oracle requests",
		},
		[]string{"purpose", "status"},
	)

	OracleLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codequiz_oracle_request_duration_seconds",
			Help:    "Time spent waiting on LLM oracle requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"purpose"},
	)

	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codequiz_embedding_requests_total",
			Help: "Total number of embedding oracle requests",
		},
		[]string{"status"},
	)

	// Evaluations counts graded answers by question type and deciding signal.
	Evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codequiz_evaluations_total",
			Help: "Total number of evaluated answers",
		},
		[]string{"type", "source", "correct"},
	)

	SandboxRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codequiz_sandbox_runs_total",
			Help: "Total number of sandboxed code executions",
		},
		[]string{"language", "outcome"},
	)

	SandboxDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codequiz_sandbox_run_duration_seconds",
			Help:    "Wall-clock time of sandboxed code executions",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"language"},
	)

	// Generations counts generator outcomes: generated, duplicate, random, failed.
	Generations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codequiz_question_generations_total",
			Help: "Total number of question generation outcomes",
		},
		[]string{"type", "source"},
	)

	// DuplicateChecks counts duplicate checks by search path and verdict.
	DuplicateChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codequiz_duplicate_checks_total",
			Help: "Total number of duplicate checks",
		},
		[]string{"path", "result"},
	)

	QuizCompletions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codequiz_quiz_completions_total",
			Help: "Total number of completed quizzes",
		},
	)

	AssignmentSubmissions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codequiz_assignment_submissions_total",
			Help: "Total number of scored assignments",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Status renders an error as a status label.
func Status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
