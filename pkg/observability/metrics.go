// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the question orchestration service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// StepBuckets covers answer engine step counts up to the default cap.
var StepBuckets = []float64{1, 2, 3, 5, 8, 13, 25}

var (
	// RequestsTotal counts HTTP requests by route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askgs_requests_total",
			Help: "HTTP requests by route and status class",
		},
		[]string{"route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askgs_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: LLMBuckets,
		},
		[]string{"route"},
	)

	// PipelineOutcomesTotal counts finished pipeline runs by terminal outcome
	// (answered, no_context, refused, refused_unsafe, refused_profane,
	// context_unavailable, error).
	PipelineOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askgs_pipeline_outcomes_total",
			Help: "Pipeline outcomes",
		},
		[]string{"outcome"},
	)

	// PipelineErrorsTotal counts pipeline failures by numeric error code.
	PipelineErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askgs_pipeline_errors_total",
			Help: "Pipeline errors",
		},
		[]string{"code"},
	)

	// StageDuration records how long each pipeline stage took.
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askgs_stage_duration_seconds",
			Help:    "Pipeline stage duration",
			Buckets: LLMBuckets,
		},
		[]string{"stage"},
	)

	// GatewayRequestsTotal counts completion calls sent to the LLM gateway.
	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askgs_gateway_requests_total",
			Help: "Gateway requests",
		},
		[]string{"provider", "model", "status"},
	)

	// GatewayLatency records gateway latency in seconds, retries included.
	GatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askgs_gateway_latency_seconds",
			Help:    "Gateway latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// GatewayRetriesTotal counts retried gateway attempts.
	GatewayRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askgs_gateway_retries_total",
			Help: "Gateway retries",
		},
		[]string{"provider"},
	)

	// GatewayTokensTotal counts tokens processed by direction (input/output).
	GatewayTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askgs_gateway_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// AnswerEngineSteps records how many steps the answer engine produced
	// before its final answer.
	AnswerEngineSteps = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askgs_answer_engine_steps",
			Help:    "Answer engine steps per question",
			Buckets: StepBuckets,
		},
		[]string{"engine"},
	)

	// SessionsActive tracks conversations held by the in-memory store.
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "askgs_sessions_active",
			Help: "Active conversation sessions",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askgs_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		PipelineOutcomesTotal,
		PipelineErrorsTotal,
		StageDuration,
		GatewayRequestsTotal,
		GatewayLatency,
		GatewayRetriesTotal,
		GatewayTokensTotal,
		AnswerEngineSteps,
		SessionsActive,
		RateLimitRejectedTotal,
	)
}
