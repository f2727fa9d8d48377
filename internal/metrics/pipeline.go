package metrics

import "github.com/prometheus/client_golang/prometheus"

// Answer pipeline Prometheus metrics.
var (
	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragdex",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Answer pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"}, // "retrieve" / "rerank" / "generate"
	)

	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "answers_total",
			Help:      "Total answers produced, by outcome",
		},
		[]string{"outcome"}, // "answered" / "no_context" / "error"
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"model", "type"}, // type: "prompt" / "completion"
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers answer pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(PipelineStageDuration)
	prometheus.MustRegister(AnswersTotal)
	prometheus.MustRegister(LLMTokensTotal)
	pipelineMetricsRegistered = true
}
