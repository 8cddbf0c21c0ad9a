package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askolist_questions_total",
			Help: "Total number of questions answered, by pipeline outcome.",
		},
		[]string{"outcome"},
	)
	repairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askolist_repairs_total",
			Help: "Total number of repair attempts after a failed statement, by result.",
		},
		[]string{"result"},
	)
	llmCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askolist_llm_call_duration_seconds",
			Help:    "Language model call latency by pipeline stage.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"stage"},
	)
	llmErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askolist_llm_errors_total",
			Help: "Total number of failed language model calls by pipeline stage.",
		},
		[]string{"stage"},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askolist_query_duration_seconds",
			Help:    "Statement execution latency by status.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"status"},
	)
	datasetRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "askolist_dataset_rows",
			Help: "Row count of the dataset currently bound for questions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		repairsTotal,
		llmCallDurationSeconds,
		llmErrorsTotal,
		queryDurationSeconds,
		datasetRows,
	)
}

func ObserveQuestion(outcome string) {
	questionsTotal.WithLabelValues(outcome).Inc()
}

func ObserveRepair(result string) {
	repairsTotal.WithLabelValues(result).Inc()
}

func ObserveLLMCall(stage string, elapsed time.Duration, err error) {
	llmCallDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		llmErrorsTotal.WithLabelValues(stage).Inc()
	}
}

func ObserveQuery(status string, elapsed time.Duration) {
	queryDurationSeconds.WithLabelValues(status).Observe(elapsed.Seconds())
}

func SetDatasetRows(rows int64) {
	if rows < 0 {
		rows = 0
	}
	datasetRows.Set(float64(rows))
}
