package webtoonquiz

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webtoonquiz_generations_total",
			Help: "Quiz generation calls by outcome",
		},
		[]string{"provider", "outcome"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webtoonquiz_generation_duration_seconds",
			Help:    "Duration of provider generation calls",
			Buckets: []float64{1, 5, 10, 20, 40, 80, 160},
		},
		[]string{"provider"},
	)

	countMismatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webtoonquiz_question_count_mismatch_total",
			Help: "Responses whose question count differed from the requested count",
		},
	)
)

// RegisterMetrics registers the package collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{generationsTotal, generationDuration, countMismatches} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return string(genErr.Kind)
	}
	return "error"
}
