package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	evaluations *prometheus.CounterVec
	latency     prometheus.Histogram
	coalesced   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &metrics{
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "acclive_model_evaluations_total",
			Help: "Model evaluations, by result",
		}, []string{"result"}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "acclive_model_evaluation_seconds",
			Help:    "Model evaluation latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		coalesced: f.NewCounter(prometheus.CounterOpts{
			Name: "acclive_model_coalesced_puts_total",
			Help: "Input writes folded into an evaluation together with later writes",
		}),
	}
}
