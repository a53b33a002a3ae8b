package pvserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests    *prometheus.CounterVec
	puts        *prometheus.CounterVec
	dropped     prometheus.Counter
	connections prometheus.Gauge
	monitors    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "acclive_pvserver_requests_total",
			Help: "Requests handled, by operation and status",
		}, []string{"op", "status"}),
		puts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "acclive_pvserver_puts_total",
			Help: "Client writes, by result",
		}, []string{"result"}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "acclive_pvserver_notifications_dropped_total",
			Help: "Monitor notifications dropped because a client fell behind",
		}),
		connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "acclive_pvserver_connections",
			Help: "Open client connections",
		}),
		monitors: f.NewGauge(prometheus.GaugeOpts{
			Name: "acclive_pvserver_monitors",
			Help: "Active monitor subscriptions",
		}),
	}
}
