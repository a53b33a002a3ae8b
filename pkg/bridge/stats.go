package bridge

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result is the outcome of one machine PV update.
type Result string

const (
	// ResultWritten: the value was sent to the destination.
	ResultWritten Result = "written"
	// ResultAbsent: the source delivered no value.
	ResultAbsent Result = "absent"
	// ResultDisconnected: the destination was not connected.
	ResultDisconnected Result = "disconnected"
	// ResultFalsy: the value was false, zero or empty.
	ResultFalsy Result = "falsy"
	// ResultSuperseded: a newer value replaced it before it was written.
	ResultSuperseded Result = "superseded"
	// ResultFailed: the write could not be sent, or was abandoned while
	// waiting for the rate limit.
	ResultFailed Result = "failed"
)

var results = []Result{ResultWritten, ResultAbsent, ResultDisconnected, ResultFalsy, ResultSuperseded, ResultFailed}

// Stats counts update outcomes.
type Stats struct {
	Written      uint64
	Absent       uint64
	Disconnected uint64
	Falsy        uint64
	Superseded   uint64
	Failed       uint64
}

// Skipped returns the number of updates that were not written.
func (s Stats) Skipped() uint64 {
	return s.Absent + s.Disconnected + s.Falsy + s.Superseded + s.Failed
}

type counters struct {
	values [6]atomic.Uint64
	vec    *prometheus.CounterVec
}

func newCounters(reg prometheus.Registerer) *counters {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &counters{
		vec: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "acclive_bridge_updates_total",
			Help: "Machine PV updates handled by the bridge, by result",
		}, []string{"result"}),
	}
	for _, r := range results {
		c.vec.WithLabelValues(string(r))
	}
	return c
}

func (c *counters) inc(r Result) {
	for i, known := range results {
		if known == r {
			c.values[i].Add(1)
			break
		}
	}
	c.vec.WithLabelValues(string(r)).Inc()
}

func (c *counters) snapshot() Stats {
	return Stats{
		Written:      c.values[0].Load(),
		Absent:       c.values[1].Load(),
		Disconnected: c.values[2].Load(),
		Falsy:        c.values[3].Load(),
		Superseded:   c.values[4].Load(),
		Failed:       c.values[5].Load(),
	}
}
