package event

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters mirror the perf trace stream for scrape-based monitoring; they
// are maintained even when the file sink is disabled.
var (
	schedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyber_sched_events_total",
		Help: "Total number of scheduler perf events recorded, by event id",
	}, []string{"event"})

	transportEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyber_transport_events_total",
		Help: "Total number of transport perf events recorded, by event id",
	}, []string{"event"})
)
