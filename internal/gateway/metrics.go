package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	dataLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalescope_data_loads_total",
			Help: "Data loads proxied to the analytics service, by section and outcome.",
		},
		[]string{"section", "outcome"},
	)

	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalescope_exports_total",
			Help: "Export jobs by kind, section and outcome.",
		},
		[]string{"kind", "section", "outcome"},
	)

	invocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalescope_invocations_total",
			Help: "Ad-hoc worker script invocations by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(dataLoadsTotal, exportsTotal, invocationsTotal)
}
