package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(renewalsTotal)
}

var renewalsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "renewals_total",
		Help: "Renewal attempts per daily pass by outcome (renewed/failed/skipped).",
	},
	[]string{"outcome"},
)

func AddRenewals(outcome string, n int) {
	renewalsTotal.WithLabelValues(outcome).Add(float64(n))
}
