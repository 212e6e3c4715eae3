package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		quotaDeductionsTotal,
		quotaSecondsUsedTotal,
		quotaCreditsBackTotal,
	)
}

var (
	quotaDeductionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_deductions_total",
			Help: "Check-and-deduct calls by result (ok/insufficient/no_subscription/error).",
		},
		[]string{"result"},
	)

	quotaSecondsUsedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_seconds_used_total",
			Help: "Total metered seconds successfully deducted.",
		},
	)

	quotaCreditsBackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_credits_back_total",
			Help: "Compensating credit-back operations applied.",
		},
	)
)

func IncQuotaDeduction(result string) {
	quotaDeductionsTotal.WithLabelValues(result).Inc()
}

func AddQuotaSecondsUsed(n int64) {
	quotaSecondsUsedTotal.Add(float64(n))
}

func IncQuotaCreditBack() {
	quotaCreditsBackTotal.Inc()
}
