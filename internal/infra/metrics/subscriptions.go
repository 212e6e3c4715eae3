package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"speech-ai-subscription/internal/domain/model"
)

func init() {
	register(
		periodsExpiredTotal,
		periodsTotal,
	)
}

var (
	periodsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_periods_expired_total",
			Help: "Total number of periods flipped to expired by the sweep.",
		},
	)

	periodsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscription_periods_total",
			Help: "Current number of subscription periods by status.",
		},
		[]string{"status"}, // 'active', 'expiring', 'expired', 'cancelled'
	)
)

func IncPeriodsExpired(count int) {
	periodsExpiredTotal.Add(float64(count))
}

func SetPeriodsTotal(counts map[model.PeriodStatus]int) {
	statuses := []model.PeriodStatus{
		model.PeriodStatusActive,
		model.PeriodStatusExpiring,
		model.PeriodStatusExpired,
		model.PeriodStatusCancelled,
	}
	for _, status := range statuses {
		if count, ok := counts[status]; ok {
			periodsTotal.WithLabelValues(string(status)).Set(float64(count))
		}
	}
}
