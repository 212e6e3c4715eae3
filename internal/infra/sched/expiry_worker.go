package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"speech-ai-subscription/internal/domain/ports/repository"
	"speech-ai-subscription/internal/infra/metrics"
	"speech-ai-subscription/internal/usecase"
)

// ExpiryWorker periodically flips overdue periods to expired via the use case
// and refreshes the per-status period gauge.
type ExpiryWorker struct {
	interval time.Duration
	periodUC usecase.PeriodUseCase
	periods  repository.PeriodRepository
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, periodUC usecase.PeriodUseCase, periods repository.PeriodRepository, logger *zerolog.Logger) *ExpiryWorker {
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval: interval,
		periodUC: periodUC,
		periods:  periods,
		log:      &l,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.periodUC.SweepExpired(ctx, time.Now())
			if err != nil {
				w.log.Error().Err(err).Msg("expiry sweep error")
			}
			if n > 0 {
				metrics.IncPeriodsExpired(n)
				w.log.Info().Int("count", n).Msg("periods expired")
			}
			if counts, err := w.periods.CountByStatus(ctx, repository.NoTX); err == nil {
				metrics.SetPeriodsTotal(counts)
			}
		}
	}
}
