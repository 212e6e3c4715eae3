package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"speech-ai-subscription/internal/infra/metrics"
	"speech-ai-subscription/internal/usecase"
)

// RenewalWorker fires the renewal pass once a day at the configured local
// hour. The HTTP trigger endpoint covers ad-hoc and missed runs.
type RenewalWorker struct {
	hour      int
	loc       *time.Location
	renewalUC usecase.RenewalUseCase
	log       *zerolog.Logger
}

func NewRenewalWorker(hour int, loc *time.Location, renewalUC usecase.RenewalUseCase, logger *zerolog.Logger) *RenewalWorker {
	if loc == nil {
		loc = time.UTC
	}
	l := logger.With().Str("component", "RenewalWorker").Logger()
	return &RenewalWorker{
		hour:      hour,
		loc:       loc,
		renewalUC: renewalUC,
		log:       &l,
	}
}

func (w *RenewalWorker) Run(ctx context.Context) error {
	w.log.Info().Int("hour", w.hour).Str("tz", w.loc.String()).Msg("starting renewal worker")
	for {
		wait := w.untilNextRun(time.Now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.log.Info().Msg("stopping renewal worker")
			return ctx.Err()
		case <-timer.C:
			summary, err := w.renewalUC.RunDaily(ctx, time.Now())
			if err != nil {
				w.log.Error().Err(err).Msg("renewal pass error")
				continue
			}
			metrics.AddRenewals("renewed", summary.Renewed)
			metrics.AddRenewals("failed", summary.Failed)
			metrics.AddRenewals("skipped", summary.Skipped)
		}
	}
}

func (w *RenewalWorker) untilNextRun(now time.Time) time.Duration {
	local := now.In(w.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), w.hour, 0, 0, 0, w.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(local)
}
