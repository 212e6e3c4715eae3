// File: internal/usecase/renewal_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"speech-ai-subscription/internal/domain"
	"speech-ai-subscription/internal/domain/model"
	"speech-ai-subscription/internal/domain/ports/adapter"
	"speech-ai-subscription/internal/domain/ports/repository"
)

var _ RenewalUseCase = (*renewalUC)(nil)

// RenewalSummary reports one daily pass.
type RenewalSummary struct {
	Renewed int `json:"renewed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// RenewalUseCase rolls auto-renew periods over to successor periods. A pass
// covers periods ending tomorrow plus a grace-window re-check of recently
// expired periods that never got a successor (the delayed-retry mechanism
// for failed charges).
type RenewalUseCase interface {
	RunDaily(ctx context.Context, now time.Time) (*RenewalSummary, error)
}

type renewalUC struct {
	periods      repository.PeriodRepository
	transactions repository.TransactionRepository
	teachers     repository.TeacherRepository
	plans        repository.PlanRepository
	tm           repository.TransactionManager
	gateway      adapter.PaymentGateway
	notifier     adapter.Notifier
	cache        PeriodCache

	loc           *time.Location
	graceDays     int
	chargeTimeout time.Duration
	currency      string
	log           *zerolog.Logger
}

func NewRenewalUseCase(
	periods repository.PeriodRepository,
	transactions repository.TransactionRepository,
	teachers repository.TeacherRepository,
	plans repository.PlanRepository,
	tm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	notifier adapter.Notifier,
	cache PeriodCache,
	loc *time.Location,
	graceDays int,
	chargeTimeout time.Duration,
	currency string,
	logger *zerolog.Logger,
) *renewalUC {
	if loc == nil {
		loc = time.UTC
	}
	if graceDays < 0 {
		graceDays = 0
	}
	if chargeTimeout <= 0 {
		chargeTimeout = 15 * time.Second
	}
	l := logger.With().Str("component", "RenewalUC").Logger()
	return &renewalUC{
		periods:       periods,
		transactions:  transactions,
		teachers:      teachers,
		plans:         plans,
		tm:            tm,
		gateway:       gateway,
		notifier:      notifier,
		cache:         cache,
		loc:           loc,
		graceDays:     graceDays,
		chargeTimeout: chargeTimeout,
		currency:      currency,
		log:           &l,
	}
}

func (u *renewalUC) RunDaily(ctx context.Context, now time.Time) (*RenewalSummary, error) {
	tomorrow := now.In(u.loc).AddDate(0, 0, 1)

	candidates, err := u.periods.FindExpiringOn(ctx, repository.NoTX, tomorrow, u.loc)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if u.graceDays > 0 {
		lapsed, err := u.periods.FindExpiredWithoutSuccessor(ctx, repository.NoTX, now.AddDate(0, 0, -u.graceDays))
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		candidates = append(candidates, lapsed...)
	}

	summary := &RenewalSummary{}
	for _, p := range candidates {
		switch err := u.renewOne(ctx, p, now); {
		case err == nil:
			summary.Renewed++
		case errors.Is(err, domain.ErrRenewalChargeFailed):
			summary.Failed++
		default:
			u.log.Warn().Err(err).Str("period_id", p.ID).Str("teacher_id", p.TeacherID).Msg("renewal skipped")
			summary.Skipped++
		}
	}
	u.log.Info().Int("renewed", summary.Renewed).Int("failed", summary.Failed).Int("skipped", summary.Skipped).Msg("renewal pass done")
	return summary, nil
}

// renewOne charges first, then rolls the ledger over in one transaction.
// A failed or timed-out charge mutates nothing; the dunning signal goes to
// the notification collaborator and the grace window owns the retry.
func (u *renewalUC) renewOne(ctx context.Context, p *model.SubscriptionPeriod, now time.Time) error {
	if p.CancelledAt != nil {
		return fmt.Errorf("period %s: %w", p.ID, domain.ErrAlreadyCancelled)
	}
	teacher, err := u.teachers.FindByID(ctx, repository.NoTX, p.TeacherID)
	if err != nil {
		return err
	}
	if !teacher.AutoRenew {
		return fmt.Errorf("teacher %s auto-renew off: %w", teacher.ID, domain.ErrPeriodNotAdjustable)
	}
	plan, err := u.plans.FindByName(ctx, repository.NoTX, p.PlanName)
	if err != nil {
		return fmt.Errorf("plan %q: %w", p.PlanName, err)
	}

	chargeCtx, cancel := context.WithTimeout(ctx, u.chargeTimeout)
	defer cancel()
	orderRef := fmt.Sprintf("renew-%s", p.ID)
	recTradeID, err := u.gateway.Charge(chargeCtx, teacher.ID, plan.MonthlyPriceCents, u.currency, orderRef)
	if err != nil {
		u.log.Warn().Err(err).Str("teacher_id", teacher.ID).Str("period_id", p.ID).Msg("renewal charge declined")
		u.notify(ctx, teacher.ID, adapter.NotifyRenewalFailed, p.PlanName)
		return domain.ErrRenewalChargeFailed
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.periods.AcquireTeacherLock(ctx, tx, teacher.ID); err != nil {
			return err
		}
		pred, err := u.periods.FindByID(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if pred.CancelledAt != nil {
			return domain.ErrAlreadyCancelled
		}
		// A concurrent pass may have rolled this period over already.
		if existing, err := u.transactions.FindByExternalID(ctx, tx, recTradeID, model.TransactionTypeRecharge); err == nil && existing != nil {
			return nil
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		// Successor starts exactly where the predecessor ends: no coverage
		// gap, no double-counted day.
		succ := &model.SubscriptionPeriod{
			ID:                    uuid.NewString(),
			TeacherID:             teacher.ID,
			PlanName:              pred.PlanName,
			AmountPaid:            plan.MonthlyPriceCents,
			QuotaTotal:            plan.MonthlyQuotaSeconds,
			StartDate:             pred.EndDate,
			EndDate:               pred.EndDate.AddDate(0, 0, plan.DurationDays),
			PaymentMethod:         model.PaymentMethodAutoRenew,
			PaymentStatus:         model.PaymentStatePaid,
			ExternalTransactionID: &recTradeID,
			Status:                model.PeriodStatusActive,
			CreatedAt:             now,
			UpdatedAt:             now,
		}

		pred.Status = model.PeriodStatusExpired
		pred.UpdatedAt = now
		if err := u.periods.Save(ctx, tx, pred); err != nil {
			return err
		}
		if err := u.periods.Save(ctx, tx, succ); err != nil {
			return err
		}

		t, err := model.NewTeacherTransaction(uuid.NewString(), teacher.ID, succ.ID, model.TransactionTypeRecharge, plan.MonthlyPriceCents, u.currency, now)
		if err != nil {
			return err
		}
		months := 1
		t.Months = &months
		t.PeriodStart = succ.StartDate
		t.PeriodEnd = succ.EndDate
		t.PreviousEndDate = &pred.EndDate
		t.NewEndDate = &succ.EndDate
		t.PaymentProvider = u.gateway.Name()
		t.PaymentMethod = model.PaymentMethodAutoRenew
		t.ExternalTransactionID = &recTradeID
		return u.transactions.Save(ctx, tx, t)
	})
	if err != nil {
		return err
	}

	if u.cache != nil {
		u.cache.Invalidate(ctx, teacher.ID)
	}
	u.log.Info().Str("teacher_id", teacher.ID).Str("period_id", p.ID).Str("rec_trade_id", recTradeID).Msg("period renewed")
	return nil
}

func (u *renewalUC) notify(ctx context.Context, teacherID string, kind adapter.NotificationKind, detail string) {
	if u.notifier == nil {
		return
	}
	if err := u.notifier.Notify(ctx, teacherID, kind, detail); err != nil {
		u.log.Warn().Err(err).Str("teacher_id", teacherID).Str("kind", string(kind)).Msg("notification failed")
	}
}
