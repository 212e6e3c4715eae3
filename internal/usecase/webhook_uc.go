// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"speech-ai-subscription/internal/domain"
	"speech-ai-subscription/internal/domain/model"
	"speech-ai-subscription/internal/domain/ports/adapter"
	"speech-ai-subscription/internal/domain/ports/repository"
)

var _ WebhookUseCase = (*webhookUC)(nil)

type EventKind string

const (
	EventKindRecharge EventKind = "recharge"
	EventKindRefund   EventKind = "refund"
)

// WebhookEvent is an already-verified payment-gateway notification. Delivery
// is at-least-once and out-of-order; (ExternalTransactionID, Kind) is the
// idempotency key.
type WebhookEvent struct {
	ExternalTransactionID string // provider rec_trade_id
	Kind                  EventKind
	Amount                int64
	RefundAmount          int64
	OriginalAmount        int64
	Currency              string
	MerchantReference     string // provider-side teacher reference (recharge)
	Months                int    // purchased months (recharge)
	PlanName              string
}

// Ack is the idempotent acknowledgement returned to the gateway.
type Ack struct {
	TransactionID string `json:"transaction_id"`
	Duplicate     bool   `json:"duplicate"`
	Kind          string `json:"kind"`
}

// WebhookUseCase applies gateway recharge/refund events to the ledger
// exactly once.
type WebhookUseCase interface {
	HandleWebhook(ctx context.Context, ev WebhookEvent) (*Ack, error)
}

type webhookUC struct {
	periods      repository.PeriodRepository
	transactions repository.TransactionRepository
	teachers     repository.TeacherRepository
	plans        repository.PlanRepository
	tm           repository.TransactionManager
	cache        PeriodCache
	notifier     adapter.Notifier

	provider            string
	defaultMonthlyQuota int64
	log                 *zerolog.Logger
}

func NewWebhookUseCase(
	periods repository.PeriodRepository,
	transactions repository.TransactionRepository,
	teachers repository.TeacherRepository,
	plans repository.PlanRepository,
	tm repository.TransactionManager,
	cache PeriodCache,
	notifier adapter.Notifier,
	provider string,
	defaultMonthlyQuotaSeconds int64,
	logger *zerolog.Logger,
) *webhookUC {
	l := logger.With().Str("component", "WebhookUC").Logger()
	return &webhookUC{
		periods:             periods,
		transactions:        transactions,
		teachers:            teachers,
		plans:               plans,
		tm:                  tm,
		cache:               cache,
		notifier:            notifier,
		provider:            provider,
		defaultMonthlyQuota: defaultMonthlyQuotaSeconds,
		log:                 &l,
	}
}

func (u *webhookUC) HandleWebhook(ctx context.Context, ev WebhookEvent) (*Ack, error) {
	if ev.ExternalTransactionID == "" {
		return nil, domain.ErrMalformedWebhook
	}

	var txType model.TransactionType
	switch ev.Kind {
	case EventKindRecharge:
		txType = model.TransactionTypeRecharge
	case EventKindRefund:
		txType = model.TransactionTypeRefund
	default:
		return nil, domain.ErrMalformedWebhook
	}

	var ack *Ack
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// Dedup first: a re-delivered event resolves to the recorded row
		// with zero further writes.
		existing, err := u.transactions.FindByExternalID(ctx, tx, ev.ExternalTransactionID, txType)
		if err == nil && existing != nil {
			if existing.WebhookStatus == model.WebhookStatusPending {
				// A pending row can only be left by an interrupted commit
				// path; the retry completes the transition.
				if err := u.transactions.MarkWebhookStatus(ctx, tx, existing.ID, model.WebhookStatusProcessed); err != nil {
					return err
				}
			}
			ack = &Ack{TransactionID: existing.ID, Duplicate: true, Kind: string(ev.Kind)}
			return nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		switch ev.Kind {
		case EventKindRecharge:
			return u.applyRecharge(ctx, tx, ev, &ack)
		default:
			return u.applyRefund(ctx, tx, ev, &ack)
		}
	})
	if err != nil {
		return nil, err
	}

	if !ack.Duplicate {
		u.log.Info().Str("rec_trade_id", ev.ExternalTransactionID).Str("kind", string(ev.Kind)).Str("transaction_id", ack.TransactionID).Msg("webhook applied")
	} else {
		u.log.Debug().Str("rec_trade_id", ev.ExternalTransactionID).Str("kind", string(ev.Kind)).Msg("webhook replay ignored")
	}
	return ack, nil
}

func (u *webhookUC) applyRecharge(ctx context.Context, tx repository.Tx, ev WebhookEvent, ack **Ack) error {
	if ev.Amount <= 0 || ev.Months <= 0 || ev.MerchantReference == "" {
		return domain.ErrMalformedWebhook
	}
	teacher, err := u.teachers.FindByMerchantReference(ctx, tx, ev.MerchantReference)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrMalformedWebhook
		}
		return err
	}
	if err := u.periods.AcquireTeacherLock(ctx, tx, teacher.ID); err != nil {
		return err
	}

	now := time.Now()
	days := ev.Months * 30
	addQuota := int64(ev.Months) * u.monthlyQuota(ctx, tx, ev.PlanName)

	var (
		period  *model.SubscriptionPeriod
		prevEnd *time.Time
	)
	period, err = u.periods.FindCurrentByTeacher(ctx, tx, teacher.ID)
	switch {
	case err == nil && (period.Status == model.PeriodStatusActive || period.Status == model.PeriodStatusExpiring):
		prev, extErr := period.Extend(now, days, addQuota)
		if extErr != nil {
			return extErr
		}
		period.AmountPaid += ev.Amount
		if ev.PlanName != "" {
			period.PlanName = ev.PlanName
		}
		prevEnd = &prev
	case err == nil || errors.Is(err, domain.ErrNotFound):
		// No extensible window: the recharge opens a fresh paid period.
		period = &model.SubscriptionPeriod{
			ID:            uuid.NewString(),
			TeacherID:     teacher.ID,
			PlanName:      ev.PlanName,
			AmountPaid:    ev.Amount,
			QuotaTotal:    addQuota,
			StartDate:     now,
			EndDate:       now.AddDate(0, 0, days),
			PaymentMethod: model.PaymentMethodManual,
			PaymentStatus: model.PaymentStatePaid,
			Status:        model.PeriodStatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		// Snapshot the span from the period's start so a later refund can
		// prorate against it.
		prevEnd = &period.StartDate
	default:
		return err
	}
	period.ExternalTransactionID = &ev.ExternalTransactionID
	if err := u.periods.Save(ctx, tx, period); err != nil {
		return err
	}

	t, err := model.NewTeacherTransaction(uuid.NewString(), teacher.ID, period.ID, model.TransactionTypeRecharge, ev.Amount, ev.Currency, now)
	if err != nil {
		return err
	}
	months := ev.Months
	t.Months = &months
	t.PeriodStart = period.StartDate
	t.PeriodEnd = period.EndDate
	t.PreviousEndDate = prevEnd
	t.NewEndDate = &period.EndDate
	t.PaymentProvider = u.provider
	t.PaymentMethod = model.PaymentMethodManual
	t.ExternalTransactionID = &ev.ExternalTransactionID
	t.WebhookStatus = model.WebhookStatusPending
	if err := u.transactions.Save(ctx, tx, t); err != nil {
		return err
	}
	if err := u.transactions.MarkWebhookStatus(ctx, tx, t.ID, model.WebhookStatusProcessed); err != nil {
		return err
	}

	u.invalidate(ctx, teacher.ID)
	*ack = &Ack{TransactionID: t.ID, Kind: string(ev.Kind)}
	return nil
}

func (u *webhookUC) applyRefund(ctx context.Context, tx repository.Tx, ev WebhookEvent, ack **Ack) error {
	if ev.RefundAmount <= 0 || ev.OriginalAmount <= 0 {
		return domain.ErrMalformedWebhook
	}
	// The refund must reference a recharge we recorded; anything else is a
	// fatal anomaly for manual reconciliation, never a retry.
	orig, err := u.transactions.FindByExternalID(ctx, tx, ev.ExternalTransactionID, model.TransactionTypeRecharge)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnknownTransaction
		}
		return err
	}
	if err := u.periods.AcquireTeacherLock(ctx, tx, orig.TeacherID); err != nil {
		return err
	}

	period, err := u.periods.FindCurrentByTeacher(ctx, tx, orig.TeacherID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		// No live window: adjust the period the recharge paid for.
		period, err = u.periods.FindByID(ctx, tx, orig.PeriodID)
		if err != nil {
			return err
		}
	}

	now := time.Now()
	days := model.ProratedDaysToRemove(orig.SpanDays(), ev.RefundAmount, ev.OriginalAmount)
	prev, next, err := period.ApplyRefund(now, days)
	if err != nil {
		return err
	}
	if err := u.periods.Save(ctx, tx, period); err != nil {
		return err
	}

	t, err := model.NewTeacherTransaction(uuid.NewString(), orig.TeacherID, period.ID, model.TransactionTypeRefund, ev.RefundAmount, ev.Currency, now)
	if err != nil {
		return err
	}
	t.PeriodStart = period.StartDate
	t.PeriodEnd = period.EndDate
	t.PreviousEndDate = &prev
	t.NewEndDate = &next
	t.PaymentProvider = u.provider
	t.PaymentMethod = orig.PaymentMethod
	t.ExternalTransactionID = &ev.ExternalTransactionID
	t.WebhookStatus = model.WebhookStatusPending
	if err := u.transactions.Save(ctx, tx, t); err != nil {
		return err
	}
	if err := u.transactions.MarkWebhookStatus(ctx, tx, t.ID, model.WebhookStatusProcessed); err != nil {
		return err
	}

	u.invalidate(ctx, orig.TeacherID)
	u.notify(ctx, orig.TeacherID, adapter.NotifyRefundApplied, ev.ExternalTransactionID)
	*ack = &Ack{TransactionID: t.ID, Kind: string(ev.Kind)}
	return nil
}

func (u *webhookUC) monthlyQuota(ctx context.Context, tx repository.Tx, planName string) int64 {
	if planName != "" {
		if plan, err := u.plans.FindByName(ctx, tx, planName); err == nil && plan != nil {
			return plan.MonthlyQuotaSeconds
		}
	}
	return u.defaultMonthlyQuota
}

func (u *webhookUC) invalidate(ctx context.Context, teacherID string) {
	if u.cache != nil {
		u.cache.Invalidate(ctx, teacherID)
	}
}

func (u *webhookUC) notify(ctx context.Context, teacherID string, kind adapter.NotificationKind, detail string) {
	if u.notifier == nil {
		return
	}
	if err := u.notifier.Notify(ctx, teacherID, kind, detail); err != nil {
		u.log.Warn().Err(err).Str("teacher_id", teacherID).Str("kind", string(kind)).Msg("notification failed")
	}
}
