// File: internal/usecase/period_uc.go
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

var _ PeriodUseCase = (*periodUC)(nil)

// PeriodUseCase owns the subscription period lifecycle: trial grant on
// identity verification, cancellation, admin adjustments, the nightly expiry
// sweep, and current-period resolution.
type PeriodUseCase interface {
	GrantTrial(ctx context.Context, teacherID string) (*model.SubscriptionPeriod, error)
	Cancel(ctx context.Context, teacherID string) error
	AdminGrant(ctx context.Context, in AdminGrantRequest) (*model.SubscriptionPeriod, error)
	// SweepExpired flips overdue periods to expired and marks auto-renew
	// periods inside the pre-expiry window as expiring. Returns the number
	// of periods expired.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	// CurrentPeriod is the unserialized display read; may be stale by one
	// transaction.
	CurrentPeriod(ctx context.Context, teacherID string) (*model.SubscriptionPeriod, error)
}

// AdminGrantRequest describes a manually-issued adjustment period.
type AdminGrantRequest struct {
	TeacherID    string
	PlanName     string
	DurationDays int
	QuotaSeconds int64
	AdminID      string
	Reason       string
	Meta         map[string]interface{}
}

type periodUC struct {
	periods      repository.PeriodRepository
	transactions repository.TransactionRepository
	tm           repository.TransactionManager
	cache        PeriodCache
	notifier     adapter.Notifier
	trialQuota   int64
	expiringIn   time.Duration
	log          *zerolog.Logger
}

func NewPeriodUseCase(
	periods repository.PeriodRepository,
	transactions repository.TransactionRepository,
	tm repository.TransactionManager,
	cache PeriodCache,
	notifier adapter.Notifier,
	trialQuotaSeconds int64,
	logger *zerolog.Logger,
) *periodUC {
	l := logger.With().Str("component", "PeriodUC").Logger()
	return &periodUC{
		periods:      periods,
		transactions: transactions,
		tm:           tm,
		cache:        cache,
		notifier:     notifier,
		trialQuota:   trialQuotaSeconds,
		expiringIn:   24 * time.Hour,
		log:          &l,
	}
}

func (u *periodUC) GrantTrial(ctx context.Context, teacherID string) (*model.SubscriptionPeriod, error) {
	if teacherID == "" {
		return nil, domain.ErrInvalidArgument
	}
	var created *model.SubscriptionPeriod
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.periods.AcquireTeacherLock(ctx, tx, teacherID); err != nil {
			return err
		}
		if existing, err := u.periods.FindCurrentByTeacher(ctx, tx, teacherID); err == nil && existing != nil {
			return domain.ErrAlreadyExists
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		now := time.Now()
		p, err := model.NewTrialPeriod(uuid.NewString(), teacherID, u.trialQuota, now)
		if err != nil {
			return err
		}
		if err := u.periods.Save(ctx, tx, p); err != nil {
			return err
		}

		t, err := model.NewTeacherTransaction(uuid.NewString(), teacherID, p.ID, model.TransactionTypeTrial, 0, "", now)
		if err != nil {
			return err
		}
		t.PeriodStart = p.StartDate
		t.PeriodEnd = p.EndDate
		t.NewEndDate = &p.EndDate
		t.PaymentMethod = model.PaymentMethodTrial
		if err := u.transactions.Save(ctx, tx, t); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.invalidate(ctx, teacherID)
	u.notify(ctx, teacherID, adapter.NotifyTrialActivated, created.PlanName)
	u.log.Info().Str("teacher_id", teacherID).Time("end_date", created.EndDate).Msg("trial period granted")
	return created, nil
}

func (u *periodUC) Cancel(ctx context.Context, teacherID string) error {
	if teacherID == "" {
		return domain.ErrInvalidArgument
	}
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.periods.AcquireTeacherLock(ctx, tx, teacherID); err != nil {
			return err
		}
		p, err := u.periods.FindCurrentByTeacher(ctx, tx, teacherID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNoActiveSubscription
			}
			return err
		}
		if err := p.Cancel(time.Now()); err != nil {
			return err
		}
		return u.periods.Save(ctx, tx, p)
	})
	if err != nil {
		return err
	}
	u.invalidate(ctx, teacherID)
	u.log.Info().Str("teacher_id", teacherID).Msg("period cancelled")
	return nil
}

func (u *periodUC) AdminGrant(ctx context.Context, in AdminGrantRequest) (*model.SubscriptionPeriod, error) {
	if in.TeacherID == "" || in.AdminID == "" || in.DurationDays <= 0 || in.QuotaSeconds <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if in.PlanName == "" {
		in.PlanName = "Admin Grant"
	}

	var out *model.SubscriptionPeriod
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.periods.AcquireTeacherLock(ctx, tx, in.TeacherID); err != nil {
			return err
		}
		now := time.Now()
		var prevEnd *time.Time

		p, err := u.periods.FindCurrentByTeacher(ctx, tx, in.TeacherID)
		switch {
		case err == nil && (p.Status == model.PeriodStatusActive || p.Status == model.PeriodStatusExpiring):
			prev, err := p.Extend(now, in.DurationDays, in.QuotaSeconds)
			if err != nil {
				return err
			}
			prevEnd = &prev
		case err == nil || errors.Is(err, domain.ErrNotFound):
			// No extensible period: issue a fresh manual one.
			p = &model.SubscriptionPeriod{
				ID:            uuid.NewString(),
				TeacherID:     in.TeacherID,
				PlanName:      in.PlanName,
				QuotaTotal:    in.QuotaSeconds,
				StartDate:     now,
				EndDate:       now.AddDate(0, 0, in.DurationDays),
				PaymentMethod: model.PaymentMethodManual,
				PaymentStatus: model.PaymentStatePaid,
				Status:        model.PeriodStatusActive,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
		default:
			return err
		}

		p.AdminID = &in.AdminID
		p.AdminReason = &in.Reason
		p.AdminMeta = in.Meta
		if err := u.periods.Save(ctx, tx, p); err != nil {
			return err
		}

		t, err := model.NewTeacherTransaction(uuid.NewString(), in.TeacherID, p.ID, model.TransactionTypeRecharge, 0, "", now)
		if err != nil {
			return err
		}
		t.PaymentProvider = "admin"
		t.PaymentMethod = model.PaymentMethodManual
		t.PeriodStart = p.StartDate
		t.PeriodEnd = p.EndDate
		t.PreviousEndDate = prevEnd
		t.NewEndDate = &p.EndDate
		if err := u.transactions.Save(ctx, tx, t); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.invalidate(ctx, in.TeacherID)
	u.log.Info().Str("teacher_id", in.TeacherID).Str("admin_id", in.AdminID).Int("days", in.DurationDays).Msg("admin grant applied")
	return out, nil
}

func (u *periodUC) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	// Phase 1: active -> expiring for auto-renew periods inside the window.
	nearing, err := u.periods.FindNearingEnd(ctx, repository.NoTX, now, u.expiringIn)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, err
	}
	for _, p := range nearing {
		p := p
		err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := u.periods.AcquireTeacherLock(ctx, tx, p.TeacherID); err != nil {
				return err
			}
			cur, err := u.periods.FindByID(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			if cur.Status != model.PeriodStatusActive {
				return nil
			}
			cur.Status = model.PeriodStatusExpiring
			cur.UpdatedAt = now
			return u.periods.Save(ctx, tx, cur)
		})
		if err != nil {
			u.log.Error().Err(err).Str("period_id", p.ID).Msg("mark expiring failed")
			continue
		}
		u.invalidate(ctx, p.TeacherID)
	}

	// Phase 2: anything past end_date goes to expired, with an Expired
	// ledger entry per period.
	overdue, err := u.periods.FindOverdue(ctx, repository.NoTX, now, 500)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, err
	}
	expired := 0
	for _, p := range overdue {
		p := p
		err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := u.periods.AcquireTeacherLock(ctx, tx, p.TeacherID); err != nil {
				return err
			}
			cur, err := u.periods.FindByID(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			if cur.Status == model.PeriodStatusExpired || cur.EndDate.After(now) {
				return nil
			}
			cur.Status = model.PeriodStatusExpired
			cur.UpdatedAt = now
			if err := u.periods.Save(ctx, tx, cur); err != nil {
				return err
			}

			t, err := model.NewTeacherTransaction(uuid.NewString(), cur.TeacherID, cur.ID, model.TransactionTypeExpired, 0, "", now)
			if err != nil {
				return err
			}
			t.PeriodStart = cur.StartDate
			t.PeriodEnd = cur.EndDate
			t.PreviousEndDate = &cur.EndDate
			t.NewEndDate = &cur.EndDate
			if err := u.transactions.Save(ctx, tx, t); err != nil {
				return err
			}
			expired++
			return nil
		})
		if err != nil {
			u.log.Error().Err(err).Str("period_id", p.ID).Msg("expiry sweep failed for period")
			continue
		}
		u.invalidate(ctx, p.TeacherID)
		u.notify(ctx, p.TeacherID, adapter.NotifyPeriodExpired, p.PlanName)
	}
	return expired, nil
}

func (u *periodUC) CurrentPeriod(ctx context.Context, teacherID string) (*model.SubscriptionPeriod, error) {
	if teacherID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if u.cache != nil {
		if p, ok := u.cache.Get(ctx, teacherID); ok {
			return p, nil
		}
	}
	p, err := u.periods.FindCurrentByTeacher(ctx, repository.NoTX, teacherID)
	if err != nil {
		return nil, err
	}
	if u.cache != nil {
		u.cache.Set(ctx, teacherID, p)
	}
	return p, nil
}

func (u *periodUC) invalidate(ctx context.Context, teacherID string) {
	if u.cache != nil {
		u.cache.Invalidate(ctx, teacherID)
	}
}

func (u *periodUC) notify(ctx context.Context, teacherID string, kind adapter.NotificationKind, detail string) {
	if u.notifier == nil {
		return
	}
	if err := u.notifier.Notify(ctx, teacherID, kind, detail); err != nil {
		u.log.Warn().Err(err).Str("teacher_id", teacherID).Str("kind", string(kind)).Msg("notification failed")
	}
}
