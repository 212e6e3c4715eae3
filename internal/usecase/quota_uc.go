// File: internal/usecase/quota_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"speech-ai-subscription/internal/domain"
	"speech-ai-subscription/internal/domain/model"
	"speech-ai-subscription/internal/domain/ports/repository"
)

// Compile-time check
var _ QuotaUseCase = (*quotaUC)(nil)

// QuotaUseCase is the "ask before you spend" contract for metered features.
type QuotaUseCase interface {
	// CheckAndDeduct atomically verifies the teacher's remaining quota and
	// commits the deduction together with its usage-log row. On
	// ErrInsufficientQuota / ErrNoActiveSubscription nothing is written.
	CheckAndDeduct(ctx context.Context, in DeductRequest) (*model.Receipt, error)
	// CreditBack compensates a previously committed deduction when the
	// caller's downstream work failed. Idempotent per receipt.
	CreditBack(ctx context.Context, receipt *model.Receipt) error
}

// DeductRequest carries one consumption event from the metering caller.
type DeductRequest struct {
	TeacherID    string
	UnitCount    int64
	UnitType     string
	FeatureType  string
	StudentID    *string
	AssignmentID *string
}

type quotaUC struct {
	periods repository.PeriodRepository
	logs    repository.UsageLogRepository
	tm      repository.TransactionManager
	cache   PeriodCache
	log     *zerolog.Logger
}

func NewQuotaUseCase(periods repository.PeriodRepository, logs repository.UsageLogRepository, tm repository.TransactionManager, cache PeriodCache, logger *zerolog.Logger) *quotaUC {
	l := logger.With().Str("component", "QuotaUC").Logger()
	return &quotaUC{periods: periods, logs: logs, tm: tm, cache: cache, log: &l}
}

func (u *quotaUC) CheckAndDeduct(ctx context.Context, in DeductRequest) (*model.Receipt, error) {
	if in.TeacherID == "" || in.UnitCount <= 0 || in.FeatureType == "" {
		return nil, domain.ErrInvalidArgument
	}
	if in.UnitType == "" {
		in.UnitType = "seconds"
	}

	var receipt *model.Receipt
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.periods.AcquireTeacherLock(ctx, tx, in.TeacherID); err != nil {
			return err
		}
		p, err := u.periods.FindCurrentByTeacher(ctx, tx, in.TeacherID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNoActiveSubscription
			}
			return err
		}
		now := time.Now()
		if !p.Entitled(now) {
			return domain.ErrNoActiveSubscription
		}
		if p.QuotaUsed+in.UnitCount > p.QuotaTotal {
			return domain.ErrInsufficientQuota
		}

		p.QuotaUsed += in.UnitCount
		p.UpdatedAt = now
		if err := u.periods.Save(ctx, tx, p); err != nil {
			return err
		}

		entry, err := model.NewPointUsageLog(ulid.Make().String(), in.TeacherID, p.ID, in.FeatureType, in.UnitType, in.UnitCount, now)
		if err != nil {
			return err
		}
		entry.StudentID = in.StudentID
		entry.AssignmentID = in.AssignmentID
		if err := u.logs.Save(ctx, tx, entry); err != nil {
			return err
		}

		receipt = &model.Receipt{
			UsageLogID: entry.ID,
			PeriodID:   p.ID,
			TeacherID:  in.TeacherID,
			PointsUsed: entry.PointsUsed,
			Remaining:  p.QuotaTotal - p.QuotaUsed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.invalidate(ctx, in.TeacherID)
	u.log.Debug().Str("teacher_id", in.TeacherID).Int64("units", in.UnitCount).Int64("remaining", receipt.Remaining).Msg("quota deducted")
	return receipt, nil
}

func (u *quotaUC) CreditBack(ctx context.Context, receipt *model.Receipt) error {
	if receipt == nil || receipt.UsageLogID == "" || receipt.TeacherID == "" {
		return domain.ErrInvalidArgument
	}

	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.periods.AcquireTeacherLock(ctx, tx, receipt.TeacherID); err != nil {
			return err
		}
		orig, err := u.logs.FindByID(ctx, tx, receipt.UsageLogID)
		if err != nil {
			return err
		}
		if orig.CorrectsID != nil {
			// A corrective row cannot itself be credited back.
			return domain.ErrInvalidArgument
		}
		if existing, err := u.logs.FindCorrectionOf(ctx, tx, orig.ID); err == nil && existing != nil {
			// Already compensated; repeat calls are a benign no-op.
			return nil
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		p, err := u.periods.FindByID(ctx, tx, orig.PeriodID)
		if err != nil {
			return err
		}
		if p.QuotaUsed-orig.PointsUsed < 0 {
			return domain.ErrInvalidArgument
		}
		now := time.Now()
		p.QuotaUsed -= orig.PointsUsed
		p.UpdatedAt = now
		if err := u.periods.Save(ctx, tx, p); err != nil {
			return err
		}

		correction := &model.PointUsageLog{
			ID:           ulid.Make().String(),
			TeacherID:    orig.TeacherID,
			PeriodID:     orig.PeriodID,
			StudentID:    orig.StudentID,
			AssignmentID: orig.AssignmentID,
			FeatureType:  orig.FeatureType,
			UnitCount:    -orig.UnitCount,
			UnitType:     orig.UnitType,
			PointsUsed:   -orig.PointsUsed,
			CorrectsID:   &orig.ID,
			CreatedAt:    now,
		}
		if err := u.logs.Save(ctx, tx, correction); err != nil {
			return err
		}

		u.invalidate(ctx, receipt.TeacherID)
		u.log.Info().Str("teacher_id", receipt.TeacherID).Str("usage_log_id", orig.ID).Int64("points", orig.PointsUsed).Msg("quota credited back")
		return nil
	})
}

func (u *quotaUC) invalidate(ctx context.Context, teacherID string) {
	if u.cache != nil {
		u.cache.Invalidate(ctx, teacherID)
	}
}
