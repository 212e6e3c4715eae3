package model

import (
	"time"

	"speech-ai-subscription/internal/domain"
)

type PeriodStatus string

const (
	PeriodStatusActive    PeriodStatus = "active"
	PeriodStatusExpiring  PeriodStatus = "expiring"
	PeriodStatusExpired   PeriodStatus = "expired"
	PeriodStatusCancelled PeriodStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentMethodTrial     PaymentMethod = "trial"
	PaymentMethodManual    PaymentMethod = "manual"
	PaymentMethodAutoRenew PaymentMethod = "auto_renew"
)

type PaymentState string

const (
	PaymentStatePaid    PaymentState = "paid"
	PaymentStatePending PaymentState = "pending"
	PaymentStateFailed  PaymentState = "failed"
)

const (
	TrialPlanName     = "30-Day Trial"
	TrialDurationDays = 30
)

// SubscriptionPeriod is one contiguous entitlement window for a teacher,
// carrying its own quota allotment. Superseded periods are never deleted.
type SubscriptionPeriod struct {
	ID                    string // UUID
	TeacherID             string // UUID of teacher
	PlanName              string
	AmountPaid            int64 // smallest currency unit
	QuotaTotal            int64 // metered units (seconds)
	QuotaUsed             int64
	StartDate             time.Time
	EndDate               time.Time
	PaymentMethod         PaymentMethod
	PaymentStatus         PaymentState
	ExternalTransactionID *string
	Status                PeriodStatus
	CancelledAt           *time.Time
	AdminID               *string
	AdminReason           *string
	AdminMeta             map[string]interface{} // JSONB in DB
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewTrialPeriod creates the teacher's initial trial window. Auto-renew is a
// teacher-level flag and must stay off at trial creation: a trial never turns
// into a charge without an explicit card-binding event.
func NewTrialPeriod(id, teacherID string, quotaSeconds int64, now time.Time) (*SubscriptionPeriod, error) {
	if id == "" || teacherID == "" || quotaSeconds <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &SubscriptionPeriod{
		ID:            id,
		TeacherID:     teacherID,
		PlanName:      TrialPlanName,
		AmountPaid:    0,
		QuotaTotal:    quotaSeconds,
		QuotaUsed:     0,
		StartDate:     now,
		EndDate:       now.AddDate(0, 0, TrialDurationDays),
		PaymentMethod: PaymentMethodTrial,
		PaymentStatus: PaymentStatePaid,
		Status:        PeriodStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Entitled reports whether the period still grants the metered feature at t.
// A cancelled period keeps its entitlement until end_date.
func (p *SubscriptionPeriod) Entitled(t time.Time) bool {
	switch p.Status {
	case PeriodStatusActive, PeriodStatusExpiring, PeriodStatusCancelled:
		return t.Before(p.EndDate)
	default:
		return false
	}
}

// Extend pushes end_date forward by days, rolling from max(now, end_date) so
// remaining time is never lost, and grows the quota allotment.
// Returns the end_date before the extension.
func (p *SubscriptionPeriod) Extend(now time.Time, days int, addQuota int64) (time.Time, error) {
	if days <= 0 || addQuota < 0 {
		return time.Time{}, domain.ErrInvalidArgument
	}
	switch p.Status {
	case PeriodStatusActive, PeriodStatusExpiring:
	default:
		return time.Time{}, domain.ErrPeriodNotAdjustable
	}
	prev := p.EndDate
	base := p.EndDate
	if now.After(base) {
		base = now
	}
	p.EndDate = base.AddDate(0, 0, days)
	p.QuotaTotal += addQuota
	p.Status = PeriodStatusActive
	p.UpdatedAt = now
	return prev, nil
}

// ProratedDaysToRemove computes floor(spanDays * refund / original) with the
// refund ratio clamped to [0,1]. Integer division keeps the rounding
// conservative toward the provider.
func ProratedDaysToRemove(spanDays int, refundAmount, originalAmount int64) int {
	if spanDays <= 0 || originalAmount <= 0 || refundAmount <= 0 {
		return 0
	}
	if refundAmount > originalAmount {
		refundAmount = originalAmount
	}
	return int(int64(spanDays) * refundAmount / originalAmount)
}

// ApplyRefund shortens end_date by days, never retreating before start_date.
// If the shortened end_date is not after now the period expires immediately.
// Returns the end_date before and after the adjustment.
func (p *SubscriptionPeriod) ApplyRefund(now time.Time, days int) (prev, next time.Time, err error) {
	switch p.Status {
	case PeriodStatusActive, PeriodStatusExpiring, PeriodStatusCancelled:
	default:
		return time.Time{}, time.Time{}, domain.ErrPeriodNotAdjustable
	}
	prev = p.EndDate
	next = p.EndDate.AddDate(0, 0, -days)
	if next.Before(p.StartDate) {
		next = p.StartDate
	}
	if !next.After(now) {
		// The refund consumed all remaining time: truncate at now (still
		// never before start_date) and expire right away instead of waiting
		// for the sweep.
		if now.After(next) {
			next = now
			if next.Before(p.StartDate) {
				next = p.StartDate
			}
		}
		if p.Status != PeriodStatusCancelled {
			p.Status = PeriodStatusExpired
		}
	}
	p.EndDate = next
	p.UpdatedAt = now
	return prev, next, nil
}

// Cancel marks the period cancelled at t. Entitlement holds until end_date;
// the sweep flips it to expired afterwards. Cancelled is terminal.
func (p *SubscriptionPeriod) Cancel(t time.Time) error {
	switch p.Status {
	case PeriodStatusCancelled:
		return domain.ErrAlreadyCancelled
	case PeriodStatusActive, PeriodStatusExpiring:
	default:
		return domain.ErrPeriodNotAdjustable
	}
	p.Status = PeriodStatusCancelled
	p.CancelledAt = &t
	p.UpdatedAt = t
	return nil
}
