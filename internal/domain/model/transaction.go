package model

import (
	"time"

	"speech-ai-subscription/internal/domain"
)

type TransactionType string

const (
	TransactionTypeTrial    TransactionType = "trial"
	TransactionTypeRecharge TransactionType = "recharge"
	TransactionTypeExpired  TransactionType = "expired"
	TransactionTypeRefund   TransactionType = "refund"
)

type TransactionStatus string

const (
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
	TransactionStatusPending TransactionStatus = "pending"
)

type WebhookStatus string

const (
	WebhookStatusPending    WebhookStatus = "pending"
	WebhookStatusProcessed  WebhookStatus = "processed"
	WebhookStatusIgnoredDup WebhookStatus = "ignored_duplicate"
)

// TeacherTransaction is one append-only ledger entry per money-moving or
// quota-granting event. Rows are never mutated after insert except the
// webhook_status transition pending -> processed/ignored_duplicate.
type TeacherTransaction struct {
	ID                    string // UUID
	TeacherID             string
	PeriodID              string
	Type                  TransactionType
	Amount                int64
	Currency              string
	Status                TransactionStatus
	Months                *int // month-based plans only
	PeriodStart           time.Time
	PeriodEnd             time.Time
	PreviousEndDate       *time.Time // period end_date before this transaction
	NewEndDate            *time.Time // period end_date after this transaction
	PaymentProvider       string
	PaymentMethod         PaymentMethod
	ExternalTransactionID *string
	WebhookStatus         WebhookStatus
	CreatedAt             time.Time
}

// NewTeacherTransaction builds a ledger entry; callers fill the snapshot
// fields before saving.
func NewTeacherTransaction(id, teacherID, periodID string, typ TransactionType, amount int64, currency string, now time.Time) (*TeacherTransaction, error) {
	if id == "" || teacherID == "" || periodID == "" {
		return nil, domain.ErrInvalidArgument
	}
	switch typ {
	case TransactionTypeTrial, TransactionTypeRecharge, TransactionTypeExpired, TransactionTypeRefund:
	default:
		return nil, domain.ErrInvalidArgument
	}
	return &TeacherTransaction{
		ID:        id,
		TeacherID: teacherID,
		PeriodID:  periodID,
		Type:      typ,
		Amount:    amount,
		Currency:  currency,
		Status:    TransactionStatusSuccess,
		CreatedAt: now,
	}, nil
}

// SpanDays is the whole-day length of the end_date movement recorded on this
// transaction; refund proration is computed against it.
func (t *TeacherTransaction) SpanDays() int {
	if t.PreviousEndDate == nil || t.NewEndDate == nil {
		return 0
	}
	d := t.NewEndDate.Sub(*t.PreviousEndDate)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}
