package adapter

import "context"

type NotificationKind string

const (
	NotifyRenewalFailed  NotificationKind = "renewal_failed"
	NotifyPeriodExpired  NotificationKind = "period_expired"
	NotifyRefundApplied  NotificationKind = "refund_applied"
	NotifyTrialActivated NotificationKind = "trial_activated"
)

// Notifier hands dunning and lifecycle signals to the messaging
// collaborator. Delivery is best-effort; failures are logged, never
// propagated into ledger transactions.
type Notifier interface {
	Notify(ctx context.Context, teacherID string, kind NotificationKind, detail string) error
}
