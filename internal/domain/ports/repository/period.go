package repository

import (
	"context"
	"time"

	"speech-ai-subscription/internal/domain/model"
)

// PeriodRepository is the port for subscription periods. All writes go
// through the use cases; the store enforces the single-active-period and
// quota-bound invariants with constraints.
type PeriodRepository interface {
	Save(ctx context.Context, tx Tx, p *model.SubscriptionPeriod) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.SubscriptionPeriod, error)
	// FindCurrentByTeacher returns the period that currently grants
	// entitlement: active/expiring, or cancelled with end_date still ahead.
	FindCurrentByTeacher(ctx context.Context, tx Tx, teacherID string) (*model.SubscriptionPeriod, error)
	// FindExpiringOn returns auto-renew candidates whose end_date falls on
	// the given calendar date (scheduler timezone), not yet cancelled.
	FindExpiringOn(ctx context.Context, tx Tx, date time.Time, loc *time.Location) ([]*model.SubscriptionPeriod, error)
	// FindExpiredWithoutSuccessor returns auto-renew periods that expired
	// after since and have no successor period; the grace-window retry path.
	FindExpiredWithoutSuccessor(ctx context.Context, tx Tx, since time.Time) ([]*model.SubscriptionPeriod, error)
	// FindOverdue returns entitled-status periods whose end_date has passed.
	FindOverdue(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.SubscriptionPeriod, error)
	// FindNearingEnd returns active auto-renew periods within the window
	// before end_date, for the active -> expiring transition.
	FindNearingEnd(ctx context.Context, tx Tx, now time.Time, window time.Duration) ([]*model.SubscriptionPeriod, error)

	// AcquireTeacherLock takes the per-teacher advisory lock for the duration
	// of the surrounding transaction. Must be called with a live tx.
	AcquireTeacherLock(ctx context.Context, tx Tx, teacherID string) error

	// CountByStatus supports the status gauge.
	CountByStatus(ctx context.Context, tx Tx) (map[model.PeriodStatus]int, error)
}
