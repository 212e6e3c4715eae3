package usecase

import (
	"context"

	"speech-ai-subscription/internal/domain/model"
)

// PeriodCache is an optional read-side cache for "current period" display
// lookups. Display reads may be stale by one transaction, so implementations
// rely on a short TTL; Invalidate is best-effort tightening after mutations.
type PeriodCache interface {
	Get(ctx context.Context, teacherID string) (*model.SubscriptionPeriod, bool)
	Set(ctx context.Context, teacherID string, p *model.SubscriptionPeriod)
	Invalidate(ctx context.Context, teacherID string)
}
