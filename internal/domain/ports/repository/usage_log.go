package repository

import (
	"context"
	"time"

	"speech-ai-subscription/internal/domain/model"
)

// UsageLogRepository is the port for metered-consumption rows.
type UsageLogRepository interface {
	Save(ctx context.Context, tx Tx, l *model.PointUsageLog) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PointUsageLog, error)
	// FindCorrectionOf returns the corrective row for a log id, if any.
	// At most one correction may exist per original row.
	FindCorrectionOf(ctx context.Context, tx Tx, logID string) (*model.PointUsageLog, error)
	// SumPointsForPeriod reconstructs quota_used from the log, for audit.
	SumPointsForPeriod(ctx context.Context, tx Tx, periodID string, until time.Time) (int64, error)
	ListByTeacher(ctx context.Context, tx Tx, teacherID string, limit int) ([]*model.PointUsageLog, error)
}
