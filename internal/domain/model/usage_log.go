package model

import (
	"time"

	"speech-ai-subscription/internal/domain"
)

// PointUsageLog is one row per metered-feature consumption event. Rows are
// append-only; a credit-back writes a corrective row with negative values
// instead of touching the original, so summing points_used over a period's
// window always reconstructs quota_used.
type PointUsageLog struct {
	ID           string // ULID, lexically time-ordered
	TeacherID    string
	PeriodID     string
	StudentID    *string
	AssignmentID *string
	FeatureType  string // e.g. "speech_assessment"
	UnitCount    int64
	UnitType     string // e.g. "seconds"
	PointsUsed   int64
	CorrectsID   *string // set on corrective rows, references the original log
	CreatedAt    time.Time
}

func NewPointUsageLog(id, teacherID, periodID, featureType, unitType string, unitCount int64, now time.Time) (*PointUsageLog, error) {
	if id == "" || teacherID == "" || periodID == "" || featureType == "" || unitCount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &PointUsageLog{
		ID:          id,
		TeacherID:   teacherID,
		PeriodID:    periodID,
		FeatureType: featureType,
		UnitCount:   unitCount,
		UnitType:    unitType,
		PointsUsed:  unitCount,
		CreatedAt:   now,
	}, nil
}

// Receipt identifies a committed deduction so the caller can request a
// compensating credit if its own downstream work fails.
type Receipt struct {
	UsageLogID string `json:"usage_log_id"`
	PeriodID   string `json:"period_id"`
	TeacherID  string `json:"teacher_id"`
	PointsUsed int64  `json:"points_used"`
	Remaining  int64  `json:"remaining"`
}
