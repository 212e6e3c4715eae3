package model

import (
	"time"

	"speech-ai-subscription/internal/domain"
)

// Plan is a catalog entry mapping a plan label to its monthly price and
// metered allotment. Periods snapshot the label, not the row, so catalog
// edits never rewrite history.
type Plan struct {
	ID                  string // UUID
	Name                string // e.g. "Tutor Teachers"
	MonthlyPriceCents   int64
	MonthlyQuotaSeconds int64
	DurationDays        int // length of one purchased unit
	Active              bool
	CreatedAt           time.Time
}

func NewPlan(id, name string, monthlyPriceCents, monthlyQuotaSeconds int64, durationDays int) (*Plan, error) {
	if id == "" || name == "" || monthlyPriceCents < 0 || monthlyQuotaSeconds <= 0 || durationDays <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Plan{
		ID:                  id,
		Name:                name,
		MonthlyPriceCents:   monthlyPriceCents,
		MonthlyQuotaSeconds: monthlyQuotaSeconds,
		DurationDays:        durationDays,
		Active:              true,
		CreatedAt:           time.Now(),
	}, nil
}
