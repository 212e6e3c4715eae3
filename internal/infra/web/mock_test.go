// File: internal/infra/web/mock_test.go
package web

import (
	"context"
	"time"

	"speech-ai-subscription/internal/domain"
	"speech-ai-subscription/internal/domain/model"
	"speech-ai-subscription/internal/usecase"
)

// Function-field mocks let each test override exactly the call it cares about.

type mockQuotaUC struct {
	checkAndDeductFn func(ctx context.Context, in usecase.DeductRequest) (*model.Receipt, error)
	creditBackFn     func(ctx context.Context, receipt *model.Receipt) error
}

func (m *mockQuotaUC) CheckAndDeduct(ctx context.Context, in usecase.DeductRequest) (*model.Receipt, error) {
	if m.checkAndDeductFn != nil {
		return m.checkAndDeductFn(ctx, in)
	}
	return &model.Receipt{UsageLogID: "log-1", PeriodID: "period-1", TeacherID: in.TeacherID, PointsUsed: in.UnitCount, Remaining: 100}, nil
}

func (m *mockQuotaUC) CreditBack(ctx context.Context, receipt *model.Receipt) error {
	if m.creditBackFn != nil {
		return m.creditBackFn(ctx, receipt)
	}
	return nil
}

type mockPeriodUC struct {
	grantTrialFn    func(ctx context.Context, teacherID string) (*model.SubscriptionPeriod, error)
	cancelFn        func(ctx context.Context, teacherID string) error
	adminGrantFn    func(ctx context.Context, in usecase.AdminGrantRequest) (*model.SubscriptionPeriod, error)
	sweepExpiredFn  func(ctx context.Context, now time.Time) (int, error)
	currentPeriodFn func(ctx context.Context, teacherID string) (*model.SubscriptionPeriod, error)
}

func (m *mockPeriodUC) GrantTrial(ctx context.Context, teacherID string) (*model.SubscriptionPeriod, error) {
	if m.grantTrialFn != nil {
		return m.grantTrialFn(ctx, teacherID)
	}
	now := time.Now()
	return &model.SubscriptionPeriod{ID: "period-1", TeacherID: teacherID, PlanName: model.TrialPlanName, QuotaTotal: 1800, StartDate: now, EndDate: now.AddDate(0, 0, 30), Status: model.PeriodStatusActive}, nil
}

func (m *mockPeriodUC) Cancel(ctx context.Context, teacherID string) error {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, teacherID)
	}
	return nil
}

func (m *mockPeriodUC) AdminGrant(ctx context.Context, in usecase.AdminGrantRequest) (*model.SubscriptionPeriod, error) {
	if m.adminGrantFn != nil {
		return m.adminGrantFn(ctx, in)
	}
	now := time.Now()
	return &model.SubscriptionPeriod{ID: "period-2", TeacherID: in.TeacherID, PlanName: in.PlanName, QuotaTotal: in.QuotaSeconds, StartDate: now, EndDate: now.AddDate(0, 0, in.DurationDays), Status: model.PeriodStatusActive}, nil
}

func (m *mockPeriodUC) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if m.sweepExpiredFn != nil {
		return m.sweepExpiredFn(ctx, now)
	}
	return 0, nil
}

func (m *mockPeriodUC) CurrentPeriod(ctx context.Context, teacherID string) (*model.SubscriptionPeriod, error) {
	if m.currentPeriodFn != nil {
		return m.currentPeriodFn(ctx, teacherID)
	}
	return nil, domain.ErrNotFound
}

type mockWebhookUC struct {
	handleWebhookFn func(ctx context.Context, ev usecase.WebhookEvent) (*usecase.Ack, error)
}

func (m *mockWebhookUC) HandleWebhook(ctx context.Context, ev usecase.WebhookEvent) (*usecase.Ack, error) {
	if m.handleWebhookFn != nil {
		return m.handleWebhookFn(ctx, ev)
	}
	return &usecase.Ack{TransactionID: "tx-1", Kind: string(ev.Kind)}, nil
}

type mockRenewalUC struct {
	runDailyFn func(ctx context.Context, now time.Time) (*usecase.RenewalSummary, error)
}

func (m *mockRenewalUC) RunDaily(ctx context.Context, now time.Time) (*usecase.RenewalSummary, error) {
	if m.runDailyFn != nil {
		return m.runDailyFn(ctx, now)
	}
	return &usecase.RenewalSummary{}, nil
}
