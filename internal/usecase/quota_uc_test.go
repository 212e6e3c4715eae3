// File: internal/usecase/quota_uc_test.go
package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"speech-ai-subscription/internal/domain"
	"speech-ai-subscription/internal/domain/model"
)

func newQuotaFixture(t *testing.T, quotaTotal, quotaUsed int64) (*quotaUC, *memPeriodRepo, *memUsageLogRepo, *model.SubscriptionPeriod) {
	t.Helper()
	periods := newMemPeriodRepo()
	logs := newMemUsageLogRepo()
	uc := NewQuotaUseCase(periods, logs, &mockTxManager{}, newMockCache(), testLogger())

	now := time.Now()
	p := &model.SubscriptionPeriod{
		ID:            uuid.NewString(),
		TeacherID:     "teacher-1",
		PlanName:      "Standard Monthly",
		QuotaTotal:    quotaTotal,
		QuotaUsed:     quotaUsed,
		StartDate:     now.AddDate(0, 0, -5),
		EndDate:       now.AddDate(0, 0, 25),
		PaymentMethod: model.PaymentMethodManual,
		PaymentStatus: model.PaymentStatePaid,
		Status:        model.PeriodStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	periods.put(p)
	return uc, periods, logs, p
}

func TestCheckAndDeduct(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path writes period and log", func(t *testing.T) {
		uc, periods, logs, p := newQuotaFixture(t, 100, 0)
		receipt, err := uc.CheckAndDeduct(ctx, DeductRequest{TeacherID: "teacher-1", UnitCount: 30, FeatureType: "speech_assessment"})
		if err != nil {
			t.Fatalf("CheckAndDeduct: %v", err)
		}
		if receipt.Remaining != 70 || receipt.PointsUsed != 30 {
			t.Errorf("receipt = %+v", receipt)
		}
		got, _ := periods.FindByID(ctx, nil, p.ID)
		if got.QuotaUsed != 30 {
			t.Errorf("quota used = %d, want 30", got.QuotaUsed)
		}
		if logs.count() != 1 {
			t.Errorf("usage rows = %d, want 1", logs.count())
		}
	})

	t.Run("insufficient quota writes nothing", func(t *testing.T) {
		uc, periods, logs, p := newQuotaFixture(t, 100, 95)
		_, err := uc.CheckAndDeduct(ctx, DeductRequest{TeacherID: "teacher-1", UnitCount: 10, FeatureType: "speech_assessment"})
		if !errors.Is(err, domain.ErrInsufficientQuota) {
			t.Fatalf("err = %v, want ErrInsufficientQuota", err)
		}
		got, _ := periods.FindByID(ctx, nil, p.ID)
		if got.QuotaUsed != 95 {
			t.Errorf("quota used = %d, want 95 (untouched)", got.QuotaUsed)
		}
		if logs.count() != 0 {
			t.Errorf("usage rows = %d, want 0", logs.count())
		}
	})

	t.Run("exact remainder is allowed", func(t *testing.T) {
		uc, _, _, _ := newQuotaFixture(t, 100, 95)
		receipt, err := uc.CheckAndDeduct(ctx, DeductRequest{TeacherID: "teacher-1", UnitCount: 5, FeatureType: "speech_assessment"})
		if err != nil {
			t.Fatalf("CheckAndDeduct: %v", err)
		}
		if receipt.Remaining != 0 {
			t.Errorf("remaining = %d, want 0", receipt.Remaining)
		}
	})

	t.Run("no subscription", func(t *testing.T) {
		uc := NewQuotaUseCase(newMemPeriodRepo(), newMemUsageLogRepo(), &mockTxManager{}, newMockCache(), testLogger())
		_, err := uc.CheckAndDeduct(ctx, DeductRequest{TeacherID: "nobody", UnitCount: 5, FeatureType: "speech_assessment"})
		if !errors.Is(err, domain.ErrNoActiveSubscription) {
			t.Errorf("err = %v, want ErrNoActiveSubscription", err)
		}
	})

	t.Run("expired period refuses", func(t *testing.T) {
		uc, periods, _, p := newQuotaFixture(t, 100, 0)
		p.EndDate = time.Now().AddDate(0, 0, -1)
		periods.put(p)
		_, err := uc.CheckAndDeduct(ctx, DeductRequest{TeacherID: "teacher-1", UnitCount: 5, FeatureType: "speech_assessment"})
		if !errors.Is(err, domain.ErrNoActiveSubscription) {
			t.Errorf("err = %v, want ErrNoActiveSubscription", err)
		}
	})

	t.Run("cancelled period still spends until end date", func(t *testing.T) {
		uc, periods, _, p := newQuotaFixture(t, 100, 0)
		now := time.Now()
		p.Status = model.PeriodStatusCancelled
		p.CancelledAt = &now
		periods.put(p)
		if _, err := uc.CheckAndDeduct(ctx, DeductRequest{TeacherID: "teacher-1", UnitCount: 5, FeatureType: "speech_assessment"}); err != nil {
			t.Errorf("CheckAndDeduct on cancelled-but-live period: %v", err)
		}
	})

	t.Run("invalid arguments", func(t *testing.T) {
		uc, _, _, _ := newQuotaFixture(t, 100, 0)
		for _, in := range []DeductRequest{
			{TeacherID: "", UnitCount: 5, FeatureType: "speech_assessment"},
			{TeacherID: "teacher-1", UnitCount: 0, FeatureType: "speech_assessment"},
			{TeacherID: "teacher-1", UnitCount: 5, FeatureType: ""},
		} {
			if _, err := uc.CheckAndDeduct(ctx, in); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("in=%+v err = %v, want ErrInvalidArgument", in, err)
			}
		}
	})
}

// Fifty concurrent deductions of 3 against a quota of 100: exactly 33 must
// succeed and quota_used must land on 99, never above 100.
func TestCheckAndDeductConcurrent(t *testing.T) {
	ctx := context.Background()
	uc, periods, logs, p := newQuotaFixture(t, 100, 0)

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, insufficient := 0, 0

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := uc.CheckAndDeduct(ctx, DeductRequest{TeacherID: "teacher-1", UnitCount: 3, FeatureType: "speech_assessment"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientQuota):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 33 || insufficient != 17 {
		t.Errorf("ok=%d insufficient=%d, want 33/17", ok, insufficient)
	}
	got, _ := periods.FindByID(ctx, nil, p.ID)
	if got.QuotaUsed != 99 {
		t.Errorf("quota used = %d, want 99", got.QuotaUsed)
	}
	if got.QuotaUsed > got.QuotaTotal {
		t.Errorf("quota overrun: %d > %d", got.QuotaUsed, got.QuotaTotal)
	}
	if logs.count() != 33 {
		t.Errorf("usage rows = %d, want 33", logs.count())
	}
}

func TestCreditBack(t *testing.T) {
	ctx := context.Background()
	uc, periods, logs, p := newQuotaFixture(t, 100, 0)

	receipt, err := uc.CheckAndDeduct(ctx, DeductRequest{TeacherID: "teacher-1", UnitCount: 40, FeatureType: "speech_assessment"})
	if err != nil {
		t.Fatalf("CheckAndDeduct: %v", err)
	}

	if err := uc.CreditBack(ctx, receipt); err != nil {
		t.Fatalf("CreditBack: %v", err)
	}
	got, _ := periods.FindByID(ctx, nil, p.ID)
	if got.QuotaUsed != 0 {
		t.Errorf("quota used = %d, want 0 after credit back", got.QuotaUsed)
	}
	if logs.count() != 2 {
		t.Errorf("usage rows = %d, want 2 (original + correction)", logs.count())
	}
	corr, err := logs.FindCorrectionOf(ctx, nil, receipt.UsageLogID)
	if err != nil {
		t.Fatalf("FindCorrectionOf: %v", err)
	}
	if corr.PointsUsed != -40 || corr.CorrectsID == nil || *corr.CorrectsID != receipt.UsageLogID {
		t.Errorf("correction = %+v", corr)
	}

	// The log still reconstructs quota_used.
	sum, _ := logs.SumPointsForPeriod(ctx, nil, p.ID, time.Now().Add(time.Minute))
	if sum != 0 {
		t.Errorf("points sum = %d, want 0", sum)
	}

	// Second credit back is a benign no-op.
	if err := uc.CreditBack(ctx, receipt); err != nil {
		t.Fatalf("repeat CreditBack: %v", err)
	}
	got, _ = periods.FindByID(ctx, nil, p.ID)
	if got.QuotaUsed != 0 {
		t.Errorf("quota used = %d after repeat, want 0", got.QuotaUsed)
	}
	if logs.count() != 2 {
		t.Errorf("usage rows = %d after repeat, want 2", logs.count())
	}
}

func TestCreditBackRejectsCorrectiveRow(t *testing.T) {
	ctx := context.Background()
	uc, _, logs, _ := newQuotaFixture(t, 100, 0)

	receipt, err := uc.CheckAndDeduct(ctx, DeductRequest{TeacherID: "teacher-1", UnitCount: 10, FeatureType: "speech_assessment"})
	if err != nil {
		t.Fatalf("CheckAndDeduct: %v", err)
	}
	if err := uc.CreditBack(ctx, receipt); err != nil {
		t.Fatalf("CreditBack: %v", err)
	}
	corr, _ := logs.FindCorrectionOf(ctx, nil, receipt.UsageLogID)

	bad := &model.Receipt{UsageLogID: corr.ID, PeriodID: corr.PeriodID, TeacherID: corr.TeacherID}
	if err := uc.CreditBack(ctx, bad); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("crediting a correction: err = %v, want ErrInvalidArgument", err)
	}
}
