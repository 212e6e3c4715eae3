// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"speech-ai-subscription/internal/domain"
	"speech-ai-subscription/internal/domain/model"
	"speech-ai-subscription/internal/domain/ports/adapter"
	"speech-ai-subscription/internal/domain/ports/repository"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// mockTxManager serializes every transaction body with one mutex, standing in
// for the per-teacher advisory lock the Postgres implementation takes.
type mockTxManager struct {
	mu sync.Mutex
}

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, repository.NoTX)
}

// memPeriodRepo is a small in-memory implementation used by unit tests.
type memPeriodRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.SubscriptionPeriod
	saveErr error // used by tests to simulate save failures
}

func newMemPeriodRepo() *memPeriodRepo {
	return &memPeriodRepo{store: make(map[string]*model.SubscriptionPeriod)}
}

func (m *memPeriodRepo) put(p *model.SubscriptionPeriod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
}

func (m *memPeriodRepo) Save(ctx context.Context, _ repository.Tx, p *model.SubscriptionPeriod) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.put(p)
	return nil
}

func (m *memPeriodRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.SubscriptionPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPeriodRepo) FindCurrentByTeacher(ctx context.Context, _ repository.Tx, teacherID string) (*model.SubscriptionPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	var best *model.SubscriptionPeriod
	for _, p := range m.store {
		if p.TeacherID != teacherID {
			continue
		}
		live := p.Status == model.PeriodStatusActive || p.Status == model.PeriodStatusExpiring
		cancelled := p.Status == model.PeriodStatusCancelled && p.EndDate.After(now)
		if !live && !cancelled {
			continue
		}
		// Live periods win over cancelled ones, later end dates win ties.
		if best == nil || (live && best.Status == model.PeriodStatusCancelled) || p.EndDate.After(best.EndDate) {
			best = p
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memPeriodRepo) FindExpiringOn(ctx context.Context, _ repository.Tx, date time.Time, loc *time.Location) ([]*model.SubscriptionPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	y, mo, d := date.In(loc).Date()
	var out []*model.SubscriptionPeriod
	for _, p := range m.store {
		if p.CancelledAt != nil || p.Status == model.PeriodStatusExpired {
			continue
		}
		py, pm, pd := p.EndDate.In(loc).Date()
		if py == y && pm == mo && pd == d {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPeriodRepo) FindExpiredWithoutSuccessor(ctx context.Context, _ repository.Tx, since time.Time) ([]*model.SubscriptionPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SubscriptionPeriod
	for _, p := range m.store {
		if p.Status != model.PeriodStatusExpired || p.CancelledAt != nil || p.EndDate.Before(since) {
			continue
		}
		succeeded := false
		for _, q := range m.store {
			if q.TeacherID == p.TeacherID && q.ID != p.ID && !q.StartDate.Before(p.EndDate) {
				succeeded = true
				break
			}
		}
		if !succeeded {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPeriodRepo) FindOverdue(ctx context.Context, _ repository.Tx, now time.Time, limit int) ([]*model.SubscriptionPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SubscriptionPeriod
	for _, p := range m.store {
		switch p.Status {
		case model.PeriodStatusActive, model.PeriodStatusExpiring, model.PeriodStatusCancelled:
		default:
			continue
		}
		if !p.EndDate.After(now) {
			cp := *p
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memPeriodRepo) FindNearingEnd(ctx context.Context, _ repository.Tx, now time.Time, window time.Duration) ([]*model.SubscriptionPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SubscriptionPeriod
	cut := now.Add(window)
	for _, p := range m.store {
		if p.Status != model.PeriodStatusActive {
			continue
		}
		if p.EndDate.After(now) && !p.EndDate.After(cut) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPeriodRepo) AcquireTeacherLock(ctx context.Context, _ repository.Tx, teacherID string) error {
	// The mockTxManager mutex already serializes transaction bodies.
	return nil
}

func (m *memPeriodRepo) CountByStatus(ctx context.Context, _ repository.Tx) (map[model.PeriodStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.PeriodStatus]int)
	for _, p := range m.store {
		out[p.Status]++
	}
	return out, nil
}

// memTransactionRepo keeps the ledger in memory and enforces the
// (external_transaction_id, transaction_type) idempotency key the way the
// partial unique index does.
type memTransactionRepo struct {
	mu    sync.RWMutex
	store map[string]*model.TeacherTransaction
}

func newMemTransactionRepo() *memTransactionRepo {
	return &memTransactionRepo{store: make(map[string]*model.TeacherTransaction)}
}

func (m *memTransactionRepo) Save(ctx context.Context, _ repository.Tx, t *model.TeacherTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ExternalTransactionID != nil {
		for _, e := range m.store {
			if e.ID != t.ID && e.Type == t.Type && e.ExternalTransactionID != nil && *e.ExternalTransactionID == *t.ExternalTransactionID {
				return domain.ErrAlreadyExists
			}
		}
	}
	cp := *t
	m.store[t.ID] = &cp
	return nil
}

func (m *memTransactionRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.TeacherTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTransactionRepo) FindByExternalID(ctx context.Context, _ repository.Tx, externalID string, typ model.TransactionType) (*model.TeacherTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.store {
		if t.Type == typ && t.ExternalTransactionID != nil && *t.ExternalTransactionID == externalID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memTransactionRepo) MarkWebhookStatus(ctx context.Context, _ repository.Tx, id string, status model.WebhookStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.WebhookStatus = status
	return nil
}

func (m *memTransactionRepo) ListByTeacher(ctx context.Context, _ repository.Tx, teacherID string, limit int) ([]*model.TeacherTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.TeacherTransaction
	for _, t := range m.store {
		if t.TeacherID == teacherID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTransactionRepo) byType(typ model.TransactionType) []*model.TeacherTransaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.TeacherTransaction
	for _, t := range m.store {
		if t.Type == typ {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

// memUsageLogRepo stores usage rows and enforces single-correction.
type memUsageLogRepo struct {
	mu    sync.RWMutex
	store map[string]*model.PointUsageLog
}

func newMemUsageLogRepo() *memUsageLogRepo {
	return &memUsageLogRepo{store: make(map[string]*model.PointUsageLog)}
}

func (m *memUsageLogRepo) Save(ctx context.Context, _ repository.Tx, l *model.PointUsageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.CorrectsID != nil {
		for _, e := range m.store {
			if e.CorrectsID != nil && *e.CorrectsID == *l.CorrectsID && e.ID != l.ID {
				return domain.ErrAlreadyExists
			}
		}
	}
	cp := *l
	m.store[l.ID] = &cp
	return nil
}

func (m *memUsageLogRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.PointUsageLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memUsageLogRepo) FindCorrectionOf(ctx context.Context, _ repository.Tx, logID string) (*model.PointUsageLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.store {
		if l.CorrectsID != nil && *l.CorrectsID == logID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUsageLogRepo) SumPointsForPeriod(ctx context.Context, _ repository.Tx, periodID string, until time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	for _, l := range m.store {
		if l.PeriodID == periodID && !l.CreatedAt.After(until) {
			sum += l.PointsUsed
		}
	}
	return sum, nil
}

func (m *memUsageLogRepo) ListByTeacher(ctx context.Context, _ repository.Tx, teacherID string, limit int) ([]*model.PointUsageLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PointUsageLog
	for _, l := range m.store {
		if l.TeacherID == teacherID {
			cp := *l
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memUsageLogRepo) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

type memTeacherRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Teacher
}

func newMemTeacherRepo() *memTeacherRepo {
	return &memTeacherRepo{store: make(map[string]*model.Teacher)}
}

func (m *memTeacherRepo) put(t *model.Teacher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.store[t.ID] = &cp
}

func (m *memTeacherRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTeacherRepo) FindByMerchantReference(ctx context.Context, _ repository.Tx, ref string) (*model.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.store {
		if t.MerchantReference == ref {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

type memPlanRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Plan // by name
}

func newMemPlanRepo() *memPlanRepo {
	return &memPlanRepo{store: make(map[string]*model.Plan)}
}

func (m *memPlanRepo) Save(ctx context.Context, _ repository.Tx, p *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.Name] = &cp
	return nil
}

func (m *memPlanRepo) FindByName(ctx context.Context, _ repository.Tx, name string) (*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPlanRepo) List(ctx context.Context, _ repository.Tx) ([]*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Plan
	for _, p := range m.store {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// mockGateway simulates charges; chargeFn is overridable per test.
type mockGateway struct {
	mu       sync.Mutex
	seq      int
	chargeFn func(teacherID string, amount int64) (string, error)
	charges  int
}

func (g *mockGateway) Name() string { return "mock" }

func (g *mockGateway) Charge(ctx context.Context, teacherID string, amount int64, currency, orderRef string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges++
	if g.chargeFn != nil {
		return g.chargeFn(teacherID, amount)
	}
	g.seq++
	return "trade-" + orderRef, nil
}

// mockNotifier records delivered notifications.
type mockNotifier struct {
	mu   sync.Mutex
	sent []adapter.NotificationKind
}

func (n *mockNotifier) Notify(ctx context.Context, teacherID string, kind adapter.NotificationKind, detail string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, kind)
	return nil
}

func (n *mockNotifier) got(kind adapter.NotificationKind) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, k := range n.sent {
		if k == kind {
			return true
		}
	}
	return false
}

// mockCache counts invalidations; Get always misses.
type mockCache struct {
	mu           sync.Mutex
	invalidated  int
	sets         int
	stored       map[string]*model.SubscriptionPeriod
	serveFromMap bool
}

func newMockCache() *mockCache {
	return &mockCache{stored: make(map[string]*model.SubscriptionPeriod)}
}

func (c *mockCache) Get(ctx context.Context, teacherID string) (*model.SubscriptionPeriod, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.serveFromMap {
		return nil, false
	}
	p, ok := c.stored[teacherID]
	return p, ok
}

func (c *mockCache) Set(ctx context.Context, teacherID string, p *model.SubscriptionPeriod) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.stored[teacherID] = p
}

func (c *mockCache) Invalidate(ctx context.Context, teacherID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	delete(c.stored, teacherID)
}
