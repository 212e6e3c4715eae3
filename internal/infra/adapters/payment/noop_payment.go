package payment

import (
	"context"
	"fmt"
	"sync"

	"speech-ai-subscription/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is a simple in-memory gateway to use in tests and dev mode.
type NoopPaymentGateway struct {
	mu      sync.Mutex
	seq     int64
	charges map[string]int64 // rec trade id -> amount
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		charges: make(map[string]int64),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) Charge(ctx context.Context, teacherID string, amount int64, currency, orderRef string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("noop-%d", g.seq)
	g.charges[id] = amount
	return id, nil
}
