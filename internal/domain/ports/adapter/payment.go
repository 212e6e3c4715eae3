package adapter

import "context"

// PaymentGateway is the outbound port to the payment provider, used only by
// the renewal scheduler. Implementations must respect ctx deadlines; the
// caller runs the charge with a bounded timeout and treats any error as a
// declined charge (no partial state).
type PaymentGateway interface {
	Name() string
	// Charge bills the teacher's bound card and returns the provider's
	// rec_trade_id on success.
	Charge(ctx context.Context, teacherID string, amount int64, currency, orderRef string) (string, error)
}
