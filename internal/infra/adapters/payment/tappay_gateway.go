// File: internal/infra/adapters/payment/tappay_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"speech-ai-subscription/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*TapPayGateway)(nil)

// TapPayGateway implements adapter.PaymentGateway against the TapPay
// pay-by-token endpoint. Renewal charges reuse the card token stored
// under the teacher's merchant reference.
type TapPayGateway struct {
	merchantID string
	partnerKey string
	baseURL    string
	client     *http.Client
}

func NewTapPayGateway(merchantID, partnerKey, baseURL string, timeout time.Duration) (*TapPayGateway, error) {
	if merchantID == "" {
		return nil, errors.New("merchant id empty")
	}
	if partnerKey == "" {
		return nil, errors.New("partner key empty")
	}
	if baseURL == "" {
		baseURL = "https://sandbox.tappaysdk.com"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TapPayGateway{
		merchantID: merchantID,
		partnerKey: partnerKey,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

func (g *TapPayGateway) Name() string { return "tappay" }

// Charge runs a token charge and returns the provider rec_trade_id on success.
func (g *TapPayGateway) Charge(ctx context.Context, teacherID string, amount int64, currency, orderRef string) (string, error) {
	payload := map[string]any{
		"partner_key": g.partnerKey,
		"merchant_id": g.merchantID,
		"amount":      amount,
		"currency":    currency,
		"order_number": orderRef,
		"details":      "subscription renewal",
		"cardholder": map[string]any{
			"member_id": teacherID,
		},
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/tpc/payment/pay-by-token", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.partnerKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("tappay http %d", resp.StatusCode)
	}
	var out struct {
		Status      int    `json:"status"`
		Msg         string `json:"msg"`
		RecTradeID  string `json:"rec_trade_id"`
		BankCode    string `json:"bank_result_code"`
		OrderNumber string `json:"order_number"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	// status 0 means accepted. Any other status is a decline.
	if out.Status != 0 || out.RecTradeID == "" {
		return "", fmt.Errorf("tappay charge declined: status=%d msg=%s bank=%s", out.Status, out.Msg, out.BankCode)
	}
	return out.RecTradeID, nil
}
