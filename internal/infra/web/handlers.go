package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"speech-ai-subscription/internal/domain"
	"speech-ai-subscription/internal/domain/model"
	"speech-ai-subscription/internal/infra/metrics"
	"speech-ai-subscription/internal/usecase"
)

type adminClaimsKey struct{}

func withAdminClaims(ctx context.Context, c *AdminClaims) context.Context {
	return context.WithValue(ctx, adminClaimsKey{}, c)
}

func adminClaimsFrom(ctx context.Context) *AdminClaims {
	c, _ := ctx.Value(adminClaimsKey{}).(*AdminClaims)
	return c
}

// The expected JSON body of a payment-gateway webhook delivery.
type webhookPayload struct {
	RecTradeID        string `json:"rec_trade_id"`
	Event             string `json:"event"`  // recharge | refund
	Status            int    `json:"status"` // provider result code, 0 = success
	Amount            int64  `json:"amount"`
	RefundAmount      int64  `json:"refund_amount"`
	OriginalAmount    int64  `json:"original_amount"`
	Currency          string `json:"currency"`
	MerchantReference string `json:"merchant_reference"`
	Months            int    `json:"months"`
	PlanName          string `json:"plan_name"`
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.IncWebhookEvent("unknown", "rejected")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Failed-charge notifications carry a non-zero status. Nothing to
	// apply, but the gateway still expects an ack.
	if req.Status != 0 {
		metrics.IncWebhookEvent(req.Event, "ignored")
		writeJSON(w, http.StatusOK, usecase.Ack{Kind: req.Event})
		return
	}

	ev := usecase.WebhookEvent{
		ExternalTransactionID: req.RecTradeID,
		Kind:                  usecase.EventKind(req.Event),
		Amount:                req.Amount,
		RefundAmount:          req.RefundAmount,
		OriginalAmount:        req.OriginalAmount,
		Currency:              req.Currency,
		MerchantReference:     req.MerchantReference,
		Months:                req.Months,
		PlanName:              req.PlanName,
	}

	ack, err := s.webhookUC.HandleWebhook(r.Context(), ev)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMalformedWebhook):
			metrics.IncWebhookEvent(req.Event, "rejected")
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrUnknownTransaction):
			// Permanent anomaly: a 4xx stops the gateway's retry loop and
			// hands the event to manual reconciliation.
			metrics.IncWebhookEvent(req.Event, "rejected")
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			metrics.IncWebhookEvent(req.Event, "error")
			s.log.Error().Err(err).Str("rec_trade_id", req.RecTradeID).Msg("webhook processing failed")
			http.Error(w, "Failed to process webhook", http.StatusInternalServerError)
		}
		return
	}

	if ack.Duplicate {
		metrics.IncWebhookEvent(req.Event, "duplicate")
	} else {
		metrics.IncWebhookEvent(req.Event, "applied")
	}
	writeJSON(w, http.StatusOK, ack)
}

type deductRequest struct {
	TeacherID    string  `json:"teacher_id"`
	UnitCount    int64   `json:"unit_count"`
	UnitType     string  `json:"unit_type"`
	FeatureType  string  `json:"feature_type"`
	StudentID    *string `json:"student_id,omitempty"`
	AssignmentID *string `json:"assignment_id,omitempty"`
}

func (s *Server) handleQuotaDeduct(w http.ResponseWriter, r *http.Request) {
	var req deductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	receipt, err := s.quotaUC.CheckAndDeduct(r.Context(), usecase.DeductRequest{
		TeacherID:    req.TeacherID,
		UnitCount:    req.UnitCount,
		UnitType:     req.UnitType,
		FeatureType:  req.FeatureType,
		StudentID:    req.StudentID,
		AssignmentID: req.AssignmentID,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument):
			metrics.IncQuotaDeduction("error")
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrNoActiveSubscription):
			metrics.IncQuotaDeduction("no_subscription")
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, domain.ErrInsufficientQuota):
			metrics.IncQuotaDeduction("insufficient")
			http.Error(w, err.Error(), http.StatusPaymentRequired)
		default:
			metrics.IncQuotaDeduction("error")
			s.log.Error().Err(err).Str("teacher_id", req.TeacherID).Msg("quota deduct failed")
			http.Error(w, "Failed to deduct quota", http.StatusInternalServerError)
		}
		return
	}

	metrics.IncQuotaDeduction("ok")
	metrics.AddQuotaSecondsUsed(receipt.PointsUsed)
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleQuotaCreditBack(w http.ResponseWriter, r *http.Request) {
	var receipt model.Receipt
	if err := json.NewDecoder(r.Body).Decode(&receipt); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.quotaUC.CreditBack(r.Context(), &receipt); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			s.log.Error().Err(err).Str("usage_log_id", receipt.UsageLogID).Msg("credit back failed")
			http.Error(w, "Failed to credit back", http.StatusInternalServerError)
		}
		return
	}

	metrics.IncQuotaCreditBack()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenewalRun(w http.ResponseWriter, r *http.Request) {
	summary, err := s.renewalUC.RunDaily(r.Context(), time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("renewal pass failed")
		http.Error(w, "Failed to run renewals", http.StatusInternalServerError)
		return
	}
	metrics.AddRenewals("renewed", summary.Renewed)
	metrics.AddRenewals("failed", summary.Failed)
	metrics.AddRenewals("skipped", summary.Skipped)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCurrentSubscription(w http.ResponseWriter, r *http.Request) {
	teacherID := chi.URLParam(r, "teacherID")
	p, err := s.periodUC.CurrentPeriod(r.Context(), teacherID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if errors.Is(err, domain.ErrInvalidArgument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error().Err(err).Str("teacher_id", teacherID).Msg("current subscription lookup failed")
		http.Error(w, "Failed to get subscription", http.StatusInternalServerError)
		return
	}

	response := struct {
		Period    *model.SubscriptionPeriod `json:"period"`
		Remaining int64                     `json:"quota_remaining"`
	}{
		Period:    p,
		Remaining: p.QuotaTotal - p.QuotaUsed,
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleGrantTrial(w http.ResponseWriter, r *http.Request) {
	teacherID := chi.URLParam(r, "teacherID")
	p, err := s.periodUC.GrantTrial(r.Context(), teacherID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrAlreadyExists):
			http.Error(w, "Teacher already has a subscription period", http.StatusConflict)
		default:
			s.log.Error().Err(err).Str("teacher_id", teacherID).Msg("trial grant failed")
			http.Error(w, "Failed to grant trial", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type adminGrantRequest struct {
	PlanName     string                 `json:"plan_name"`
	DurationDays int                    `json:"duration_days"`
	QuotaSeconds int64                  `json:"quota_seconds"`
	Reason       string                 `json:"reason"`
	Meta         map[string]interface{} `json:"meta,omitempty"`
}

func (s *Server) handleAdminGrant(w http.ResponseWriter, r *http.Request) {
	teacherID := chi.URLParam(r, "teacherID")
	var req adminGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	adminID := "admin"
	if claims := adminClaimsFrom(r.Context()); claims != nil && claims.Subject != "" {
		adminID = claims.Subject
	}

	p, err := s.periodUC.AdminGrant(r.Context(), usecase.AdminGrantRequest{
		TeacherID:    teacherID,
		PlanName:     req.PlanName,
		DurationDays: req.DurationDays,
		QuotaSeconds: req.QuotaSeconds,
		AdminID:      adminID,
		Reason:       req.Reason,
		Meta:         req.Meta,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error().Err(err).Str("teacher_id", teacherID).Msg("admin grant failed")
		http.Error(w, "Failed to apply grant", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	teacherID := chi.URLParam(r, "teacherID")
	if err := s.periodUC.Cancel(r.Context(), teacherID); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrNoActiveSubscription):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, domain.ErrAlreadyCancelled):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			s.log.Error().Err(err).Str("teacher_id", teacherID).Msg("cancel failed")
			http.Error(w, "Failed to cancel", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	n, err := s.periodUC.SweepExpired(r.Context(), time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("manual sweep failed")
		http.Error(w, "Failed to sweep", http.StatusInternalServerError)
		return
	}
	if n > 0 {
		metrics.IncPeriodsExpired(n)
	}
	writeJSON(w, http.StatusOK, struct {
		Expired int `json:"expired"`
	}{Expired: n})
}

type adminLoginRequest struct {
	Key     string `json:"key"`
	AdminID string `json:"admin_id"`
}

// handleAdminLogin exchanges the configured admin key for a session token.
func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if s.adminKey == "" || s.auth == nil {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Key), []byte(s.adminKey)) != 1 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	subject := req.AdminID
	if subject == "" {
		subject = "admin"
	}
	tok, err := s.auth.Mint(subject)
	if err != nil {
		s.log.Error().Err(err).Msg("token mint failed")
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
	}{Token: tok, ExpiresIn: int64(s.auth.ttl.Seconds())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
