package web

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"speech-ai-subscription/internal/usecase"
)

type Server struct {
	quotaUC   usecase.QuotaUseCase
	periodUC  usecase.PeriodUseCase
	webhookUC usecase.WebhookUseCase
	renewalUC usecase.RenewalUseCase

	auth       *AuthManager
	cronSecret string
	adminKey   string
	log        *zerolog.Logger
}

func NewServer(
	quotaUC usecase.QuotaUseCase,
	periodUC usecase.PeriodUseCase,
	webhookUC usecase.WebhookUseCase,
	renewalUC usecase.RenewalUseCase,
	auth *AuthManager,
	cronSecret string,
	adminKey string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		quotaUC:    quotaUC,
		periodUC:   periodUC,
		webhookUC:  webhookUC,
		renewalUC:  renewalUC,
		auth:       auth,
		cronSecret: cronSecret,
		adminKey:   adminKey,
		log:        &l,
	}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Gateway-facing: signature is verified upstream at the ingress.
		r.Post("/webhooks/payment", s.handlePaymentWebhook)

		// Service-to-service metering endpoints.
		r.Post("/quota/deduct", s.handleQuotaDeduct)
		r.Post("/quota/credit-back", s.handleQuotaCreditBack)

		// Cron trigger for the daily renewal pass.
		r.With(s.cronAuth).Post("/renewals/run", s.handleRenewalRun)

		r.Get("/teachers/{teacherID}/subscription", s.handleCurrentSubscription)

		// Admin surface. Login exchanges the admin key for a session
		// token, the rest requires one.
		r.Route("/admin", func(r chi.Router) {
			r.Post("/auth/login", s.handleAdminLogin)
			r.Group(func(r chi.Router) {
				r.Use(s.adminAuth)
				r.Post("/teachers/{teacherID}/trial", s.handleGrantTrial)
				r.Post("/teachers/{teacherID}/grant", s.handleAdminGrant)
				r.Delete("/teachers/{teacherID}/subscription", s.handleCancel)
				r.Post("/sweep", s.handleSweep)
			})
		})
	})
	return r
}

// cronAuth guards the renewal trigger with a shared secret header.
func (s *Server) cronAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cronSecret == "" {
			s.log.Error().Msg("cron secret is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		got := r.Header.Get("X-Cron-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cronSecret)) != 1 {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminAuth requires a valid admin JWT.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAdminClaims(r.Context(), claims)))
	})
}
