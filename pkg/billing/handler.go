package billing

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Signature payloads are small; anything larger is not a processor event.
const maxWebhookBodyBytes = int64(65536)

// WebhookHandler returns the HTTP endpoint for processor event delivery.
// Verification failures answer 400 and are never retried; processing
// failures answer 500 so the processor redelivers.
func WebhookHandler(svc *Service, log *slog.Logger) http.HandlerFunc {
	if svc == nil {
		panic("billing: service is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			log.ErrorContext(r.Context(), "failed to read webhook body", slog.Any("error", err))
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}

		event, err := svc.ParseEvent(body, r.Header.Get("Stripe-Signature"))
		if err != nil {
			log.WarnContext(r.Context(), "webhook signature verification failed", slog.Any("error", err))
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "signature verification failed"})
			return
		}

		if err := svc.ProcessWebhookEvent(r.Context(), event); err != nil {
			log.ErrorContext(r.Context(), "webhook event processing failed",
				slog.String("provider_type", event.ProviderType),
				slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "event processing failed"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// NewRouter mounts the billing endpoints on a chi router.
func NewRouter(svc *Service, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Post("/webhooks/billing", WebhookHandler(svc, log))

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
