package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/passcode/internal/handlers"
	"github.com/BradenHooton/passcode/internal/middleware"
	pkghttp "github.com/BradenHooton/passcode/pkg/http"
	"github.com/go-chi/chi/v5"
)

// HealthChecker reports whether a backing dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	otpHandler *handlers.OTPHandler,
	store HealthChecker,
	rateLimitConfig middleware.RateLimitConfig,
	logger *slog.Logger,
) {
	router.Get("/health", healthHandler(store, logger))

	router.Route("/v1/otp", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		// Combined endpoint dispatches on the body's action field
		r.Post("/", otpHandler.Handle)
		r.Post("/request", otpHandler.Request)
		r.Post("/verify", otpHandler.Verify)
	})
}

func healthHandler(store HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.HealthCheck(ctx); err != nil {
			logger.Error("health check failed", slog.Any("error", err))
			pkghttp.WriteError(w, http.StatusServiceUnavailable, "unavailable", "Store unavailable")
			return
		}

		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
