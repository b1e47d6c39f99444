package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/passcode/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds per-IP rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	IPConfig          *pkghttp.IPConfig
}

// DefaultOTPRateLimit returns the default per-IP limit for OTP endpoints
func DefaultOTPRateLimit(ipConfig *pkghttp.IPConfig) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
		IPConfig:          ipConfig,
	}
}

// RateLimitByIP limits requests per client IP. It shields the store from
// floods across many addresses; per-email ceilings are enforced separately.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	window := time.Minute

	return httprate.Limit(
		config.RequestsPerMinute,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Rate limit exceeded", window)
		}),
	)
}
