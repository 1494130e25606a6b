package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/mfagate/internal/auth"
	"github.com/BradenHooton/mfagate/internal/handlers"
	"github.com/BradenHooton/mfagate/internal/middleware"
	pkghttp "github.com/BradenHooton/mfagate/pkg/http"
)

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies collects everything the route table needs
type Dependencies struct {
	AuthHandler   *handlers.AuthHandler
	MFAHandler    *handlers.MFAHandler
	Sessions      auth.SessionValidator
	Users         auth.UserRepository
	Health        HealthChecker
	IPResolver    *pkghttp.ClientIPResolver
	AuthRateLimit middleware.RateLimitConfig
	UserRateLimit middleware.RateLimitConfig
	Logger        *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	router.Get("/health", healthHandler(deps.Health))

	// Public routes, limited per client IP
	router.Route("/auth", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(deps.AuthRateLimit, deps.IPResolver))

		r.Post("/register", deps.AuthHandler.Register)
		r.Get("/availability", deps.AuthHandler.CheckAvailability)
		r.Post("/login", deps.AuthHandler.Login)
		r.Post("/request-otp", deps.AuthHandler.RequestOTP)
		r.Post("/verify-otp", deps.AuthHandler.VerifyOTP)
		r.Post("/forgot-password", deps.AuthHandler.ForgotPassword)
		r.Post("/verify-reset-code", deps.AuthHandler.VerifyResetCode)
		r.Post("/reset-password", deps.AuthHandler.ResetPassword)
	})

	// Session routes act on the bearer token's subject
	router.Route("/mfa", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(deps.Sessions, deps.Users, deps.Logger))
		r.Use(middleware.RateLimitByUserID(deps.UserRateLimit, deps.IPResolver))

		r.Get("/methods", deps.MFAHandler.Methods)
		r.Post("/email/enable", deps.MFAHandler.EnableEmail)
		r.Post("/sms/enable", deps.MFAHandler.EnableSMS)
		r.Post("/app/enable", deps.MFAHandler.EnableApp)
		r.Post("/disable", deps.MFAHandler.DisableMethod)
		r.Get("/trusted-devices", deps.MFAHandler.TrustedDevices)
		r.Post("/trusted-devices/revoke-all", deps.MFAHandler.RevokeAllDevices)
	})
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Database: "down"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, healthResponse{Status: "healthy", Database: "up"})
	}
}
