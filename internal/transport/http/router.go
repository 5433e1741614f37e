package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-membership-api/internal/config"
	"github.com/go-membership-api/internal/obs"
	"github.com/go-membership-api/internal/transport/http/handler"
	appmiddleware "github.com/go-membership-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds the application router. The returned func stops the rate
// limiter's background cleanup and must be called on shutdown.
func NewRouter(cfg *config.Config, deps *Deps) (http.Handler, func()) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	if cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(obs.Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10, applied to every public account endpoint.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler(deps.Ready...)
	signupH := handler.NewSignupHandler(deps.Signup, logger)
	pwH := handler.NewPasswordResetHandler(deps.Reset, logger)

	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(sensitiveRL.Limit)

			r.Post("/register", signupH.Register)
			r.Post("/verify-otp", signupH.VerifyOTP)
			r.Post("/resend-otp", signupH.ResendOTP)
			r.Post("/password/{action}", pwH.Action)
		})

		if deps.Sweeps != nil && cfg.OpsAPIKey != "" {
			sweepH := handler.NewSweepHandler(deps.Sweeps, logger)
			r.With(appmiddleware.RequireOpsKey(cfg.OpsAPIKey)).Post("/ops/sweeps/{job}", sweepH.Run)
		}
	})

	return r, sensitiveRL.Close
}
