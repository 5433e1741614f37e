package http

import (
	"log/slog"

	"github.com/go-membership-api/internal/application/reset"
	"github.com/go-membership-api/internal/application/signup"
	"github.com/go-membership-api/internal/transport/http/handler"
)

// Deps holds the application services the router exposes.
type Deps struct {
	Signup signup.Service
	Reset  reset.Service
	// Sweeps backs the /ops routes; nil or an empty OpsAPIKey leaves them unmounted.
	Sweeps handler.SweepRunner
	// Ready is probed by /health-check/ready.
	Ready  []handler.Pinger
	Logger *slog.Logger
}
