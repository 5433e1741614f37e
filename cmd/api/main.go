package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-membership-api/internal/app"
	"github.com/go-membership-api/internal/application/sweep"
	"github.com/go-membership-api/internal/config"
	"github.com/go-membership-api/internal/obs"
	transporthttp "github.com/go-membership-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger := obs.NewLogger(os.Stdout, cfg.AppEnv, cfg.LogLevel)
	if envErr != nil {
		logger.Info("no .env file found, reading from environment")
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	obs.Init()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	loc, _ := cfg.Location()
	scheduler, err := sweep.NewScheduler(a.Jobs, sweep.ScheduleConfig{
		Location:       loc,
		ExpireSchedule: cfg.ExpireSchedule,
		PurgeSchedule:  cfg.PurgeSchedule,
	}, logger)
	if err != nil {
		logger.Error("invalid sweep schedule", "err", err)
		os.Exit(1)
	}
	scheduler.Start()

	router, stopRouter := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Signup: a.Signup,
		Reset:  a.Reset,
		Sweeps: a.Jobs,
		Ready:  a.Ready,
		Logger: logger,
	})
	defer stopRouter()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "err", err)
	}
	scheduler.Stop(shutdownCtx)
	logger.Info("server stopped")
}
