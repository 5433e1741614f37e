package app

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-membership-api/internal/application/otp"
	"github.com/go-membership-api/internal/config"
	"github.com/go-membership-api/internal/infrastructure/smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	cfg := config.Load()
	cfg.StoreBackend = "memory"
	cfg.NotifierBackend = "log"
	cfg.RedisAddr = ""
	cfg.S3ReportBucket = ""
	cfg.SchedulerTimezone = "UTC"
	cfg.TokenSecret = strings.Repeat("k", 32)
	return cfg
}

func TestNew_MemoryBackend(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), slog.Default())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Signup)
	assert.NotNil(t, a.Reset)
	require.NotNil(t, a.Jobs)
	assert.Empty(t, a.Ready)

	r, err := a.Jobs.Run(context.Background(), "expire")
	require.NoError(t, err)
	assert.Zero(t, r.Count)
}

func TestNew_RejectsUnknownBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = "postgres"
	_, err := New(context.Background(), cfg, slog.Default())
	assert.ErrorContains(t, err, "STORE_BACKEND")

	cfg = memoryConfig()
	cfg.NotifierBackend = "pigeon"
	_, err = New(context.Background(), cfg, slog.Default())
	assert.ErrorContains(t, err, "NOTIFIER_BACKEND")
}

func TestNew_ShortSecret(t *testing.T) {
	cfg := memoryConfig()
	cfg.TokenSecret = "short"
	_, err := New(context.Background(), cfg, slog.Default())
	assert.Error(t, err)
}

func TestNewNotifier(t *testing.T) {
	cfg := memoryConfig()
	n, err := newNotifier(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	assert.IsType(t, otp.LogNotifier{}, n)

	cfg.NotifierBackend = "smtp"
	n, err = newNotifier(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	assert.IsType(t, &smtp.Mailer{}, n)
}
