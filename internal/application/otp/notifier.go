package otp

import (
	"context"
	"log/slog"
)

// LogNotifier writes codes to the log instead of delivering them. Development only.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) SendOTP(ctx context.Context, d Dispatch) error {
	l := n.Logger
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "otp issued", "owner_id", d.OwnerID, "purpose", d.Purpose,
		"recipient", d.Recipient, "code", d.Code, "expires_at", d.ExpiresAt)
	return nil
}
