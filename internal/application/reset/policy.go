package reset

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-membership-api/internal/domain"
)

// GenericAck is the only response request, resend and cancel ever produce.
var GenericAck = domain.Ack{
	Success: true,
	Message: "If an account exists for this email, a verification code has been sent.",
}

// enumerationSafe runs fn and discards its outcome. A missing account is the
// expected quiet case; anything else is logged but never surfaced.
func enumerationSafe(ctx context.Context, logger *slog.Logger, op string, fn func(ctx context.Context) error) domain.Ack {
	if err := fn(ctx); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.DebugContext(ctx, "password reset target not found", "op", op)
		} else {
			logger.ErrorContext(ctx, "password reset step failed", "op", op, "err", err)
		}
	}
	return GenericAck
}
