package smtp

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/go-membership-api/internal/application/otp"
	"github.com/go-membership-api/internal/config"
	"github.com/go-membership-api/internal/domain"
)

// Mailer delivers one-time codes by email.
type Mailer struct {
	host     string
	port     string
	from     string
	username string
	password string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.SMTPFrom,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		send:     smtp.SendMail,
	}
}

// SendOTP implements otp.Notifier. net/smtp has no context support, so ctx is
// only checked before dialing.
func (m *Mailer) SendOTP(ctx context.Context, d otp.Dispatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body := render(d)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		m.from, d.Recipient, subject, body)
	addr := fmt.Sprintf("%s:%s", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	if err := m.send(addr, auth, m.from, []string{d.Recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	return nil
}

func render(d otp.Dispatch) (subject, body string) {
	minutes := int(time.Until(d.ExpiresAt).Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}
	var b strings.Builder
	switch d.Purpose {
	case domain.PurposeResetPassword:
		subject = "Your password reset code"
		b.WriteString("We received a request to reset your password.\r\n\r\n")
	default:
		subject = "Verify your email"
		b.WriteString("Thanks for signing up.\r\n\r\n")
	}
	fmt.Fprintf(&b, "Your code is %s. It expires in %d minutes.\r\n", d.Code, minutes)
	b.WriteString("If you did not ask for this, you can ignore this email.\r\n")
	return subject, b.String()
}
