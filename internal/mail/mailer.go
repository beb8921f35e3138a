package mail

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrDelivery wraps any outbound dispatch failure. Orchestrators roll back
// their whole transaction when they see it.
var ErrDelivery = errors.New("mail delivery failed")

// Mailer dispatches transactional mail. A failed send must be reported
// synchronously so the calling transaction can roll back.
type Mailer interface {
	SendOTP(ctx context.Context, to, otp string, expiresAt time.Time) error
	SendPasswordReset(ctx context.Context, to, resetLink string, expiresAt time.Time) error
}

// LogMailer writes mail to the log instead of sending it. It stands in
// for SMTP in development environments where no relay is configured.
type LogMailer struct{}

// SendOTP logs the verification code.
func (LogMailer) SendOTP(_ context.Context, to, otp string, expiresAt time.Time) error {
	log.WithFields(log.Fields{"to": to, "otp": otp, "expires_at": expiresAt}).
		Info("mail: otp (log mailer)")
	return nil
}

// SendPasswordReset logs the reset link.
func (LogMailer) SendPasswordReset(_ context.Context, to, resetLink string, expiresAt time.Time) error {
	log.WithFields(log.Fields{"to": to, "link": resetLink, "expires_at": expiresAt}).
		Info("mail: password reset (log mailer)")
	return nil
}
