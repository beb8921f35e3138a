package mail

import (
	"strings"
	"time"
)

// OTPMessage builds the subject and plain-text body for a verification
// code email.
func OTPMessage(otp string, expiresAt time.Time) (subject, body string) {
	subject = "Your Tokicard early access verification code"
	body = strings.Join([]string{
		"Hi there,",
		"",
		"Your Tokicard early access verification code is: " + otp,
		"",
		"This code expires around " + formatExpiry(expiresAt) + ".",
		"",
		"If you didn't request this code, please ignore this email.",
		"",
		"- The Tokicard team",
	}, "\n")
	return subject, body
}

// PasswordResetMessage builds the subject and plain-text body for a
// password reset email.
func PasswordResetMessage(resetLink string, expiresAt time.Time) (subject, body string) {
	subject = "Reset your Tokicard password"
	body = strings.Join([]string{
		"Hi there,",
		"",
		"We received a request to reset the password for your Tokicard account.",
		"You can set a new password by visiting the link below:",
		resetLink,
		"",
		"This link expires around " + formatExpiry(expiresAt) + ".",
		"",
		"If you didn't request this, you can safely ignore this email.",
		"",
		"- The Tokicard team",
	}, "\n")
	return subject, body
}

func formatExpiry(expiresAt time.Time) string {
	if expiresAt.IsZero() {
		return "soon"
	}
	return expiresAt.UTC().Format("15:04 MST")
}
