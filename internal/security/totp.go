package security

import (
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpIssuer = "Tokicard Admin"

// GenerateTOTPSecret creates a new TOTP enrollment key for an admin
// account. The returned key exposes both the shared secret and the
// otpauth:// provisioning URL.
func GenerateTOTPSecret(account string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: account,
	})
}

// VerifyTOTP reports whether the code is currently valid for the secret.
func VerifyTOTP(secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}
	return totp.Validate(code, secret)
}
