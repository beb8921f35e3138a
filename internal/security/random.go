package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const referralSuffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NumericCode returns a random code of n decimal digits.
func NumericCode(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate numeric code: %w", err)
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// HexToken returns a random hex string covering n bytes of entropy.
func HexToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewLookupID returns an opaque public identifier used to correlate a
// client's verification attempt with a stored code row. It is not a
// secret; possession of it alone never satisfies verification.
func NewLookupID() string {
	return uuid.NewString()
}

// ReferralCode derives a permanent public referral code from a name plus a
// random suffix, e.g. "jane-4kq9z1".
func ReferralCode(fullName string) (string, error) {
	var base strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(fullName)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			base.WriteRune(r)
			if base.Len() >= 6 {
				break
			}
		}
	}
	prefix := base.String()
	if prefix == "" {
		prefix = "user"
	}
	var suffix strings.Builder
	for i := 0; i < 6; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(referralSuffixAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generate referral code: %w", err)
		}
		suffix.WriteByte(referralSuffixAlphabet[idx.Int64()])
	}
	return prefix + "-" + suffix.String(), nil
}
