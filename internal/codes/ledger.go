// Package codes implements the single-use code ledger shared by the OTP
// and password-reset flows: short-lived secrets stored hash-only, issued
// one-per-email and consumable exactly once.
package codes

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tokicard/waitlist/internal/models"
	"github.com/tokicard/waitlist/internal/security"
)

// Verification failure modes, checked in this order.
var (
	ErrNotFound      = errors.New("code not found")
	ErrConsumed      = errors.New("code already consumed")
	ErrExpired       = errors.New("code expired")
	ErrInvalidSecret = errors.New("code secret mismatch")
)

const (
	otpDigits       = 6
	resetTokenBytes = 32
)

// Issued is the outcome of issuing a code. Secret is the only copy of the
// plaintext; it must be delivered out of band and is never stored.
type Issued struct {
	Secret    string
	LookupID  string
	ExpiresAt time.Time
}

// Issue creates a fresh single-use code for the email, deleting every
// prior code of the same kind first so at most one code is live per email.
// It must run inside the caller's transaction.
func Issue(tx *gorm.DB, kind string, userID uint64, email string, validity time.Duration) (Issued, error) {
	email = models.NormalizeEmail(email)

	secret, errSecret := newSecret(kind)
	if errSecret != nil {
		return Issued{}, errSecret
	}
	hash, errHash := security.HashSecret(secret)
	if errHash != nil {
		return Issued{}, fmt.Errorf("codes: hash secret: %w", errHash)
	}

	if errDelete := tx.Where("kind = ? AND email = ?", kind, email).
		Delete(&models.SingleUseCode{}).Error; errDelete != nil {
		return Issued{}, fmt.Errorf("codes: supersede prior codes: %w", errDelete)
	}

	record := models.SingleUseCode{
		Kind:       kind,
		UserID:     userID,
		Email:      email,
		SecretHash: hash,
		LookupID:   security.NewLookupID(),
		ExpiresAt:  time.Now().UTC().Add(validity),
	}
	if errCreate := tx.Create(&record).Error; errCreate != nil {
		return Issued{}, fmt.Errorf("codes: insert code: %w", errCreate)
	}
	return Issued{Secret: secret, LookupID: record.LookupID, ExpiresAt: record.ExpiresAt}, nil
}

// Verify checks a submitted secret against the most recent code matching
// (kind, email, lookupID) and consumes it on success, returning the owning
// user ID. Expiry is checked before the secret comparison so an expired
// but correct secret still reports ErrExpired. The consumption write
// shares the caller's transaction; callers must commit their own state
// changes atomically with it to prevent replay.
func Verify(tx *gorm.DB, kind, email, secret, lookupID string) (uint64, error) {
	email = models.NormalizeEmail(email)

	var record models.SingleUseCode
	errFind := tx.Where("kind = ? AND email = ? AND lookup_id = ?", kind, email, lookupID).
		Order("created_at DESC").
		First(&record).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("codes: lookup: %w", errFind)
	}

	if record.Consumed {
		return 0, ErrConsumed
	}
	if !time.Now().UTC().Before(record.ExpiresAt) {
		return 0, ErrExpired
	}
	if !security.VerifySecret(record.SecretHash, secret) {
		return 0, ErrInvalidSecret
	}

	now := time.Now().UTC()
	if errConsume := tx.Model(&models.SingleUseCode{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{"consumed": true, "consumed_at": now}).Error; errConsume != nil {
		return 0, fmt.Errorf("codes: consume: %w", errConsume)
	}
	return record.UserID, nil
}

// PurgeOthers deletes every code of the kind for the email except the one
// with the given lookup ID. The reset flow uses it so a stale second link
// cannot remain valid after one is used.
func PurgeOthers(tx *gorm.DB, kind, email, lookupID string) error {
	email = models.NormalizeEmail(email)
	if errDelete := tx.Where("kind = ? AND email = ? AND lookup_id <> ?", kind, email, lookupID).
		Delete(&models.SingleUseCode{}).Error; errDelete != nil {
		return fmt.Errorf("codes: purge others: %w", errDelete)
	}
	return nil
}

func newSecret(kind string) (string, error) {
	switch kind {
	case models.CodeKindOTP:
		secret, err := security.NumericCode(otpDigits)
		if err != nil {
			return "", fmt.Errorf("codes: %w", err)
		}
		return secret, nil
	case models.CodeKindReset:
		secret, err := security.HexToken(resetTokenBytes)
		if err != nil {
			return "", fmt.Errorf("codes: %w", err)
		}
		return secret, nil
	default:
		return "", fmt.Errorf("codes: unknown kind %q", kind)
	}
}
