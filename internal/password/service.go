// Package password drives the forgot-password / reset-password flow on
// top of the single-use code ledger.
package password

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"gorm.io/gorm"

	"github.com/tokicard/waitlist/internal/codes"
	dbutil "github.com/tokicard/waitlist/internal/db"
	"github.com/tokicard/waitlist/internal/mail"
	"github.com/tokicard/waitlist/internal/models"
	"github.com/tokicard/waitlist/internal/security"
)

// GenericResetMessage is returned by RequestReset regardless of whether
// the account exists, so responses never confirm an email address.
const GenericResetMessage = "If an account exists for that email, a password reset link has been sent."

// Config holds the orchestrator's tunables.
type Config struct {
	ResetValidity  time.Duration
	FrontendOrigin string
}

// Service coordinates reset-token issuance and password replacement.
type Service struct {
	db     *gorm.DB
	mailer mail.Mailer
	cfg    Config
}

// NewService constructs a Service.
func NewService(db *gorm.DB, mailer mail.Mailer, cfg Config) *Service {
	if cfg.ResetValidity <= 0 {
		cfg.ResetValidity = 60 * time.Minute
	}
	return &Service{db: db, mailer: mailer, cfg: cfg}
}

// RequestReset issues a reset token and mails the link when the email
// belongs to a verified account. Unknown or unverified emails commit with
// no side effect; callers respond with GenericResetMessage either way.
// A mail delivery failure still surfaces and rolls back the issuance;
// that is the one accepted asymmetry in the enumeration-safe contract.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	email = models.NormalizeEmail(email)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		errFind := dbutil.LockForUpdate(tx).Where("email = ?", email).First(&user).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("load user: %w", errFind)
		}
		if !user.IsVerified {
			return nil
		}

		issued, errIssue := codes.Issue(tx, models.CodeKindReset, user.ID, email, s.cfg.ResetValidity)
		if errIssue != nil {
			return errIssue
		}

		link, errLink := s.resetLink(email, issued.Secret, issued.LookupID)
		if errLink != nil {
			return errLink
		}
		if errSend := s.mailer.SendPasswordReset(ctx, email, link, issued.ExpiresAt); errSend != nil {
			if errors.Is(errSend, mail.ErrDelivery) {
				return errSend
			}
			return fmt.Errorf("%w: %w", mail.ErrDelivery, errSend)
		}
		return nil
	})
}

// Reset consumes a reset token and replaces the user's password. All
// other unconsumed reset codes for the email are purged so a stale second
// link cannot remain valid.
func (s *Service) Reset(ctx context.Context, email, token, lookupID, newPassword string) error {
	email = models.NormalizeEmail(email)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		userID, errVerify := codes.Verify(tx, models.CodeKindReset, email, token, lookupID)
		if errVerify != nil {
			return errVerify
		}

		hash, errHash := security.HashPassword(newPassword)
		if errHash != nil {
			return fmt.Errorf("hash password: %w", errHash)
		}
		if errUpdate := tx.Model(&models.User{}).Where("id = ?", userID).
			Updates(map[string]any{"password_hash": hash, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
			return fmt.Errorf("update password: %w", errUpdate)
		}

		return codes.PurgeOthers(tx, models.CodeKindReset, email, lookupID)
	})
}

func (s *Service) resetLink(email, token, lookupID string) (string, error) {
	base, errParse := url.Parse(s.cfg.FrontendOrigin)
	if errParse != nil {
		return "", fmt.Errorf("parse frontend origin: %w", errParse)
	}
	base.Path = "/reset-password"
	query := url.Values{}
	query.Set("email", email)
	query.Set("token", token)
	query.Set("resetId", lookupID)
	base.RawQuery = query.Encode()
	return base.String(), nil
}
