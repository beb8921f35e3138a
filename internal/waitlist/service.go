// Package waitlist drives the registration flow: waitlist submission,
// OTP verification, and the referral reward that verification triggers.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tokicard/waitlist/internal/codes"
	dbutil "github.com/tokicard/waitlist/internal/db"
	"github.com/tokicard/waitlist/internal/mail"
	"github.com/tokicard/waitlist/internal/models"
	"github.com/tokicard/waitlist/internal/security"
)

// ReferralRewardPoints is credited to a referrer the first time a user
// they referred completes verification.
const ReferralRewardPoints = 100

var (
	// ErrUserNotFound indicates no user exists for the email.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials indicates a failed email/password check.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotVerified indicates a login attempt before OTP verification.
	ErrNotVerified = errors.New("account not verified")
)

// Config holds the orchestrator's tunables.
type Config struct {
	OTPValidity time.Duration
	JWTSecret   string
	JWTExpiry   time.Duration
}

// Service coordinates the credential store, the code ledger, and the
// mail collaborator. Every mutating operation runs in one transaction.
type Service struct {
	db     *gorm.DB
	mailer mail.Mailer
	cfg    Config
}

// NewService constructs a Service.
func NewService(db *gorm.DB, mailer mail.Mailer, cfg Config) *Service {
	if cfg.OTPValidity <= 0 {
		cfg.OTPValidity = 10 * time.Minute
	}
	return &Service{db: db, mailer: mailer, cfg: cfg}
}

// SubmitParams carries a waitlist registration submission.
type SubmitParams struct {
	FullName     string
	Email        string
	Phone        string
	Password     string
	ReferralCode string // referrer's code, optional
}

// SubmitResult is the outcome of a submission or OTP resend.
type SubmitResult struct {
	AlreadyVerified bool
	VerificationID  string
	ExpiresAt       time.Time
	OTP             string // plaintext; callers echo it only outside production
}

// UserPayload is the caller-visible projection of a user row.
type UserPayload struct {
	ID           uint64  `json:"id"`
	FullName     string  `json:"fullName"`
	Email        string  `json:"email"`
	Phone        string  `json:"phone"`
	ReferralCode string  `json:"referralCode"`
	ReferredBy   *uint64 `json:"referredBy"`
	Points       int     `json:"points"`
	IsVerified   bool    `json:"isVerified"`
}

// ReferralReward reports the credit granted to a referrer.
type ReferralReward struct {
	User          UserPayload `json:"user"`
	PointsAwarded int         `json:"pointsAwarded"`
}

// VerifyResult is the outcome of a successful OTP verification.
type VerifyResult struct {
	Token          string
	User           UserPayload
	ReferralReward *ReferralReward
}

// Submit registers or re-registers an email on the waitlist and issues a
// fresh OTP. A verified account short-circuits with no mutation.
// Resubmission for an unverified account overwrites name, phone, and
// password, and may attach a previously missing referrer, never replace
// one. The OTP email is dispatched inside the transaction; a delivery
// failure rolls everything back.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (SubmitResult, error) {
	email := models.NormalizeEmail(params.Email)
	var result SubmitResult

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		errFind := dbutil.LockForUpdate(tx).Where("email = ?", email).First(&user).Error
		if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load user: %w", errFind)
		}
		exists := errFind == nil

		if exists && user.IsVerified {
			result.AlreadyVerified = true
			return nil
		}

		hash, errHash := security.HashPassword(params.Password)
		if errHash != nil {
			return fmt.Errorf("hash password: %w", errHash)
		}

		referrerID := s.resolveReferrer(tx, params.ReferralCode)

		if !exists {
			referralCode, errCode := security.ReferralCode(params.FullName)
			if errCode != nil {
				return errCode
			}
			user = models.User{
				FullName:     params.FullName,
				Email:        email,
				Phone:        params.Phone,
				PasswordHash: hash,
				ReferralCode: referralCode,
				ReferredBy:   referrerID,
			}
			if errCreate := tx.Create(&user).Error; errCreate != nil {
				return fmt.Errorf("create user: %w", errCreate)
			}
		} else {
			user.FullName = params.FullName
			user.Phone = params.Phone
			user.PasswordHash = hash
			if user.ReferralCode == "" {
				referralCode, errCode := security.ReferralCode(params.FullName)
				if errCode != nil {
					return errCode
				}
				user.ReferralCode = referralCode
			}
			if user.ReferredBy == nil && referrerID != nil {
				user.ReferredBy = referrerID
			}
			if errSave := tx.Save(&user).Error; errSave != nil {
				return fmt.Errorf("update user: %w", errSave)
			}
		}

		if errEntry := upsertWaitlistEntry(tx, user.ID, models.WaitlistStatusPending); errEntry != nil {
			return errEntry
		}

		issued, errIssue := codes.Issue(tx, models.CodeKindOTP, user.ID, email, s.cfg.OTPValidity)
		if errIssue != nil {
			return errIssue
		}

		if errSend := s.mailer.SendOTP(ctx, email, issued.Secret, issued.ExpiresAt); errSend != nil {
			return wrapDelivery(errSend)
		}

		result.VerificationID = issued.LookupID
		result.ExpiresAt = issued.ExpiresAt
		result.OTP = issued.Secret
		return nil
	})
	if errTx != nil {
		return SubmitResult{}, errTx
	}
	return result, nil
}

// Verify consumes an OTP and promotes the user to verified. The user row
// stays locked for the whole transaction so two concurrent attempts
// serialize: the loser observes the consumed code. The referrer is
// credited exactly once, gated on the pre-transaction verified flag read
// under the lock.
func (s *Service) Verify(ctx context.Context, email, otp, verificationID string) (VerifyResult, error) {
	email = models.NormalizeEmail(email)
	var result VerifyResult

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		errFind := dbutil.LockForUpdate(tx).Where("email = ?", email).First(&user).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("load user: %w", errFind)
		}
		wasVerified := user.IsVerified
		referrerID := user.ReferredBy

		if _, errVerify := codes.Verify(tx, models.CodeKindOTP, email, otp, verificationID); errVerify != nil {
			return errVerify
		}

		now := time.Now().UTC()
		if errUpdate := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Updates(map[string]any{"is_verified": true, "verified_at": now, "updated_at": now}).Error; errUpdate != nil {
			return fmt.Errorf("mark verified: %w", errUpdate)
		}
		if errEntry := upsertWaitlistEntry(tx, user.ID, models.WaitlistStatusVerified); errEntry != nil {
			return errEntry
		}

		if !wasVerified && referrerID != nil {
			if errCredit := tx.Model(&models.User{}).Where("id = ?", *referrerID).
				Updates(map[string]any{
					"points":     gorm.Expr("points + ?", ReferralRewardPoints),
					"updated_at": now,
				}).Error; errCredit != nil {
				return fmt.Errorf("credit referrer: %w", errCredit)
			}
			var referrer models.User
			if errLoad := tx.First(&referrer, *referrerID).Error; errLoad == nil {
				result.ReferralReward = &ReferralReward{
					User:          toPayload(referrer),
					PointsAwarded: ReferralRewardPoints,
				}
			}
		}

		if errReload := tx.First(&user, user.ID).Error; errReload != nil {
			return fmt.Errorf("reload user: %w", errReload)
		}
		result.User = toPayload(user)
		return nil
	})
	if errTx != nil {
		return VerifyResult{}, errTx
	}

	token, errToken := security.IssueToken(s.cfg.JWTSecret, result.User.ID, result.User.Email, security.RoleUser, s.cfg.JWTExpiry)
	if errToken != nil {
		return VerifyResult{}, errToken
	}
	result.Token = token
	return result, nil
}

// Resend invalidates any live OTP for the email and issues a fresh one,
// with the same rollback-on-delivery-failure contract as Submit.
func (s *Service) Resend(ctx context.Context, email string) (SubmitResult, error) {
	email = models.NormalizeEmail(email)
	var result SubmitResult

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		errFind := tx.Where("email = ?", email).First(&user).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("load user: %w", errFind)
		}

		issued, errIssue := codes.Issue(tx, models.CodeKindOTP, user.ID, email, s.cfg.OTPValidity)
		if errIssue != nil {
			return errIssue
		}
		if errSend := s.mailer.SendOTP(ctx, email, issued.Secret, issued.ExpiresAt); errSend != nil {
			return wrapDelivery(errSend)
		}

		result.VerificationID = issued.LookupID
		result.ExpiresAt = issued.ExpiresAt
		result.OTP = issued.Secret
		return nil
	})
	if errTx != nil {
		return SubmitResult{}, errTx
	}
	return result, nil
}

// Authenticate checks credentials and returns a session token for a
// verified account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, UserPayload, error) {
	email = models.NormalizeEmail(email)
	var user models.User
	errFind := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "", UserPayload{}, ErrInvalidCredentials
		}
		return "", UserPayload{}, fmt.Errorf("load user: %w", errFind)
	}
	if !security.VerifyPassword(user.PasswordHash, password) {
		return "", UserPayload{}, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return "", UserPayload{}, ErrNotVerified
	}
	token, errToken := security.IssueToken(s.cfg.JWTSecret, user.ID, user.Email, security.RoleUser, s.cfg.JWTExpiry)
	if errToken != nil {
		return "", UserPayload{}, errToken
	}
	return token, toPayload(user), nil
}

// GetUser loads a user by ID.
func (s *Service) GetUser(ctx context.Context, id uint64) (UserPayload, error) {
	var user models.User
	errFind := s.db.WithContext(ctx).First(&user, id).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return UserPayload{}, ErrUserNotFound
		}
		return UserPayload{}, fmt.Errorf("load user: %w", errFind)
	}
	return toPayload(user), nil
}

// ReferralEntry is one referred signup in the referral dashboard.
type ReferralEntry struct {
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"createdAt"`
	IsVerified bool      `json:"isVerified"`
}

// ReferralPage is a page of the caller's referral dashboard.
type ReferralPage struct {
	Total        int64           `json:"total"`
	Page         int             `json:"page"`
	PageSize     int             `json:"pageSize"`
	HasMore      bool            `json:"hasMore"`
	Points       int             `json:"points"`
	ReferralCode string          `json:"referralCode"`
	Referrals    []ReferralEntry `json:"referrals"`
}

// ListReferrals returns the users referred by userID, newest first.
// Emails are returned raw; the handler masks them before responding.
func (s *Service) ListReferrals(ctx context.Context, userID uint64, page, pageSize int) (ReferralPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 50 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	conn := s.db.WithContext(ctx)

	var owner models.User
	if errFind := conn.First(&owner, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ReferralPage{}, ErrUserNotFound
		}
		return ReferralPage{}, fmt.Errorf("load user: %w", errFind)
	}

	var total int64
	if errCount := conn.Model(&models.User{}).Where("referred_by = ?", userID).Count(&total).Error; errCount != nil {
		return ReferralPage{}, fmt.Errorf("count referrals: %w", errCount)
	}

	var rows []models.User
	if errFind := conn.Where("referred_by = ?", userID).
		Order("created_at DESC").
		Limit(pageSize).Offset(offset).
		Find(&rows).Error; errFind != nil {
		return ReferralPage{}, fmt.Errorf("list referrals: %w", errFind)
	}

	result := ReferralPage{
		Total:        total,
		Page:         page,
		PageSize:     pageSize,
		HasMore:      int64(offset+len(rows)) < total,
		Points:       owner.Points,
		ReferralCode: owner.ReferralCode,
		Referrals:    make([]ReferralEntry, 0, len(rows)),
	}
	for _, row := range rows {
		result.Referrals = append(result.Referrals, ReferralEntry{
			Email:      row.Email,
			CreatedAt:  row.CreatedAt,
			IsVerified: row.IsVerified,
		})
	}
	return result, nil
}

// resolveReferrer looks up a referrer by public code. Unresolvable codes
// are ignored; referral linkage is best-effort.
func (s *Service) resolveReferrer(tx *gorm.DB, code string) *uint64 {
	if code == "" {
		return nil
	}
	var referrer models.User
	if errFind := tx.Where("referral_code = ?", code).First(&referrer).Error; errFind != nil {
		return nil
	}
	return &referrer.ID
}

func upsertWaitlistEntry(tx *gorm.DB, userID uint64, status string) error {
	var entry models.WaitlistEntry
	errFind := tx.Where("user_id = ?", userID).First(&entry).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		entry = models.WaitlistEntry{UserID: userID, Status: status}
		if errCreate := tx.Create(&entry).Error; errCreate != nil {
			return fmt.Errorf("create waitlist entry: %w", errCreate)
		}
		return nil
	}
	if errFind != nil {
		return fmt.Errorf("load waitlist entry: %w", errFind)
	}
	if errUpdate := tx.Model(&models.WaitlistEntry{}).Where("user_id = ?", userID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		return fmt.Errorf("update waitlist entry: %w", errUpdate)
	}
	return nil
}

func wrapDelivery(err error) error {
	if errors.Is(err, mail.ErrDelivery) {
		return err
	}
	return fmt.Errorf("%w: %w", mail.ErrDelivery, err)
}

func toPayload(user models.User) UserPayload {
	return UserPayload{
		ID:           user.ID,
		FullName:     user.FullName,
		Email:        user.Email,
		Phone:        user.Phone,
		ReferralCode: user.ReferralCode,
		ReferredBy:   user.ReferredBy,
		Points:       user.Points,
		IsVerified:   user.IsVerified,
	}
}
