package models

import (
	"strings"
	"time"
)

// User represents a waitlist signup and its rewards state.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	FullName     string `gorm:"type:text;not null"`             // Display name.
	Email        string `gorm:"type:text;not null;uniqueIndex"` // Lowercased email address.
	Phone        string `gorm:"type:text;not null"`             // Contact phone number.
	PasswordHash string `gorm:"type:text;not null"`             // Hashed password.

	ReferralCode string  `gorm:"type:text;not null;uniqueIndex"` // Public code shared to refer others.
	ReferredBy   *uint64 `gorm:"index"`                          // Referrer user ID, set at most once.
	Referrer     *User   `gorm:"foreignKey:ReferredBy"`          // Referrer association.

	Points int `gorm:"not null;default:0"` // Reward point balance.

	IsVerified bool       `gorm:"not null;default:false"` // Whether email ownership was confirmed.
	VerifiedAt *time.Time // When verification succeeded.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// NormalizeEmail canonicalizes an email for storage and lookup. The email
// column always holds the normalized form, so equality checks stay
// case-insensitive across dialects.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
