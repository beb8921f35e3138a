package models

import "time"

// Admin is the operator account for the admin panel.
type Admin struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Login name.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	TOTPSecret        string `gorm:"type:text"` // Confirmed TOTP secret, empty when MFA is off.
	PendingTOTPSecret string `gorm:"type:text"` // Secret awaiting confirmation during enrollment.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
