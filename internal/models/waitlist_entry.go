package models

import "time"

// Waitlist entry statuses.
const (
	WaitlistStatusPending  = "pending"
	WaitlistStatusVerified = "verified"
)

// WaitlistEntry tracks a user's position in the signup flow, 1:1 with User.
// Its status flips to verified in the same transaction that sets the
// user's verification flag.
type WaitlistEntry struct {
	UserID uint64 `gorm:"primaryKey"`            // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"`     // Owning user.
	Status string `gorm:"type:text;not null"`    // pending or verified.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
