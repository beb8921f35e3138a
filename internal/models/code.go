package models

import "time"

// Single-use code kinds.
const (
	CodeKindOTP   = "otp"
	CodeKindReset = "password_reset"
)

// SingleUseCode stores one short-lived, single-consumption secret. Only a
// bcrypt hash of the secret is persisted; the plaintext travels out of
// band (email). The lookup ID correlates a client attempt with the row
// without being usable on its own.
type SingleUseCode struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Kind   string `gorm:"type:text;not null;index:idx_codes_lookup,priority:1"` // otp or password_reset.
	UserID uint64 `gorm:"not null;index"`                                       // Owning user ID.
	Email  string `gorm:"type:text;not null;index:idx_codes_lookup,priority:2"` // Lowercased email, denormalized for lookup.

	SecretHash string `gorm:"type:text;not null"`                                   // bcrypt hash of the secret.
	LookupID   string `gorm:"type:text;not null;index:idx_codes_lookup,priority:3"` // Opaque public correlation ID.

	ExpiresAt  time.Time  `gorm:"not null"`               // Expiry instant.
	Consumed   bool       `gorm:"not null;default:false"` // Whether the code was used.
	ConsumedAt *time.Time // When the code was used.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
