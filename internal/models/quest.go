package models

import (
	"time"

	"gorm.io/datatypes"
)

// Quest is an admin-defined action a user can complete once for points.
type Quest struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Slug        string `gorm:"type:text;not null;uniqueIndex"` // Stable public identifier.
	Title       string `gorm:"type:text;not null"`             // Display title.
	Description string `gorm:"type:text"`                      // Display description.

	Points    int `gorm:"not null;default:0"`   // Points paid out on completion.
	SortOrder int `gorm:"not null;default:100"` // Display ordering.

	Metadata datatypes.JSON `gorm:"type:json"` // Free-form presentation metadata (icon, link, ...).

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// QuestCompletion records the one-time completion of a quest by a user.
// PointsAwarded snapshots the quest's value at completion time so later
// quest edits never rewrite historical payouts.
type QuestCompletion struct {
	UserID  uint64 `gorm:"primaryKey;autoIncrement:false"` // Completing user ID.
	QuestID uint64 `gorm:"primaryKey;autoIncrement:false"` // Completed quest ID.

	CompletedAt   *time.Time // Set exactly once; never cleared.
	PointsAwarded int        `gorm:"not null;default:0"` // Points paid at completion time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
