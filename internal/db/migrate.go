package db

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tokicard/waitlist/internal/models"
	"github.com/tokicard/waitlist/internal/security"
)

// Migrate applies the schema and seeds the default quest catalog.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errAutoMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.User{},
		&models.WaitlistEntry{},
		&models.SingleUseCode{},
		&models.Quest{},
		&models.QuestCompletion{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return SeedQuests(conn, DefaultQuests())
}

// DefaultQuests returns the built-in quest catalog.
func DefaultQuests() []models.Quest {
	return []models.Quest{
		{Slug: "follow-x", Title: "Follow Tokicard on X", Description: "@tokicard", Points: 50, SortOrder: 1},
		{Slug: "follow-instagram", Title: "Follow Tokicard on Instagram", Description: "@tokicard", Points: 50, SortOrder: 2},
		{Slug: "join-telegram", Title: "Join the Tokicard Telegram community", Description: "Community updates", Points: 50, SortOrder: 3},
	}
}

// SeedQuests upserts the given quests by slug and removes quests (and
// their completions) that are no longer part of the catalog.
func SeedQuests(conn *gorm.DB, quests []models.Quest) error {
	if len(quests) == 0 {
		return nil
	}
	return conn.Transaction(func(tx *gorm.DB) error {
		slugs := make([]string, 0, len(quests))
		for _, quest := range quests {
			record := quest
			if errUpsert := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "slug"}},
				DoUpdates: clause.AssignmentColumns([]string{"title", "description", "points", "sort_order", "updated_at"}),
			}).Create(&record).Error; errUpsert != nil {
				return fmt.Errorf("db: seed quest %s: %w", quest.Slug, errUpsert)
			}
			slugs = append(slugs, quest.Slug)
		}
		if errPrune := tx.Where("quest_id IN (?)",
			tx.Session(&gorm.Session{NewDB: true}).Model(&models.Quest{}).Select("id").Where("slug NOT IN ?", slugs),
		).Delete(&models.QuestCompletion{}).Error; errPrune != nil {
			return fmt.Errorf("db: prune stale completions: %w", errPrune)
		}
		if errPrune := tx.Where("slug NOT IN ?", slugs).Delete(&models.Quest{}).Error; errPrune != nil {
			return fmt.Errorf("db: prune stale quests: %w", errPrune)
		}
		return nil
	})
}

// EnsureAdmin creates the admin account when none exists. It returns
// without error when credentials are blank or an admin is already present.
func EnsureAdmin(conn *gorm.DB, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	var count int64
	if errCount := conn.Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("db: count admins: %w", errCount)
	}
	if count > 0 {
		return nil
	}
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("db: hash admin password: %w", errHash)
	}
	admin := models.Admin{Username: username, Password: hash}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("db: create admin: %w", errCreate)
	}
	return nil
}
