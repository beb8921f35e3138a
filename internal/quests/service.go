// Package quests records one-time completion of reward-bearing actions
// and credits points exactly once per (user, quest).
package quests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	dbutil "github.com/tokicard/waitlist/internal/db"
	"github.com/tokicard/waitlist/internal/models"
)

// ErrQuestNotFound indicates an unknown quest slug.
var ErrQuestNotFound = errors.New("quest not found")

// Service owns the quest ledger.
type Service struct {
	db *gorm.DB
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CompleteResult is the outcome of a completion attempt.
type CompleteResult struct {
	AlreadyCompleted bool
	PointsAwarded    int
}

// Complete marks the quest done for the user and credits its points. The
// completion row is locked for the transaction, so concurrent attempts
// serialize and the award happens at most once; the second caller gets a
// soft AlreadyCompleted. The awarded points snapshot the quest's value at
// completion time.
func (s *Service) Complete(ctx context.Context, userID uint64, slug string) (CompleteResult, error) {
	var result CompleteResult

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var quest models.Quest
		errFind := tx.Where("slug = ?", slug).First(&quest).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrQuestNotFound
			}
			return fmt.Errorf("load quest: %w", errFind)
		}

		var completion models.QuestCompletion
		errCompletion := dbutil.LockForUpdate(tx).
			Where("user_id = ? AND quest_id = ?", userID, quest.ID).
			First(&completion).Error
		exists := errCompletion == nil
		if errCompletion != nil && !errors.Is(errCompletion, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load completion: %w", errCompletion)
		}

		if exists && completion.CompletedAt != nil {
			result.AlreadyCompleted = true
			return nil
		}

		now := time.Now().UTC()
		if !exists {
			completion = models.QuestCompletion{
				UserID:        userID,
				QuestID:       quest.ID,
				CompletedAt:   &now,
				PointsAwarded: quest.Points,
			}
			if errCreate := tx.Create(&completion).Error; errCreate != nil {
				return fmt.Errorf("create completion: %w", errCreate)
			}
		} else {
			if errUpdate := tx.Model(&models.QuestCompletion{}).
				Where("user_id = ? AND quest_id = ?", userID, quest.ID).
				Updates(map[string]any{"completed_at": now, "points_awarded": quest.Points}).Error; errUpdate != nil {
				return fmt.Errorf("update completion: %w", errUpdate)
			}
		}

		if errCredit := tx.Model(&models.User{}).Where("id = ?", userID).
			Updates(map[string]any{
				"points":     gorm.Expr("points + ?", quest.Points),
				"updated_at": now,
			}).Error; errCredit != nil {
			return fmt.Errorf("credit user: %w", errCredit)
		}

		result.PointsAwarded = quest.Points
		return nil
	})
	if errTx != nil {
		return CompleteResult{}, errTx
	}
	return result, nil
}

// QuestView is a quest joined with the caller's completion state.
type QuestView struct {
	ID          uint64     `json:"id"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Points      int        `json:"points"`
	SortOrder   int        `json:"sortOrder"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt"`
}

// ListForUser returns the quest catalog with the user's completion state,
// ordered for display.
func (s *Service) ListForUser(ctx context.Context, userID uint64) ([]QuestView, error) {
	var questRows []models.Quest
	if errFind := s.db.WithContext(ctx).Order("sort_order ASC").Find(&questRows).Error; errFind != nil {
		return nil, fmt.Errorf("list quests: %w", errFind)
	}

	var completions []models.QuestCompletion
	if errFind := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&completions).Error; errFind != nil {
		return nil, fmt.Errorf("list completions: %w", errFind)
	}
	completedAt := make(map[uint64]*time.Time, len(completions))
	for _, completion := range completions {
		completedAt[completion.QuestID] = completion.CompletedAt
	}

	out := make([]QuestView, 0, len(questRows))
	for _, quest := range questRows {
		view := QuestView{
			ID:          quest.ID,
			Slug:        quest.Slug,
			Title:       quest.Title,
			Description: quest.Description,
			Points:      quest.Points,
			SortOrder:   quest.SortOrder,
		}
		if at, ok := completedAt[quest.ID]; ok && at != nil {
			view.Completed = true
			view.CompletedAt = at
		}
		out = append(out, view)
	}
	return out, nil
}
