package quests

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/tokicard/waitlist/internal/models"
	"github.com/tokicard/waitlist/internal/testhelpers"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := testhelpers.OpenTestDB(t)
	return NewService(conn), conn
}

func seedUser(t *testing.T, conn *gorm.DB) models.User {
	t.Helper()
	user := models.User{
		FullName:     "Jane Doe",
		Email:        "jane@example.com",
		Phone:        "+6590000000",
		PasswordHash: "unused",
		ReferralCode: "jane-000000",
		IsVerified:   true,
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("seed user: %v", errCreate)
	}
	return user
}

func TestComplete_AwardsOnce(t *testing.T) {
	svc, conn := newTestService(t)
	user := seedUser(t, conn)

	result, errComplete := svc.Complete(context.Background(), user.ID, "follow-x")
	if errComplete != nil {
		t.Fatalf("Complete: %v", errComplete)
	}
	if result.AlreadyCompleted {
		t.Fatalf("first completion reported as duplicate")
	}
	if result.PointsAwarded != 50 {
		t.Fatalf("points = %d, want 50", result.PointsAwarded)
	}

	var reloaded models.User
	if errFind := conn.First(&reloaded, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if reloaded.Points != 50 {
		t.Fatalf("user points = %d, want 50", reloaded.Points)
	}

	again, errAgain := svc.Complete(context.Background(), user.ID, "follow-x")
	if errAgain != nil {
		t.Fatalf("second Complete: %v", errAgain)
	}
	if !again.AlreadyCompleted || again.PointsAwarded != 0 {
		t.Fatalf("unexpected duplicate result: %+v", again)
	}
	if errFind := conn.First(&reloaded, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if reloaded.Points != 50 {
		t.Fatalf("duplicate completion changed points: %d", reloaded.Points)
	}
}

func TestComplete_SnapshotsPoints(t *testing.T) {
	svc, conn := newTestService(t)
	user := seedUser(t, conn)

	if _, errComplete := svc.Complete(context.Background(), user.ID, "follow-x"); errComplete != nil {
		t.Fatalf("Complete: %v", errComplete)
	}

	// Raising the quest's value later must not rewrite the past payout.
	if errUpdate := conn.Model(&models.Quest{}).Where("slug = ?", "follow-x").
		Update("points", 500).Error; errUpdate != nil {
		t.Fatalf("bump quest points: %v", errUpdate)
	}

	var completion models.QuestCompletion
	if errFind := conn.Where("user_id = ?", user.ID).First(&completion).Error; errFind != nil {
		t.Fatalf("find completion: %v", errFind)
	}
	if completion.PointsAwarded != 50 {
		t.Fatalf("snapshot = %d, want 50", completion.PointsAwarded)
	}
}

func TestComplete_UnknownSlug(t *testing.T) {
	svc, conn := newTestService(t)
	user := seedUser(t, conn)

	if _, errComplete := svc.Complete(context.Background(), user.ID, "no-such-quest"); !errors.Is(errComplete, ErrQuestNotFound) {
		t.Fatalf("complete = %v, want ErrQuestNotFound", errComplete)
	}
}

func TestListForUser(t *testing.T) {
	svc, conn := newTestService(t)
	user := seedUser(t, conn)

	if _, errComplete := svc.Complete(context.Background(), user.ID, "join-telegram"); errComplete != nil {
		t.Fatalf("Complete: %v", errComplete)
	}

	views, errList := svc.ListForUser(context.Background(), user.ID)
	if errList != nil {
		t.Fatalf("ListForUser: %v", errList)
	}
	if len(views) != 3 {
		t.Fatalf("quest count = %d, want 3", len(views))
	}
	for i := 1; i < len(views); i++ {
		if views[i-1].SortOrder > views[i].SortOrder {
			t.Fatalf("quests out of display order: %+v", views)
		}
	}

	completed := 0
	for _, view := range views {
		if view.Completed {
			completed++
			if view.Slug != "join-telegram" || view.CompletedAt == nil {
				t.Fatalf("wrong completion state: %+v", view)
			}
		}
	}
	if completed != 1 {
		t.Fatalf("completed count = %d, want 1", completed)
	}
}
