package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/tokicard/waitlist/internal/quests"
)

// QuestHandler manages quest listing and completion endpoints.
type QuestHandler struct {
	svc *quests.Service
}

// NewQuestHandler constructs a QuestHandler.
func NewQuestHandler(svc *quests.Service) *QuestHandler {
	return &QuestHandler{svc: svc}
}

// List returns the quest catalog with the caller's completion state.
func (h *QuestHandler) List(c *gin.Context) {
	userID := AuthedUserID(c)
	views, errList := h.svc.ListForUser(c.Request.Context(), userID)
	if errList != nil {
		log.WithError(errList).Error("list quests failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to load quests"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": views})
}

// Complete marks a quest done for the caller and credits its points.
func (h *QuestHandler) Complete(c *gin.Context) {
	userID := AuthedUserID(c)
	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quest slug required"})
		return
	}

	result, errComplete := h.svc.Complete(c.Request.Context(), userID, slug)
	if errComplete != nil {
		if errors.Is(errComplete, quests.ErrQuestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Quest not found"})
			return
		}
		log.WithError(errComplete).Error("complete quest failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to complete quest"})
		return
	}

	if result.AlreadyCompleted {
		c.JSON(http.StatusOK, gin.H{
			"message":          "Quest already completed.",
			"alreadyCompleted": true,
			"pointsAwarded":    0,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":          "Quest completed.",
		"alreadyCompleted": false,
		"pointsAwarded":    result.PointsAwarded,
	})
}
