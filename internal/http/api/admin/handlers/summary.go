package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tokicard/waitlist/internal/models"
)

// SummaryHandler reports waitlist totals for the admin dashboard.
type SummaryHandler struct {
	db *gorm.DB // Database handle for reporting queries.
}

// NewSummaryHandler constructs a summary handler.
func NewSummaryHandler(db *gorm.DB) *SummaryHandler {
	return &SummaryHandler{db: db}
}

// Summary returns signup totals, verification counts, points outstanding,
// and the most recent signups.
func (h *SummaryHandler) Summary(c *gin.Context) {
	conn := h.db.WithContext(c.Request.Context())

	var totalUsers int64
	if errCount := conn.Model(&models.User{}).Count(&totalUsers).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	var verifiedUsers int64
	if errCount := conn.Model(&models.User{}).Where("is_verified = ?", true).Count(&verifiedUsers).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	var referredUsers int64
	if errCount := conn.Model(&models.User{}).Where("referred_by IS NOT NULL").Count(&referredUsers).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var totalPoints int64
	if errSum := conn.Model(&models.User{}).Select("COALESCE(SUM(points), 0)").Scan(&totalPoints).Error; errSum != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	var questCompletions int64
	if errCount := conn.Model(&models.QuestCompletion{}).Where("completed_at IS NOT NULL").Count(&questCompletions).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	limit := 10
	if raw := c.Query("recent"); raw != "" {
		if parsed, errParse := strconv.Atoi(raw); errParse == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	var recent []models.User
	if errFind := conn.Order("created_at DESC").Limit(limit).Find(&recent).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	recentOut := make([]gin.H, 0, len(recent))
	for _, user := range recent {
		recentOut = append(recentOut, gin.H{
			"id":         user.ID,
			"fullName":   user.FullName,
			"email":      user.Email,
			"isVerified": user.IsVerified,
			"points":     user.Points,
			"createdAt":  user.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"totalUsers":       totalUsers,
		"verifiedUsers":    verifiedUsers,
		"pendingUsers":     totalUsers - verifiedUsers,
		"referredUsers":    referredUsers,
		"totalPoints":      totalPoints,
		"questCompletions": questCompletions,
		"recentSignups":    recentOut,
	})
}
