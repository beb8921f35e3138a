package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbutil "github.com/tokicard/waitlist/internal/db"
	"github.com/tokicard/waitlist/internal/models"
)

// QuestHandler manages admin CRUD for the quest catalog.
type QuestHandler struct {
	db *gorm.DB // Database handle for quests.
}

// NewQuestHandler constructs a quest handler.
func NewQuestHandler(db *gorm.DB) *QuestHandler {
	return &QuestHandler{db: db}
}

// questRequest captures the payload for creating or updating a quest.
type questRequest struct {
	Slug        string          `json:"slug"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Points      *int            `json:"points"`
	SortOrder   *int            `json:"sortOrder"`
	Metadata    json.RawMessage `json:"metadata"`
}

// Create validates and inserts a quest.
func (h *QuestHandler) Create(c *gin.Context) {
	var body questRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	slug := strings.TrimSpace(body.Slug)
	title := strings.TrimSpace(body.Title)
	if slug == "" || title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slug and title are required"})
		return
	}
	if body.Points == nil || *body.Points < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "points must be a non-negative integer"})
		return
	}

	quest := models.Quest{
		Slug:        slug,
		Title:       title,
		Description: strings.TrimSpace(body.Description),
		Points:      *body.Points,
		SortOrder:   100,
	}
	if body.SortOrder != nil {
		quest.SortOrder = *body.SortOrder
	}
	if len(body.Metadata) > 0 {
		quest.Metadata = datatypes.JSON(body.Metadata)
	}

	if errCreate := h.db.WithContext(c.Request.Context()).Create(&quest).Error; errCreate != nil {
		if dbutil.IsUniqueViolation(errCreate) {
			c.JSON(http.StatusConflict, gin.H{"error": "slug already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create quest failed"})
		return
	}
	c.JSON(http.StatusCreated, h.formatQuest(&quest))
}

// List returns all quests in display order.
func (h *QuestHandler) List(c *gin.Context) {
	var rows []models.Quest
	if errFind := h.db.WithContext(c.Request.Context()).Order("sort_order ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list quests failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.formatQuest(&row))
	}
	c.JSON(http.StatusOK, gin.H{"quests": out})
}

// Get returns a quest by ID.
func (h *QuestHandler) Get(c *gin.Context) {
	quest, ok := h.loadQuest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.formatQuest(quest))
}

// Update applies partial changes to a quest. The slug is immutable.
func (h *QuestHandler) Update(c *gin.Context) {
	quest, ok := h.loadQuest(c)
	if !ok {
		return
	}

	var body questRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{}
	if title := strings.TrimSpace(body.Title); title != "" {
		updates["title"] = title
	}
	if body.Description != "" {
		updates["description"] = strings.TrimSpace(body.Description)
	}
	if body.Points != nil {
		if *body.Points < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "points must be a non-negative integer"})
			return
		}
		updates["points"] = *body.Points
	}
	if body.SortOrder != nil {
		updates["sort_order"] = *body.SortOrder
	}
	if len(body.Metadata) > 0 {
		updates["metadata"] = datatypes.JSON(body.Metadata)
	}
	if len(updates) == 0 {
		c.JSON(http.StatusOK, h.formatQuest(quest))
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Quest{}).
		Where("id = ?", quest.ID).Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update quest failed"})
		return
	}
	if errReload := h.db.WithContext(c.Request.Context()).First(quest, quest.ID).Error; errReload != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatQuest(quest))
}

// Delete removes a quest and its completion rows. Points already paid
// out stay with their users.
func (h *QuestHandler) Delete(c *gin.Context) {
	quest, ok := h.loadQuest(c)
	if !ok {
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errPurge := tx.Where("quest_id = ?", quest.ID).Delete(&models.QuestCompletion{}).Error; errPurge != nil {
			return errPurge
		}
		return tx.Delete(&models.Quest{}, quest.ID).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete quest failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *QuestHandler) loadQuest(c *gin.Context) (*models.Quest, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil, false
	}
	var quest models.Quest
	if errFind := h.db.WithContext(c.Request.Context()).First(&quest, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	return &quest, true
}

func (h *QuestHandler) formatQuest(quest *models.Quest) gin.H {
	var metadata any
	if len(quest.Metadata) > 0 {
		_ = json.Unmarshal(quest.Metadata, &metadata)
	}
	return gin.H{
		"id":          quest.ID,
		"slug":        quest.Slug,
		"title":       quest.Title,
		"description": quest.Description,
		"points":      quest.Points,
		"sortOrder":   quest.SortOrder,
		"metadata":    metadata,
		"createdAt":   quest.CreatedAt,
		"updatedAt":   quest.UpdatedAt,
	}
}
