package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tokicard/waitlist/internal/config"
	"github.com/tokicard/waitlist/internal/models"
	"github.com/tokicard/waitlist/internal/security"
)

// mfaTicketTTL bounds the window between the password step and the TOTP
// step.
const mfaTicketTTL = 5 * time.Minute

// AuthHandler manages admin login and TOTP enrollment.
type AuthHandler struct {
	db     *gorm.DB // Database handle for admin accounts.
	jwtCfg config.JWTConfig
}

// NewAuthHandler constructs an admin auth handler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg}
}

// loginRequest captures the payload for the password step.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login checks admin credentials. Accounts with TOTP enabled get a
// short-lived MFA ticket instead of a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	var admin models.Admin
	errFind := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&admin).Error
	if errFind != nil || !security.VerifyPassword(admin.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if admin.TOTPSecret != "" {
		ticket, errTicket := security.IssueToken(h.jwtCfg.Secret, admin.ID, admin.Username, security.RoleAdminMFA, mfaTicketTTL)
		if errTicket != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "issue ticket failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"mfaRequired": true, "ticket": ticket})
		return
	}

	token, errToken := security.IssueToken(h.jwtCfg.Secret, admin.ID, admin.Username, security.RoleAdmin, h.jwtCfg.Expiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// loginTOTPRequest captures the payload for the TOTP step.
type loginTOTPRequest struct {
	Ticket string `json:"ticket"`
	Code   string `json:"code"`
}

// LoginTOTP exchanges an MFA ticket plus a valid TOTP code for a session
// token.
func (h *AuthHandler) LoginTOTP(c *gin.Context) {
	var body loginTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	claims, errParse := security.ParseToken(h.jwtCfg.Secret, strings.TrimSpace(body.Ticket))
	if errParse != nil || claims.Role != security.RoleAdminMFA {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid ticket"})
		return
	}

	var admin models.Admin
	if errFind := h.db.WithContext(c.Request.Context()).First(&admin, claims.Subject).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
		return
	}
	if !security.VerifyTOTP(admin.TOTPSecret, strings.TrimSpace(body.Code)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid totp code"})
		return
	}

	token, errToken := security.IssueToken(h.jwtCfg.Secret, admin.ID, admin.Username, security.RoleAdmin, h.jwtCfg.Expiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// MFAHandler manages TOTP enrollment for the logged-in admin.
type MFAHandler struct {
	db *gorm.DB // Database handle for admin accounts.
}

// NewMFAHandler constructs an MFA handler.
func NewMFAHandler(db *gorm.DB) *MFAHandler {
	return &MFAHandler{db: db}
}

// Status reports whether TOTP is enabled for the caller.
func (h *MFAHandler) Status(c *gin.Context) {
	admin, ok := h.currentAdmin(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"totpEnabled": admin.TOTPSecret != "",
		"totpPending": admin.PendingTOTPSecret != "",
	})
}

// PrepareTOTP generates a pending secret and returns the provisioning URL.
func (h *MFAHandler) PrepareTOTP(c *gin.Context) {
	admin, ok := h.currentAdmin(c)
	if !ok {
		return
	}

	key, errGenerate := security.GenerateTOTPSecret(admin.Username)
	if errGenerate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate totp secret failed"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", admin.ID).
		Update("pending_totp_secret", key.Secret()).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store pending secret failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"secret": key.Secret(), "url": key.URL()})
}

// confirmTOTPRequest captures the payload for TOTP confirmation.
type confirmTOTPRequest struct {
	Code string `json:"code"`
}

// ConfirmTOTP promotes the pending secret once the admin proves they can
// produce codes for it.
func (h *MFAHandler) ConfirmTOTP(c *gin.Context) {
	admin, ok := h.currentAdmin(c)
	if !ok {
		return
	}
	if admin.PendingTOTPSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no pending totp enrollment"})
		return
	}

	var body confirmTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !security.VerifyTOTP(admin.PendingTOTPSecret, strings.TrimSpace(body.Code)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid totp code"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", admin.ID).
		Updates(map[string]any{
			"totp_secret":         admin.PendingTOTPSecret,
			"pending_totp_secret": "",
		}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enable totp failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"totpEnabled": true})
}

// DisableTOTP turns MFA off after a final valid code.
func (h *MFAHandler) DisableTOTP(c *gin.Context) {
	admin, ok := h.currentAdmin(c)
	if !ok {
		return
	}
	if admin.TOTPSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp not enabled"})
		return
	}

	var body confirmTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !security.VerifyTOTP(admin.TOTPSecret, strings.TrimSpace(body.Code)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid totp code"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", admin.ID).
		Updates(map[string]any{
			"totp_secret":         "",
			"pending_totp_secret": "",
		}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable totp failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"totpEnabled": false})
}

func (h *MFAHandler) currentAdmin(c *gin.Context) (models.Admin, bool) {
	id, _ := c.Get("adminID")
	adminID, _ := id.(uint64)

	var admin models.Admin
	errFind := h.db.WithContext(c.Request.Context()).First(&admin, adminID).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		}
		return models.Admin{}, false
	}
	return admin, true
}
