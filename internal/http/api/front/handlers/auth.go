package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/tokicard/waitlist/internal/codes"
	"github.com/tokicard/waitlist/internal/mail"
	"github.com/tokicard/waitlist/internal/models"
	"github.com/tokicard/waitlist/internal/password"
	"github.com/tokicard/waitlist/internal/ratelimit"
	"github.com/tokicard/waitlist/internal/waitlist"
)

// AuthHandler manages login, session introspection, and password recovery.
type AuthHandler struct {
	waitlistSvc  *waitlist.Service
	passwordSvc  *password.Service
	limiter      ratelimit.Limiter
	resendLimit  int
	resendWindow time.Duration
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(waitlistSvc *waitlist.Service, passwordSvc *password.Service, limiter ratelimit.Limiter, resendLimit int, resendWindow time.Duration) *AuthHandler {
	return &AuthHandler{
		waitlistSvc:  waitlistSvc,
		passwordSvc:  passwordSvc,
		limiter:      limiter,
		resendLimit:  resendLimit,
		resendWindow: resendWindow,
	}
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login checks credentials and returns a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := models.NormalizeEmail(body.Email)
	if email == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password required"})
		return
	}

	token, user, errAuth := h.waitlistSvc.Authenticate(c.Request.Context(), email, body.Password)
	if errAuth != nil {
		switch {
		case errors.Is(errAuth, waitlist.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		case errors.Is(errAuth, waitlist.ErrNotVerified):
			c.JSON(http.StatusForbidden, gin.H{"error": "Account not verified. Please verify your email first."})
		default:
			log.WithError(errAuth).Error("login failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to sign in"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	userID := AuthedUserID(c)
	user, errGet := h.waitlistSvc.GetUser(c.Request.Context(), userID)
	if errGet != nil {
		if errors.Is(errGet, waitlist.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		log.WithError(errGet).Error("load profile failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to load profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Referrals returns a page of the caller's referred signups with masked
// emails.
func (h *AuthHandler) Referrals(c *gin.Context) {
	userID := AuthedUserID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "10"))

	result, errList := h.waitlistSvc.ListReferrals(c.Request.Context(), userID, page, pageSize)
	if errList != nil {
		if errors.Is(errList, waitlist.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		log.WithError(errList).Error("list referrals failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to load referrals"})
		return
	}
	for i := range result.Referrals {
		result.Referrals[i].Email = MaskEmail(result.Referrals[i].Email)
	}
	c.JSON(http.StatusOK, result)
}

// forgotRequest defines the request body for forgot-password.
type forgotRequest struct {
	Email string `json:"email"`
}

// ForgotPassword issues a reset link. The response never reveals whether
// the account exists.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var body forgotRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := models.NormalizeEmail(body.Email)
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email required"})
		return
	}

	if h.limiter != nil {
		result, errAllow := h.limiter.Allow(c.Request.Context(), "forgot-password:"+email, h.resendLimit, h.resendWindow, time.Now())
		if errAllow != nil {
			log.WithError(errAllow).Warn("rate limit check failed")
		} else if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please try again shortly."})
			return
		}
	}

	if errRequest := h.passwordSvc.RequestReset(c.Request.Context(), email); errRequest != nil {
		if errors.Is(errRequest, mail.ErrDelivery) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deliver reset email. Please try again shortly."})
			return
		}
		log.WithError(errRequest).Error("password reset request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to process request"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": password.GenericResetMessage})
}

// resetPasswordRequest defines the request body for reset-password.
type resetPasswordRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	ResetID     string `json:"resetId"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword consumes a reset token and replaces the password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var body resetPasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := models.NormalizeEmail(body.Email)
	token := strings.TrimSpace(body.Token)
	resetID := strings.TrimSpace(body.ResetID)
	if email == "" || token == "" || resetID == "" || len(body.NewPassword) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, token, resetId and a new password of at least 8 characters are required"})
		return
	}

	if errReset := h.passwordSvc.Reset(c.Request.Context(), email, token, resetID, body.NewPassword); errReset != nil {
		switch {
		case errors.Is(errReset, codes.ErrExpired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Reset link has expired. Please request a new one."})
		case errors.Is(errReset, codes.ErrConsumed):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Reset link already used. Please request a new one."})
		case errors.Is(errReset, codes.ErrInvalidSecret), errors.Is(errReset, codes.ErrNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reset link. Please request a new one."})
		default:
			log.WithError(errReset).Error("password reset failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to reset password"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset. You can now sign in."})
}

// MaskEmail hides most of an email's local part, keeping the first and
// last character.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if len(local) <= 2 {
		return strings.Repeat("*", len(local)) + "@" + domain
	}
	return local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:] + "@" + domain
}
