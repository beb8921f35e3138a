package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/tokicard/waitlist/internal/codes"
	"github.com/tokicard/waitlist/internal/mail"
	"github.com/tokicard/waitlist/internal/models"
	"github.com/tokicard/waitlist/internal/ratelimit"
	"github.com/tokicard/waitlist/internal/waitlist"
)

// WaitlistHandler manages registration and OTP verification endpoints.
type WaitlistHandler struct {
	svc          *waitlist.Service
	limiter      ratelimit.Limiter
	resendLimit  int
	resendWindow time.Duration
	production   bool
}

// NewWaitlistHandler constructs a WaitlistHandler.
func NewWaitlistHandler(svc *waitlist.Service, limiter ratelimit.Limiter, resendLimit int, resendWindow time.Duration, production bool) *WaitlistHandler {
	return &WaitlistHandler{
		svc:          svc,
		limiter:      limiter,
		resendLimit:  resendLimit,
		resendWindow: resendWindow,
		production:   production,
	}
}

// submitRequest defines the request body for waitlist registration.
type submitRequest struct {
	FullName   string  `json:"fullname"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone"`
	Password   string  `json:"password"`
	ReferredBy *string `json:"referredBy"`
}

// Submit registers an email on the waitlist and dispatches an OTP.
func (h *WaitlistHandler) Submit(c *gin.Context) {
	var body submitRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	fullName := strings.TrimSpace(body.FullName)
	email := models.NormalizeEmail(body.Email)
	phone := strings.TrimSpace(body.Phone)
	if fullName == "" || email == "" || phone == "" || len(body.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fullname, email, phone and a password of at least 8 characters are required"})
		return
	}
	referral := ""
	if body.ReferredBy != nil {
		referral = strings.TrimSpace(*body.ReferredBy)
	}

	result, errSubmit := h.svc.Submit(c.Request.Context(), waitlist.SubmitParams{
		FullName:     fullName,
		Email:        email,
		Phone:        phone,
		Password:     body.Password,
		ReferralCode: referral,
	})
	if errSubmit != nil {
		if errors.Is(errSubmit, mail.ErrDelivery) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deliver OTP email. Please try again shortly."})
			return
		}
		log.WithError(errSubmit).Error("waitlist submit failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to process waitlist registration"})
		return
	}

	if result.AlreadyVerified {
		c.JSON(http.StatusOK, gin.H{
			"message":         "Account already verified. Please sign in.",
			"alreadyVerified": true,
		})
		return
	}

	payload := gin.H{
		"message":        "Waitlist submission received. Please verify the OTP sent to your email.",
		"verificationId": result.VerificationID,
		"expiresAt":      result.ExpiresAt,
	}
	if !h.production {
		payload["debugOtp"] = result.OTP
	}
	c.JSON(http.StatusOK, payload)
}

// verifyRequest defines the request body for OTP verification.
type verifyRequest struct {
	Email          string `json:"email"`
	OTP            string `json:"otp"`
	VerificationID string `json:"verificationId"`
}

// Verify consumes an OTP and returns a session token.
func (h *WaitlistHandler) Verify(c *gin.Context) {
	var body verifyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := models.NormalizeEmail(body.Email)
	otp := strings.TrimSpace(body.OTP)
	verificationID := strings.TrimSpace(body.VerificationID)
	if email == "" || otp == "" || verificationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, otp and verificationId required"})
		return
	}

	result, errVerify := h.svc.Verify(c.Request.Context(), email, otp, verificationID)
	if errVerify != nil {
		switch {
		case errors.Is(errVerify, waitlist.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(errVerify, codes.ErrExpired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "OTP has expired. Please request a new one."})
		case errors.Is(errVerify, codes.ErrInvalidSecret):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Incorrect OTP. Please try again."})
		case errors.Is(errVerify, codes.ErrConsumed):
			c.JSON(http.StatusBadRequest, gin.H{"error": "OTP already used. Please request a new one."})
		case errors.Is(errVerify, codes.ErrNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "OTP verification failed."})
		default:
			log.WithError(errVerify).Error("otp verification failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "OTP verification failed."})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":          result.Token,
		"user":           result.User,
		"referralReward": result.ReferralReward,
	})
}

// resendRequest defines the request body for OTP resend.
type resendRequest struct {
	Email string `json:"email"`
}

// Resend invalidates the live OTP and dispatches a fresh one.
func (h *WaitlistHandler) Resend(c *gin.Context) {
	var body resendRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := models.NormalizeEmail(body.Email)
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email required"})
		return
	}

	if !h.allow(c, "resend-otp:"+email) {
		return
	}

	result, errResend := h.svc.Resend(c.Request.Context(), email)
	if errResend != nil {
		switch {
		case errors.Is(errResend, waitlist.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(errResend, mail.ErrDelivery):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deliver OTP email. Please try again shortly."})
		default:
			log.WithError(errResend).Error("otp resend failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to resend OTP"})
		}
		return
	}

	payload := gin.H{
		"message":        "OTP resent successfully.",
		"verificationId": result.VerificationID,
		"expiresAt":      result.ExpiresAt,
	}
	if !h.production {
		payload["debugOtp"] = result.OTP
	}
	c.JSON(http.StatusOK, payload)
}

// allow applies the per-email resend throttle. Limiter outages fail open.
func (h *WaitlistHandler) allow(c *gin.Context, key string) bool {
	if h.limiter == nil {
		return true
	}
	result, errAllow := h.limiter.Allow(c.Request.Context(), key, h.resendLimit, h.resendWindow, time.Now())
	if errAllow != nil {
		log.WithError(errAllow).Warn("rate limit check failed")
		return true
	}
	if !result.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please try again shortly."})
		return false
	}
	return true
}
