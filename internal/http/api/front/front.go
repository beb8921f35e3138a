// Package front wires the public waitlist API: registration, OTP
// verification, login, password recovery, referrals, and quests.
package front

import (
	"github.com/gin-gonic/gin"

	"github.com/tokicard/waitlist/internal/config"
	handlers "github.com/tokicard/waitlist/internal/http/api/front/handlers"
	"github.com/tokicard/waitlist/internal/password"
	"github.com/tokicard/waitlist/internal/quests"
	"github.com/tokicard/waitlist/internal/ratelimit"
	"github.com/tokicard/waitlist/internal/waitlist"
)

// Deps bundles the collaborators the public routes need.
type Deps struct {
	WaitlistSvc  *waitlist.Service
	PasswordSvc  *password.Service
	QuestSvc     *quests.Service
	Limiter      ratelimit.Limiter
	JWTSecret    string
	Verification config.VerificationConfig
	Production   bool
}

// RegisterFrontRoutes registers public routes, middleware, and handlers.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.WaitlistSvc == nil {
		return
	}

	waitlistHandler := handlers.NewWaitlistHandler(deps.WaitlistSvc, deps.Limiter, deps.Verification.ResendLimit, deps.Verification.ResendWindow, deps.Production)
	r.POST("/waitlist", waitlistHandler.Submit)
	r.POST("/verify-otp", waitlistHandler.Verify)
	r.POST("/resend-otp", waitlistHandler.Resend)

	authHandler := handlers.NewAuthHandler(deps.WaitlistSvc, deps.PasswordSvc, deps.Limiter, deps.Verification.ResendLimit, deps.Verification.ResendWindow)
	authGroup := r.Group("/auth")
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/forgot-password", authHandler.ForgotPassword)
	authGroup.POST("/reset-password", authHandler.ResetPassword)

	authed := authGroup.Group("")
	authed.Use(handlers.UserAuthMiddleware(deps.JWTSecret))
	authed.GET("/me", authHandler.Me)
	authed.GET("/referrals", authHandler.Referrals)

	questHandler := handlers.NewQuestHandler(deps.QuestSvc)
	questGroup := r.Group("/quests")
	questGroup.Use(handlers.UserAuthMiddleware(deps.JWTSecret))
	questGroup.GET("", questHandler.List)
	questGroup.POST("/:slug/complete", questHandler.Complete)
}
