// Package app assembles configuration, storage, mail, and the HTTP API
// into a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/tokicard/waitlist/internal/config"
	"github.com/tokicard/waitlist/internal/db"
	"github.com/tokicard/waitlist/internal/http/api/admin"
	"github.com/tokicard/waitlist/internal/http/api/front"
	"github.com/tokicard/waitlist/internal/mail"
	"github.com/tokicard/waitlist/internal/password"
	"github.com/tokicard/waitlist/internal/quests"
	"github.com/tokicard/waitlist/internal/ratelimit"
	"github.com/tokicard/waitlist/internal/waitlist"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the waitlist API server with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	jwtCfg, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return errJWT
	}
	if jwtCfg.Secret == "" {
		return errors.New("jwt secret is required (set `jwt.secret` in config file or JWT_SECRET)")
	}
	serverCfg, errServer := config.LoadServerConfig(configPath)
	if errServer != nil {
		return errServer
	}
	verificationCfg, errVerification := config.LoadVerificationConfig(configPath)
	if errVerification != nil {
		return errVerification
	}
	adminCfg, errAdminCfg := config.LoadAdminConfig(configPath)
	if errAdminCfg != nil {
		return errAdminCfg
	}

	if errAdmin := db.EnsureAdmin(conn, adminCfg.Username, adminCfg.Password); errAdmin != nil {
		return errAdmin
	}

	mailer, errMailer := buildMailer(configPath)
	if errMailer != nil {
		return errMailer
	}
	limiter, errLimiter := buildLimiter(configPath)
	if errLimiter != nil {
		return errLimiter
	}

	waitlistSvc := waitlist.NewService(conn, mailer, waitlist.Config{
		OTPValidity: verificationCfg.OTPValidity,
		JWTSecret:   jwtCfg.Secret,
		JWTExpiry:   jwtCfg.Expiry,
	})
	passwordSvc := password.NewService(conn, mailer, password.Config{
		ResetValidity:  verificationCfg.ResetValidity,
		FrontendOrigin: serverCfg.FrontendOrigin,
	})
	questSvc := quests.NewService(conn)

	if serverCfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	front.RegisterFrontRoutes(engine, front.Deps{
		WaitlistSvc:  waitlistSvc,
		PasswordSvc:  passwordSvc,
		QuestSvc:     questSvc,
		Limiter:      limiter,
		JWTSecret:    jwtCfg.Secret,
		Verification: verificationCfg,
		Production:   serverCfg.IsProduction(),
	})
	admin.RegisterAdminRoutes(engine, conn, jwtCfg)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("waitlist server listening")
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return <-errCh
	case errServe := <-errCh:
		return errServe
	}
}

// buildMailer returns the SMTP mailer when a relay is configured, or the
// log mailer for local development.
func buildMailer(configPath string) (mail.Mailer, error) {
	smtpCfg, errLoad := config.LoadSMTPConfig(configPath)
	if errLoad != nil {
		return nil, errLoad
	}
	if smtpCfg.Configured() {
		return mail.NewSMTPMailer(smtpCfg), nil
	}
	log.Warn("smtp relay not configured, emails will be logged instead of sent")
	return mail.LogMailer{}, nil
}

// buildLimiter returns the Redis-backed throttle when Redis is configured,
// or the in-process one otherwise.
func buildLimiter(configPath string) (ratelimit.Limiter, error) {
	redisCfg, errLoad := config.LoadRedisConfig(configPath)
	if errLoad != nil {
		return nil, errLoad
	}
	if redisCfg.Addr == "" {
		return ratelimit.NewMemoryLimiter(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	return ratelimit.NewRedisLimiter(client, "waitlist"), nil
}
