package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tokicard/waitlist/internal/mail"
)

const (
	EnvConfigPath     = "CONFIG_PATH"
	EnvDBConnection   = "DB_CONNECTION"
	EnvJWTSecret      = "JWT_SECRET"
	EnvJWTExpiry      = "JWT_EXPIRY"
	EnvAppEnv         = "APP_ENV"
	EnvFrontendOrigin = "FRONTEND_ORIGIN"
	EnvRedisAddr      = "REDIS_ADDR"
	EnvSMTPHost       = "SMTP_HOST"
	EnvSMTPPort       = "SMTP_PORT"
	EnvSMTPUser       = "SMTP_USER"
	EnvSMTPPass       = "SMTP_PASS"
	EnvSMTPFrom       = "SMTP_FROM"
	EnvAdminUsername  = "ADMIN_USERNAME"
	EnvAdminPassword  = "ADMIN_PASSWORD"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// LoadDatabaseDSN reads the database DSN from the YAML config file.
// The DB_CONNECTION environment variable wins over the file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file with env
// overrides.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return result, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		result = cfg.JWT
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// ServerConfig holds environment and origin settings.
type ServerConfig struct {
	Env            string `yaml:"env"`
	FrontendOrigin string `yaml:"frontend-origin"`
}

// IsProduction reports whether the server runs in production mode.
func (c ServerConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadServerConfig loads server settings from the YAML config file with
// env overrides.
func LoadServerConfig(configPath string) (ServerConfig, error) {
	// fileConfig maps the YAML fields needed for server settings.
	type fileConfig struct {
		Server ServerConfig `yaml:"server"`
	}

	result := ServerConfig{Env: "development", FrontendOrigin: "http://localhost:3000"}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return result, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		if cfg.Server.Env != "" {
			result.Env = cfg.Server.Env
		}
		if cfg.Server.FrontendOrigin != "" {
			result.FrontendOrigin = cfg.Server.FrontendOrigin
		}
	}

	if env := strings.TrimSpace(os.Getenv(EnvAppEnv)); env != "" {
		result.Env = env
	}
	if origin := strings.TrimSpace(os.Getenv(EnvFrontendOrigin)); origin != "" {
		result.FrontendOrigin = origin
	}
	return result, nil
}

// LoadSMTPConfig loads mail relay settings from the YAML config file with
// env overrides.
func LoadSMTPConfig(configPath string) (mail.SMTPConfig, error) {
	// fileConfig maps the YAML fields needed for SMTP settings.
	type fileConfig struct {
		SMTP mail.SMTPConfig `yaml:"smtp"`
	}

	var result mail.SMTPConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return result, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		result = cfg.SMTP
	}

	if host := strings.TrimSpace(os.Getenv(EnvSMTPHost)); host != "" {
		result.Host = host
	}
	if port := strings.TrimSpace(os.Getenv(EnvSMTPPort)); port != "" {
		result.Port = port
	}
	if user := strings.TrimSpace(os.Getenv(EnvSMTPUser)); user != "" {
		result.Username = user
	}
	if pass := strings.TrimSpace(os.Getenv(EnvSMTPPass)); pass != "" {
		result.Password = pass
	}
	if from := strings.TrimSpace(os.Getenv(EnvSMTPFrom)); from != "" {
		result.From = from
	}
	return result, nil
}

// RedisConfig holds optional Redis settings for the request throttle.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoadRedisConfig loads Redis settings from the YAML config file with env
// overrides. An empty address means the in-memory limiter is used.
func LoadRedisConfig(configPath string) (RedisConfig, error) {
	// fileConfig maps the YAML fields needed for Redis settings.
	type fileConfig struct {
		Redis RedisConfig `yaml:"redis"`
	}

	var result RedisConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return result, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		result = cfg.Redis
	}

	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		result.Addr = addr
	}
	return result, nil
}

// VerificationConfig holds code validity windows and the resend throttle.
type VerificationConfig struct {
	OTPValidity   time.Duration `yaml:"otp-validity"`
	ResetValidity time.Duration `yaml:"reset-validity"`
	ResendLimit   int           `yaml:"resend-limit"`
	ResendWindow  time.Duration `yaml:"resend-window"`
}

// Verification defaults.
const (
	defaultOTPValidity   = 10 * time.Minute
	defaultResetValidity = 60 * time.Minute
	defaultResendLimit   = 3
	defaultResendWindow  = time.Minute
)

// LoadVerificationConfig loads code lifecycle settings from the YAML
// config file.
func LoadVerificationConfig(configPath string) (VerificationConfig, error) {
	// fileConfig maps the YAML fields needed for verification settings.
	type fileConfig struct {
		Verification VerificationConfig `yaml:"verification"`
	}

	result := VerificationConfig{
		OTPValidity:   defaultOTPValidity,
		ResetValidity: defaultResetValidity,
		ResendLimit:   defaultResendLimit,
		ResendWindow:  defaultResendWindow,
	}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return result, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		if cfg.Verification.OTPValidity > 0 {
			result.OTPValidity = cfg.Verification.OTPValidity
		}
		if cfg.Verification.ResetValidity > 0 {
			result.ResetValidity = cfg.Verification.ResetValidity
		}
		if cfg.Verification.ResendLimit > 0 {
			result.ResendLimit = cfg.Verification.ResendLimit
		}
		if cfg.Verification.ResendWindow > 0 {
			result.ResendWindow = cfg.Verification.ResendWindow
		}
	}
	return result, nil
}

// AdminConfig holds bootstrap credentials for the admin account.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoadAdminConfig loads admin bootstrap credentials from the YAML config
// file with env overrides.
func LoadAdminConfig(configPath string) (AdminConfig, error) {
	// fileConfig maps the YAML fields needed for admin settings.
	type fileConfig struct {
		Admin AdminConfig `yaml:"admin"`
	}

	var result AdminConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return result, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		result = cfg.Admin
	}

	if username := strings.TrimSpace(os.Getenv(EnvAdminUsername)); username != "" {
		result.Username = username
	}
	if password := strings.TrimSpace(os.Getenv(EnvAdminPassword)); password != "" {
		result.Password = password
	}
	return result, nil
}

// ParsePort parses and validates a TCP port string.
func ParsePort(raw string) (int, error) {
	port, errParse := strconv.Atoi(strings.TrimSpace(raw))
	if errParse != nil {
		return 0, fmt.Errorf("invalid port: %q", raw)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port: %d", port)
	}
	return port, nil
}
