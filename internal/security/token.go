package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token roles carried in the role claim.
const (
	RoleUser     = "user"
	RoleAdmin    = "admin"
	RoleAdminMFA = "admin_mfa" // short-lived ticket between password and TOTP steps
)

// ErrInvalidToken indicates a token that failed parsing or validation.
var ErrInvalidToken = errors.New("invalid token")

// TokenClaims is the decoded identity carried by a session token.
type TokenClaims struct {
	Subject uint64
	Email   string
	Role    string
}

// IssueToken signs a session token for the given identity.
func IssueToken(secret string, subject uint64, email, role string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":   strconv.FormatUint(subject, 10),
		"email": email,
		"role":  role,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a session token and returns its claims.
func ParseToken(secret, raw string) (TokenClaims, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return TokenClaims{}, ErrInvalidToken
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return TokenClaims{}, ErrInvalidToken
	}
	out := TokenClaims{}
	switch sub := mapClaims["sub"].(type) {
	case string:
		parsed, errParse := strconv.ParseUint(sub, 10, 64)
		if errParse != nil {
			return TokenClaims{}, ErrInvalidToken
		}
		out.Subject = parsed
	case float64:
		out.Subject = uint64(sub)
	default:
		return TokenClaims{}, ErrInvalidToken
	}
	if email, ok := mapClaims["email"].(string); ok {
		out.Email = email
	}
	if role, ok := mapClaims["role"].(string); ok {
		out.Role = role
	}
	return out, nil
}
