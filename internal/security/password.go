package security

import "golang.org/x/crypto/bcrypt"

const (
	passwordHashCost = 12
	secretHashCost   = 10
)

// HashPassword hashes an account password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether the password matches the stored hash.
func VerifyPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashSecret hashes a single-use code secret. Codes are short-lived, so a
// lower cost than account passwords keeps issuance cheap.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), secretHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifySecret reports whether the secret matches the stored hash.
func VerifySecret(hash, secret string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
