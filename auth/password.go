package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes a raw password with bcrypt
func HashPassword(raw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	return string(b), err
}

// CheckPassword reports whether raw matches the bcrypt hash
func CheckPassword(hash, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
