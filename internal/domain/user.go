package domain

import (
	"regexp"
	"strings"
	"time"
)

// User is an account that owns records and targets.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9ぁ-んァ-ン一-龠]{3,30}$`)
	passwordPattern = regexp.MustCompile(`^[a-zA-Z0-9!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?]+$`)
)

// ValidateUsername enforces 3-30 letters, digits, or Japanese characters.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return &ValidationError{Field: "username", Message: "username must be 3-30 letters, digits, or Japanese characters"}
	}
	return nil
}

// ValidatePassword enforces 8-24 printable ASCII characters without spaces.
func ValidatePassword(password string) error {
	if len(password) < 8 || len(password) > 24 {
		return &ValidationError{Field: "password", Message: "password must be 8-24 characters"}
	}
	if strings.Contains(password, " ") {
		return &ValidationError{Field: "password", Message: "password must not contain spaces"}
	}
	if !passwordPattern.MatchString(password) {
		return &ValidationError{Field: "password", Message: "password may contain only letters, digits, and symbols"}
	}
	return nil
}
