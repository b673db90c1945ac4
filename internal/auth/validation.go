package auth

import (
	"regexp"
)

// MinPasswordLength is the shortest password accepted for a new credential.
const MinPasswordLength = 8

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail checks that email looks like an address.
func ValidateEmail(email string) error {
	if email == "" {
		return missingField("email")
	}
	if len(email) >= 255 || !emailRegex.MatchString(email) {
		return &ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	return nil
}

// ValidatePassword enforces the length policy for new passwords. The upper
// bound is the bcrypt input limit.
func ValidatePassword(password string) error {
	if password == "" {
		return missingField("password")
	}
	if len(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Reason: "must be at least 8 characters long"}
	}
	if len(password) > maxPasswordBytes {
		return &ValidationError{Field: "password", Reason: "must be 72 bytes or fewer"}
	}
	return nil
}
