package services

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minFieldLength    = 3
	minPasswordLength = 8
)

// maxFieldLength mirrors the column widths of the users table.
var maxFieldLength = map[string]int{
	"username":   40,
	"first_name": 100,
	"last_name":  100,
	"email":      255,
}

// PasswordSpecialChars lists the characters that satisfy the special
// character rule.
const PasswordSpecialChars = "!@#$%^&*()-_=+[]{}|;:'\",.<>/?`~\\"

// ValidatePassword checks the complexity rules in order and reports the first
// one that fails.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return invalid("password", "password must be at least %d characters long", minPasswordLength)
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(PasswordSpecialChars, r):
			special = true
		}
	}

	switch {
	case !upper:
		return invalid("password", "password must contain at least one uppercase letter")
	case !lower:
		return invalid("password", "password must contain at least one lowercase letter")
	case !digit:
		return invalid("password", "password must contain at least one digit")
	case !special:
		return invalid("password", "password must contain at least one special character")
	}
	return nil
}

func validateLength(field, value string) error {
	n := utf8.RuneCountInString(value)
	if n < minFieldLength {
		return invalid(field, "%s must be at least %d characters long", field, minFieldLength)
	}
	if limit, ok := maxFieldLength[field]; ok && n > limit {
		return invalid(field, "%s must be at most %d characters long", field, limit)
	}
	return nil
}
