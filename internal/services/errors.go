package services

import (
	"errors"
	"fmt"

	"github.com/jjudge-oj/accounts/internal/auth"
)

var (
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is shared by unknown users and wrong passwords so
	// callers cannot probe which accounts exist.
	ErrInvalidCredentials = errors.New("invalid username/email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrHashing            = auth.ErrHashing
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
