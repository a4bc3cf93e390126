package auth

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for expected failure conditions. Handlers map these onto
// HTTP statuses; anything else is treated as an internal fault and logged
// with full detail while the client sees an opaque message.
var (
	// ErrUnauthenticated covers every invalid-credential condition on
	// authenticated paths. Missing, malformed, expired, wrong-type, and
	// deactivated-account all surface identically so callers cannot probe
	// which one occurred.
	ErrUnauthenticated = errors.New("invalid or expired credentials")

	// ErrForbidden means the caller is authenticated but lacks the role.
	ErrForbidden = errors.New("administrative privileges are required")

	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrVerificationRequired = errors.New("account verification is required")
	ErrEmailTaken           = errors.New("email already registered")
	ErrInviteInvalid        = errors.New("invalid or used invite token")
	ErrInviteExpired        = errors.New("invite token has expired")
	ErrResetInvalid         = errors.New("invalid or expired reset session")
	ErrUserNotFound         = errors.New("user not found")
)

// ValidationError reports a malformed input field; recoverable by resubmission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalidField(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// RateLimitedError means the OTP cooldown is active; RetryAfter carries the
// remaining wait for the Retry-After hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
}
