package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// Template resolution failures are terminal for an attempt: a missing
	// template will not appear on retry.
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateRender   = errors.New("template render error")
)

// ErrorCategory groups structured errors so the transport layer can map
// them to status codes without inspecting error internals.
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "VALIDATION"
	CategoryConfiguration ErrorCategory = "CONFIGURATION"
	CategoryRateLimit     ErrorCategory = "RATE_LIMIT"
	CategorySending       ErrorCategory = "SENDING"
	CategoryTemplate      ErrorCategory = "TEMPLATE"
	CategorySecurity      ErrorCategory = "SECURITY"
)

// Stable error codes surfaced to API clients.
const (
	CodeInvalidRequest      = "NOTIF_061"
	CodeChannelNotSupported = "NOTIF_065"
	CodeRateLimitExceeded   = "NOTIF_066"
	CodeTemplateNotFound    = "NOTIF_041"
	CodeTemplateRender      = "NOTIF_042"
	CodeSendFailed          = "NOTIF_001"
	CodeConfiguration       = "NOTIF_003"
	CodeInvalidSignature    = "NOTIF_090"
)

// NotificationError is a structured pipeline error carrying a stable code,
// a category and human-readable title/message.
type NotificationError struct {
	Code     string
	Category ErrorCategory
	Title    string
	Message  string
	Cause    error
}

func (e *NotificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *NotificationError) Unwrap() error { return e.Cause }

// RateLimitError rejects a dispatch at admission time. ResetAfter is the
// remaining window TTL, surfaced to callers as retry-after information.
type RateLimitError struct {
	Channel    Channel
	Recipient  string
	ResetAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s:%s, resets in %s",
		e.Channel, e.Recipient, e.ResetAfter)
}
