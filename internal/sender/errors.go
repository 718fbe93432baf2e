package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a send failure for the retry middleware. Invalid requests
// and configuration problems never recover on retry; provider rate limits
// and generic send failures might.
type Kind string

const (
	KindInvalidRequest      Kind = "INVALID_REQUEST"
	KindInvalidRecipient    Kind = "INVALID_RECIPIENT"
	KindConfiguration       Kind = "CONFIGURATION"
	KindProviderRateLimited Kind = "PROVIDER_RATE_LIMITED"
	KindSendFailed          Kind = "SEND_FAILED"
)

// SendError is the structured failure returned by channel senders.
type SendError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Cause      error
}

func (e *SendError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SendError) Unwrap() error { return e.Cause }

func newSendError(kind Kind, statusCode int, format string, args ...any) *SendError {
	return &SendError{
		Kind:       kind,
		StatusCode: statusCode,
		Message:    fmt.Sprintf(format, args...),
	}
}

// IsTransient reports whether a failed send is worth retrying. Context
// cancellation is not: the caller is going away. Deadline expiry and network
// timeouts are, as are provider rate limits and 5xx-class failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var se *SendError
	if errors.As(err, &se) {
		switch se.Kind {
		case KindProviderRateLimited, KindSendFailed:
			return true
		default:
			return false
		}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}

	return true
}
