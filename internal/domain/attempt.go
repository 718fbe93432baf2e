package domain

import "time"

// MaxAttemptErrorLength bounds the error text stored with an attempt.
const MaxAttemptErrorLength = 1024

// NotificationAttempt records a single delivery outcome for a notification.
// Attempts are append-only and owned by exactly one NotificationRecord.
type NotificationAttempt struct {
	ID                string
	NotificationID    string
	Status            Status
	Error             string
	ProviderMessageID string
	CreatedAt         time.Time
}

// TruncateAttemptError caps error text at MaxAttemptErrorLength characters.
func TruncateAttemptError(s string) string {
	if len(s) > MaxAttemptErrorLength {
		return s[:MaxAttemptErrorLength]
	}
	return s
}
