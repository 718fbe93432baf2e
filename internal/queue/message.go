package queue

import (
	"fmt"
	"strings"

	"github.com/dispatchlab/notify-gateway/internal/domain"
)

// NotificationMessage is the broker payload for delivery processing. It
// carries only the record id; the worker reloads the durable record, which
// keeps redelivery after a crash safe and the broker payload small.
type NotificationMessage struct {
	NotificationID string         `json:"notificationId"`
	Channel        domain.Channel `json:"channel"`
}

func (m NotificationMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", m.Channel)
	}
	return nil
}
