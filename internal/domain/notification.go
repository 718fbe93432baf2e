package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification record.
type Status string

const (
	StatusQueued Status = "QUEUED"
	StatusSent   Status = "SENT"
	StatusFailed Status = "FAILED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusSent, StatusFailed:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents the delivery medium.
type Channel string

const (
	ChannelEmail       Channel = "EMAIL"
	ChannelSMS         Channel = "SMS"
	ChannelChat        Channel = "CHAT"
	ChannelRichMessage Channel = "RICH_MESSAGE"
)

// Channels lists every supported channel. Sender registration and queue
// topology iterate over this set; it is closed by design.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelChat, ChannelRichMessage}
}

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelChat, ChannelRichMessage:
		return true
	}
	return false
}

// TemplateExtension returns the file extension used for file-system
// templates of this channel.
func (c Channel) TemplateExtension() string {
	if c == ChannelEmail {
		return "html"
	}
	return "txt"
}

// FolderName returns the template directory name for the channel,
// e.g. "rich_message".
func (c Channel) FolderName() string {
	return strings.ToLower(c.String())
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Notification is the transient command describing one requested delivery.
// Exactly one of TemplateName and Message must be set; ProcessedContent is
// populated by the delivery worker after rendering.
type Notification struct {
	ID               string            `json:"id"`
	Recipient        string            `json:"recipient"`
	Channel          Channel           `json:"channel"`
	TemplateName     string            `json:"templateName,omitempty"`
	Locale           string            `json:"locale,omitempty"`
	Data             map[string]string `json:"data,omitempty"`
	Message          string            `json:"message,omitempty"`
	ProcessedContent string            `json:"-"`
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if !n.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, n.Channel)
	}

	hasTemplate := strings.TrimSpace(n.TemplateName) != ""
	hasMessage := strings.TrimSpace(n.Message) != ""
	if hasTemplate == hasMessage {
		return fmt.Errorf("%w: exactly one of templateName and message is required", ErrValidation)
	}

	return nil
}

// UsesTemplate reports whether the content comes from a named template
// rather than the raw message.
func (n *Notification) UsesTemplate() bool {
	return strings.TrimSpace(n.TemplateName) != ""
}

// ContentIdentifier is the value fingerprinted by the deduplicator: the
// template name when one is used, the raw message otherwise.
func (n *Notification) ContentIdentifier() string {
	if n.UsesTemplate() {
		return n.TemplateName
	}
	return n.Message
}

// Payload is the replayable portion of a notification persisted alongside
// the record, sufficient to rebuild the command for retries and audit.
type Payload struct {
	Locale  string            `json:"locale,omitempty"`
	Message string            `json:"message,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

// NotificationRecord is the durable source of truth for one accepted request.
type NotificationRecord struct {
	ID           string
	Recipient    string
	Channel      Channel
	TemplateName string
	Status       Status
	Payload      Payload
	Attempts     []NotificationAttempt
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Command rebuilds the transient delivery command from the durable record.
func (r *NotificationRecord) Command() *Notification {
	return &Notification{
		ID:           r.ID,
		Recipient:    r.Recipient,
		Channel:      r.Channel,
		TemplateName: r.TemplateName,
		Locale:       r.Payload.Locale,
		Data:         r.Payload.Data,
		Message:      r.Payload.Message,
	}
}

// RecordFromNotification builds the QUEUED record persisted at admission.
func RecordFromNotification(n *Notification) *NotificationRecord {
	return &NotificationRecord{
		ID:           n.ID,
		Recipient:    n.Recipient,
		Channel:      n.Channel,
		TemplateName: n.TemplateName,
		Status:       StatusQueued,
		Payload: Payload{
			Locale:  n.Locale,
			Message: n.Message,
			Data:    n.Data,
		},
	}
}
