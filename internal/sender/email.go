package sender

import (
	"context"
	"net/mail"
	"strings"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"github.com/resend/resend-go/v2"
)

const defaultEmailSubject = "Notification"

// EmailSender delivers rendered HTML over the Resend API.
type EmailSender struct {
	client *resend.Client
	from   string
}

func NewEmailSender(apiKey, from string) *EmailSender {
	var client *resend.Client
	if strings.TrimSpace(apiKey) != "" {
		client = resend.NewClient(apiKey)
	}
	return &EmailSender{client: client, from: from}
}

func (s *EmailSender) Channel() domain.Channel { return domain.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, recipient, content, locale string, metadata Metadata) (string, error) {
	if s.client == nil {
		return "", newSendError(KindConfiguration, 0, "email provider api key is not configured")
	}
	if strings.TrimSpace(s.from) == "" {
		return "", newSendError(KindConfiguration, 0, "email sender address is not configured")
	}
	if _, err := mail.ParseAddress(recipient); err != nil {
		return "", newSendError(KindInvalidRecipient, 0, "invalid email address %q", recipient)
	}

	subject := metadata["subject"]
	if subject == "" {
		subject = defaultEmailSubject
	}

	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{recipient},
		Subject: subject,
		Html:    content,
	})
	if err != nil {
		return "", &SendError{
			Kind:    KindSendFailed,
			Message: "email provider request failed",
			Cause:   err,
		}
	}

	return sent.Id, nil
}
