package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"github.com/go-resty/resty/v2"
)

const viberBaseURL = "https://chatapi.viber.com"

// Viber API status codes that matter for failure classification.
const (
	viberStatusOK              = 0
	viberStatusInvalidToken    = 2
	viberStatusReceiverInvalid = 5
)

// RichMessageSender delivers messages through the Viber public-account API.
type RichMessageSender struct {
	client     *resty.Client
	authToken  string
	senderName string
}

func NewRichMessageSender(authToken, senderName string) *RichMessageSender {
	client := resty.New().
		SetBaseURL(viberBaseURL).
		SetTimeout(15 * time.Second)

	return &RichMessageSender{
		client:     client,
		authToken:  authToken,
		senderName: senderName,
	}
}

func (s *RichMessageSender) Channel() domain.Channel { return domain.ChannelRichMessage }

func (s *RichMessageSender) Send(ctx context.Context, recipient, content, locale string, metadata Metadata) (string, error) {
	if strings.TrimSpace(s.authToken) == "" {
		return "", newSendError(KindConfiguration, 0, "rich message auth token is not configured")
	}
	if strings.TrimSpace(recipient) == "" {
		return "", newSendError(KindInvalidRecipient, 0, "receiver id is required")
	}

	body := map[string]any{
		"receiver":        recipient,
		"type":            "text",
		"text":            content,
		"min_api_version": 7,
		"sender": map[string]string{
			"name": s.senderName,
		},
	}
	if trackingData := metadata["tracking_data"]; trackingData != "" {
		body["tracking_data"] = trackingData
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("X-Viber-Auth-Token", s.authToken).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/pa/send_message")
	if err != nil {
		return "", &SendError{
			Kind:    KindSendFailed,
			Message: "rich message provider request failed",
			Cause:   err,
		}
	}
	if code := resp.StatusCode(); code != http.StatusOK {
		if code == http.StatusTooManyRequests {
			return "", newSendError(KindProviderRateLimited, code, "rich message provider rate limit exceeded")
		}
		return "", newSendError(KindSendFailed, code, "rich message provider returned status %d", code)
	}

	var parsed struct {
		Status        int    `json:"status"`
		StatusMessage string `json:"status_message"`
		MessageToken  int64  `json:"message_token"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", newSendError(KindSendFailed, resp.StatusCode(), "unparseable rich message provider response")
	}

	switch parsed.Status {
	case viberStatusOK:
		return fmt.Sprintf("%d", parsed.MessageToken), nil
	case viberStatusInvalidToken:
		return "", newSendError(KindConfiguration, resp.StatusCode(), "rich message provider rejected the auth token")
	case viberStatusReceiverInvalid:
		return "", newSendError(KindInvalidRecipient, resp.StatusCode(),
			"receiver %q is not subscribed or does not exist", recipient)
	default:
		return "", newSendError(KindSendFailed, resp.StatusCode(),
			"rich message provider error %d: %s", parsed.Status, parsed.StatusMessage)
	}
}
