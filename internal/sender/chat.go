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

const (
	telegramBaseURL = "https://api.telegram.org"

	maxChatTextLength    = 4096
	maxChatCaptionLength = 1024
)

// ChatSender delivers messages through the Telegram Bot API. The recipient is
// a chat id. When metadata carries a media_url the content is sent as the
// photo caption instead of a plain message.
type ChatSender struct {
	client   *resty.Client
	botToken string
}

func NewChatSender(botToken string) *ChatSender {
	client := resty.New().
		SetBaseURL(telegramBaseURL).
		SetTimeout(15 * time.Second)

	return &ChatSender{client: client, botToken: botToken}
}

func (s *ChatSender) Channel() domain.Channel { return domain.ChannelChat }

func (s *ChatSender) Send(ctx context.Context, recipient, content, locale string, metadata Metadata) (string, error) {
	if strings.TrimSpace(s.botToken) == "" {
		return "", newSendError(KindConfiguration, 0, "chat bot token is not configured")
	}
	if strings.TrimSpace(recipient) == "" {
		return "", newSendError(KindInvalidRecipient, 0, "chat id is required")
	}

	method := "sendMessage"
	body := map[string]any{
		"chat_id": recipient,
		"text":    content,
	}

	if mediaURL := metadata["media_url"]; mediaURL != "" {
		if len(content) > maxChatCaptionLength {
			return "", newSendError(KindInvalidRequest, 0,
				"caption exceeds %d characters", maxChatCaptionLength)
		}
		method = "sendPhoto"
		body = map[string]any{
			"chat_id": recipient,
			"photo":   mediaURL,
			"caption": content,
		}
	} else if len(content) > maxChatTextLength {
		return "", newSendError(KindInvalidRequest, 0,
			"message exceeds %d characters", maxChatTextLength)
	}

	if parseMode := metadata["parse_mode"]; parseMode != "" {
		body["parse_mode"] = parseMode
	}
	if metadata["disable_notification"] == "true" {
		body["disable_notification"] = true
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(fmt.Sprintf("/bot%s/%s", s.botToken, method))
	if err != nil {
		return "", &SendError{
			Kind:    KindSendFailed,
			Message: "chat provider request failed",
			Cause:   err,
		}
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusOK:
		var parsed struct {
			OK     bool `json:"ok"`
			Result struct {
				MessageID int64 `json:"message_id"`
			} `json:"result"`
		}
		if err := json.Unmarshal(resp.Body(), &parsed); err != nil || !parsed.OK {
			return "", newSendError(KindSendFailed, code, "unparseable chat provider response")
		}
		return fmt.Sprintf("%d", parsed.Result.MessageID), nil
	case code == http.StatusUnauthorized:
		return "", newSendError(KindConfiguration, code, "chat provider rejected the bot token")
	case code == http.StatusForbidden:
		return "", newSendError(KindInvalidRecipient, code, "bot is blocked by or cannot reach chat %q", recipient)
	case code == http.StatusBadRequest:
		return "", newSendError(KindInvalidRequest, code, "chat provider rejected the request: %s", resp.String())
	case code == http.StatusTooManyRequests:
		return "", newSendError(KindProviderRateLimited, code, "chat provider rate limit exceeded")
	default:
		return "", newSendError(KindSendFailed, code, "chat provider returned status %d", code)
	}
}
