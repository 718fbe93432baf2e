package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"github.com/go-resty/resty/v2"
)

const twilioBaseURL = "https://api.twilio.com"

// E.164 with a little slack for numbers submitted without the plus sign.
var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{7,14}$`)

// SMSSender delivers plain-text messages through the Twilio Messages API.
type SMSSender struct {
	client     *resty.Client
	accountSID string
	authToken  string
	from       string
}

func NewSMSSender(accountSID, authToken, from string) *SMSSender {
	client := resty.New().
		SetBaseURL(twilioBaseURL).
		SetTimeout(15 * time.Second)

	return &SMSSender{
		client:     client,
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
	}
}

func (s *SMSSender) Channel() domain.Channel { return domain.ChannelSMS }

func (s *SMSSender) Send(ctx context.Context, recipient, content, locale string, metadata Metadata) (string, error) {
	if strings.TrimSpace(s.accountSID) == "" || strings.TrimSpace(s.authToken) == "" {
		return "", newSendError(KindConfiguration, 0, "sms provider credentials are not configured")
	}
	if strings.TrimSpace(s.from) == "" {
		return "", newSendError(KindConfiguration, 0, "sms sender number is not configured")
	}
	if !phonePattern.MatchString(recipient) {
		return "", newSendError(KindInvalidRecipient, 0, "invalid phone number %q", recipient)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBasicAuth(s.accountSID, s.authToken).
		SetFormData(map[string]string{
			"To":   recipient,
			"From": s.from,
			"Body": content,
		}).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", s.accountSID))
	if err != nil {
		return "", &SendError{
			Kind:    KindSendFailed,
			Message: "sms provider request failed",
			Cause:   err,
		}
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusCreated:
		var body struct {
			SID string `json:"sid"`
		}
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return "", newSendError(KindSendFailed, code, "unparseable sms provider response")
		}
		return body.SID, nil
	case code == http.StatusBadRequest:
		return "", newSendError(KindInvalidRequest, code, "sms provider rejected the request: %s", resp.String())
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return "", newSendError(KindConfiguration, code, "sms provider rejected the credentials")
	case code == http.StatusTooManyRequests:
		return "", newSendError(KindProviderRateLimited, code, "sms provider rate limit exceeded")
	default:
		return "", newSendError(KindSendFailed, code, "sms provider returned status %d", code)
	}
}
