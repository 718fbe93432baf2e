// Package handler contains the Fiber HTTP handlers for the gateway API.
package handler

import (
	"context"
	"time"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"github.com/dispatchlab/notify-gateway/internal/repository"
	"github.com/gofiber/fiber/v2"
)

// Dispatcher is the admission entry point used by the HTTP layer.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *domain.Notification) (duplicate bool, err error)
}

// NotificationReader serves the read endpoints.
type NotificationReader interface {
	GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.NotificationRecord, int64, error)
}

type NotificationHandler struct {
	dispatcher Dispatcher
	reader     NotificationReader
}

func NewNotificationHandler(dispatcher Dispatcher, reader NotificationReader) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher, reader: reader}
}

type createNotificationRequest struct {
	Recipient    string            `json:"recipient"`
	Channel      string            `json:"channel"`
	TemplateName string            `json:"templateName"`
	Locale       string            `json:"locale"`
	Data         map[string]string `json:"data"`
	Message      string            `json:"message"`
}

type notificationAcceptedResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Recipient string `json:"recipient"`
	Channel   string `json:"channel"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

type attemptResponse struct {
	Status            string `json:"status"`
	Error             string `json:"error,omitempty"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
	CreatedAt         string `json:"createdAt"`
}

type notificationResponse struct {
	ID           string            `json:"id"`
	Recipient    string            `json:"recipient"`
	Channel      string            `json:"channel"`
	TemplateName string            `json:"templateName,omitempty"`
	Status       string            `json:"status"`
	Attempts     []attemptResponse `json:"attempts,omitempty"`
	CreatedAt    string            `json:"createdAt"`
	UpdatedAt    string            `json:"updatedAt"`
}

type listNotificationsResponse struct {
	Items    []notificationResponse `json:"items"`
	Total    int64                  `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"pageSize"`
}

// Create accepts one notification for asynchronous delivery. Acceptance is
// acknowledged with 202; the actual outcome shows up on the record later.
func (h *NotificationHandler) Create(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	channel, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return err
	}

	n := &domain.Notification{
		Recipient:    req.Recipient,
		Channel:      channel,
		TemplateName: req.TemplateName,
		Locale:       req.Locale,
		Data:         req.Data,
		Message:      req.Message,
	}

	duplicate, err := h.dispatcher.Dispatch(c.UserContext(), n)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(notificationAcceptedResponse{
		ID:        n.ID,
		Status:    domain.StatusQueued.String(),
		Recipient: n.Recipient,
		Channel:   n.Channel.String(),
		Duplicate: duplicate,
	})
}

func (h *NotificationHandler) Get(c *fiber.Ctx) error {
	record, err := h.reader.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toNotificationResponse(record))
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	params := repository.ListParams{
		Recipient: c.Query("recipient"),
		Page:      c.QueryInt("page", 1),
		PageSize:  c.QueryInt("pageSize", 50),
	}
	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseStatusFromString(raw)
		if err != nil {
			return err
		}
		params.Status = &status
	}

	records, total, err := h.reader.List(c.UserContext(), params)
	if err != nil {
		return err
	}

	items := make([]notificationResponse, 0, len(records))
	for i := range records {
		items = append(items, toNotificationResponse(&records[i]))
	}

	return c.JSON(listNotificationsResponse{
		Items:    items,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

// Channels lists the supported delivery channels.
func (h *NotificationHandler) Channels(c *fiber.Ctx) error {
	channels := domain.Channels()
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.String())
	}
	return c.JSON(fiber.Map{"channels": names})
}

func toNotificationResponse(record *domain.NotificationRecord) notificationResponse {
	resp := notificationResponse{
		ID:           record.ID,
		Recipient:    record.Recipient,
		Channel:      record.Channel.String(),
		TemplateName: record.TemplateName,
		Status:       record.Status.String(),
		CreatedAt:    record.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    record.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for _, attempt := range record.Attempts {
		resp.Attempts = append(resp.Attempts, attemptResponse{
			Status:            attempt.Status.String(),
			Error:             attempt.Error,
			ProviderMessageID: attempt.ProviderMessageID,
			CreatedAt:         attempt.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return resp
}
