package handler

import (
	"context"
	"strings"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"github.com/dispatchlab/notify-gateway/internal/repository"
	"github.com/dispatchlab/notify-gateway/internal/template"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CacheInvalidator drops cached renders of a (template, locale) pair.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, name, locale string)
}

// TemplateHandler exposes CRUD for database template overrides. Every write
// invalidates the render cache so the change takes effect immediately.
type TemplateHandler struct {
	templates repository.TemplateRepository
	cache     CacheInvalidator
	logger    *zap.Logger
}

func NewTemplateHandler(templates repository.TemplateRepository, cache CacheInvalidator, logger *zap.Logger) *TemplateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateHandler{templates: templates, cache: cache, logger: logger}
}

type createTemplateRequest struct {
	TemplateName string `json:"templateName"`
	Locale       string `json:"locale"`
	Content      string `json:"content"`
	Active       *bool  `json:"active"`
}

type updateTemplateRequest struct {
	Content string `json:"content"`
	Active  *bool  `json:"active"`
}

type templateResponse struct {
	ID           string `json:"id"`
	TemplateName string `json:"templateName"`
	Locale       string `json:"locale"`
	Content      string `json:"content"`
	Active       bool   `json:"active"`
}

func (h *TemplateHandler) Create(c *fiber.Ctx) error {
	var req createTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	record := &domain.TemplateRecord{
		ID:           uuid.NewString(),
		TemplateName: strings.TrimSpace(req.TemplateName),
		Locale:       strings.TrimSpace(req.Locale),
		Content:      req.Content,
		Active:       active,
	}
	if err := record.Validate(); err != nil {
		return err
	}
	if err := template.ValidateSyntax(record.TemplateName, record.Content); err != nil {
		return err
	}

	if err := h.templates.Create(c.UserContext(), record); err != nil {
		return err
	}

	h.cache.Invalidate(c.UserContext(), record.TemplateName, record.Locale)
	return c.Status(fiber.StatusCreated).JSON(toTemplateResponse(record))
}

func (h *TemplateHandler) Get(c *fiber.Ctx) error {
	record, err := h.templates.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toTemplateResponse(record))
}

func (h *TemplateHandler) List(c *fiber.Ctx) error {
	records, err := h.templates.List(c.UserContext())
	if err != nil {
		return err
	}

	items := make([]templateResponse, 0, len(records))
	for i := range records {
		items = append(items, toTemplateResponse(&records[i]))
	}
	return c.JSON(fiber.Map{"items": items})
}

func (h *TemplateHandler) Update(c *fiber.Ctx) error {
	var req updateTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	record, err := h.templates.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}

	if req.Content != "" {
		if err := template.ValidateSyntax(record.TemplateName, req.Content); err != nil {
			return err
		}
		record.Content = req.Content
	}
	if req.Active != nil {
		record.Active = *req.Active
	}

	if err := h.templates.Update(c.UserContext(), record); err != nil {
		return err
	}

	h.cache.Invalidate(c.UserContext(), record.TemplateName, record.Locale)
	return c.JSON(toTemplateResponse(record))
}

func (h *TemplateHandler) Delete(c *fiber.Ctx) error {
	deleted, err := h.templates.Delete(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}

	h.cache.Invalidate(c.UserContext(), deleted.TemplateName, deleted.Locale)
	return c.SendStatus(fiber.StatusNoContent)
}

func toTemplateResponse(record *domain.TemplateRecord) templateResponse {
	return templateResponse{
		ID:           record.ID,
		TemplateName: record.TemplateName,
		Locale:       record.Locale,
		Content:      record.Content,
		Active:       record.Active,
	}
}
