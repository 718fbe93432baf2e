package repository

import (
	"time"

	"github.com/dispatchlab/notify-gateway/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	Recipient    string         `gorm:"type:varchar(255);not null;index:idx_notifications_recipient"`
	Channel      domain.Channel `gorm:"type:varchar(16);not null"`
	TemplateName string         `gorm:"type:varchar(255)"`
	Status       domain.Status  `gorm:"type:varchar(16);not null;index:idx_notifications_status"`
	Payload      domain.Payload `gorm:"type:jsonb;serializer:json"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// AttemptModel is the persistence model for notification_attempts.
type AttemptModel struct {
	ID                string        `gorm:"type:uuid;primaryKey"`
	NotificationID    string        `gorm:"type:uuid;not null;index:idx_attempts_notification_id"`
	Status            domain.Status `gorm:"type:varchar(16);not null"`
	Error             string        `gorm:"type:varchar(1024)"`
	ProviderMessageID string        `gorm:"type:varchar(255)"`
	CreatedAt         time.Time
}

func (AttemptModel) TableName() string {
	return "notification_attempts"
}

// TemplateModel is the persistence model for templates.
type TemplateModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	TemplateName string `gorm:"type:varchar(255);not null;uniqueIndex:idx_templates_name_locale"`
	Locale       string `gorm:"type:varchar(16);not null;uniqueIndex:idx_templates_name_locale"`
	Content      string `gorm:"type:text;not null"`
	Active       bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (TemplateModel) TableName() string {
	return "templates"
}

func notificationModelFromDomain(r *domain.NotificationRecord) *NotificationModel {
	if r == nil {
		return nil
	}

	return &NotificationModel{
		ID:           r.ID,
		Recipient:    r.Recipient,
		Channel:      r.Channel,
		TemplateName: r.TemplateName,
		Status:       r.Status,
		Payload:      r.Payload,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.NotificationRecord {
	if m == nil {
		return nil
	}

	return &domain.NotificationRecord{
		ID:           m.ID,
		Recipient:    m.Recipient,
		Channel:      m.Channel,
		TemplateName: m.TemplateName,
		Status:       m.Status,
		Payload:      m.Payload,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.NotificationAttempt) *AttemptModel {
	if a == nil {
		return nil
	}

	return &AttemptModel{
		ID:                a.ID,
		NotificationID:    a.NotificationID,
		Status:            a.Status,
		Error:             a.Error,
		ProviderMessageID: a.ProviderMessageID,
		CreatedAt:         a.CreatedAt,
	}
}

func attemptModelToDomain(m *AttemptModel) *domain.NotificationAttempt {
	if m == nil {
		return nil
	}

	return &domain.NotificationAttempt{
		ID:                m.ID,
		NotificationID:    m.NotificationID,
		Status:            m.Status,
		Error:             m.Error,
		ProviderMessageID: m.ProviderMessageID,
		CreatedAt:         m.CreatedAt,
	}
}

func templateModelFromDomain(t *domain.TemplateRecord) *TemplateModel {
	if t == nil {
		return nil
	}

	return &TemplateModel{
		ID:           t.ID,
		TemplateName: t.TemplateName,
		Locale:       t.Locale,
		Content:      t.Content,
		Active:       t.Active,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func templateModelToDomain(m *TemplateModel) *domain.TemplateRecord {
	if m == nil {
		return nil
	}

	return &domain.TemplateRecord{
		ID:           m.ID,
		TemplateName: m.TemplateName,
		Locale:       m.Locale,
		Content:      m.Content,
		Active:       m.Active,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
