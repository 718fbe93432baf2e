package repository

import (
	"context"
	"errors"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListParams struct {
	Recipient string
	Status    *domain.Status
	Page      int
	PageSize  int
}

type NotificationRepository interface {
	CreateIfAbsent(ctx context.Context, r *domain.NotificationRecord) error
	GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error)
	List(ctx context.Context, params ListParams) ([]domain.NotificationRecord, int64, error)
	UpdateStatusWithAttempt(ctx context.Context, id string, status domain.Status, attempt *domain.NotificationAttempt) error
	AppendAttempt(ctx context.Context, attempt *domain.NotificationAttempt) error
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

// CreateIfAbsent persists a record with ON CONFLICT DO NOTHING on the id, so
// re-dispatch of an already admitted notification (cold-queue re-submission,
// client retry) is a no-op instead of an error.
func (r *GormNotificationRepo) CreateIfAbsent(ctx context.Context, record *domain.NotificationRecord) error {
	model := notificationModelFromDomain(record)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(model).Error
	if err != nil {
		return err
	}
	if record != nil {
		*record = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	record := notificationModelToDomain(&model)

	var attempts []AttemptModel
	err = r.db.WithContext(ctx).
		Where("notification_id = ?", id).
		Order("created_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	for i := range attempts {
		record.Attempts = append(record.Attempts, *attemptModelToDomain(&attempts[i]))
	}

	return record, nil
}

func (r *GormNotificationRepo) List(ctx context.Context, params ListParams) ([]domain.NotificationRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&NotificationModel{})

	if params.Recipient != "" {
		query = query.Where("recipient = ?", params.Recipient)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []NotificationModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]domain.NotificationRecord, 0, len(models))
	for i := range models {
		records = append(records, *notificationModelToDomain(&models[i]))
	}

	return records, total, nil
}

// UpdateStatusWithAttempt sets the record status and appends an attempt in
// one short transaction. Attempts are only ever inserted, never replaced, so
// the worker and the webhook reconciler can both write without clobbering
// each other's history.
func (r *GormNotificationRepo) UpdateStatusWithAttempt(
	ctx context.Context,
	id string,
	status domain.Status,
	attempt *domain.NotificationAttempt,
) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&NotificationModel{}).
			Where("id = ?", id).
			Update("status", status)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}

		if attempt == nil {
			return nil
		}
		return tx.Create(attemptModelFromDomain(attempt)).Error
	})
}

// AppendAttempt inserts an attempt without touching the record's status.
// Informational provider events (opens, clicks, deferrals) land here so they
// never race a concurrent status transition.
func (r *GormNotificationRepo) AppendAttempt(ctx context.Context, attempt *domain.NotificationAttempt) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&NotificationModel{}).
			Where("id = ?", attempt.NotificationID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return tx.Create(attemptModelFromDomain(attempt)).Error
	})
}
