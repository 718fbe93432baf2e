package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"gorm.io/gorm"
)

type TemplateRepository interface {
	Create(ctx context.Context, t *domain.TemplateRecord) error
	GetByID(ctx context.Context, id string) (*domain.TemplateRecord, error)
	FindByNameAndLocale(ctx context.Context, name, locale string) (*domain.TemplateRecord, error)
	List(ctx context.Context) ([]domain.TemplateRecord, error)
	Update(ctx context.Context, t *domain.TemplateRecord) error
	Delete(ctx context.Context, id string) (*domain.TemplateRecord, error)
}

type GormTemplateRepo struct {
	db *gorm.DB
}

func NewGormTemplateRepo(db *gorm.DB) *GormTemplateRepo {
	return &GormTemplateRepo{db: db}
}

func (r *GormTemplateRepo) Create(ctx context.Context, t *domain.TemplateRecord) error {
	model := templateModelFromDomain(t)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	if t != nil {
		*t = *templateModelToDomain(model)
	}
	return nil
}

func (r *GormTemplateRepo) GetByID(ctx context.Context, id string) (*domain.TemplateRecord, error) {
	var model TemplateModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return templateModelToDomain(&model), nil
}

func (r *GormTemplateRepo) FindByNameAndLocale(ctx context.Context, name, locale string) (*domain.TemplateRecord, error) {
	var model TemplateModel
	err := r.db.WithContext(ctx).
		Where("template_name = ? AND locale = ?", name, locale).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return templateModelToDomain(&model), nil
}

func (r *GormTemplateRepo) List(ctx context.Context) ([]domain.TemplateRecord, error) {
	var models []TemplateModel
	err := r.db.WithContext(ctx).
		Order("template_name ASC, locale ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	templates := make([]domain.TemplateRecord, 0, len(models))
	for i := range models {
		templates = append(templates, *templateModelToDomain(&models[i]))
	}
	return templates, nil
}

func (r *GormTemplateRepo) Update(ctx context.Context, t *domain.TemplateRecord) error {
	result := r.db.WithContext(ctx).
		Model(&TemplateModel{}).
		Where("id = ?", t.ID).
		Updates(map[string]any{
			"content": t.Content,
			"active":  t.Active,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the record and returns it, so callers can invalidate the
// cache entries keyed by its (name, locale).
func (r *GormTemplateRepo) Delete(ctx context.Context, id string) (*domain.TemplateRecord, error) {
	deleted, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Delete(&TemplateModel{}, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return deleted, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
