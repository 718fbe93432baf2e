package migrations

import (
	"github.com/dispatchlab/notify-gateway/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_notifications",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.NotificationModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.NotificationModel{})
			},
		},
		{
			ID: "000002_create_notification_attempts",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.AttemptModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.AttemptModel{})
			},
		},
		{
			ID: "000003_create_templates",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.TemplateModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.TemplateModel{})
			},
		},
	})

	return m.Migrate()
}
