package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/ruslaninoyatov1/calling/internal/repository"
	"gorm.io/gorm"
)

// All returns every schema migration in apply order.
func All() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "000001_create_call_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&repository.CompanyModel{},
					&repository.TextModel{},
					&repository.PhoneCallModel{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					&repository.PhoneCallModel{},
					&repository.TextModel{},
					&repository.CompanyModel{},
				)
			},
		},
		createCallLogsTable(),
		addPhoneCallsPendingIndex(),
	}
}

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, All())
	return m.Migrate()
}
