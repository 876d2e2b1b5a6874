package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/ruslaninoyatov1/calling/internal/repository"
	"gorm.io/gorm"
)

func createCallLogsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_call_logs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CallLogModel{}); err != nil {
				return err
			}
			statements := []string{
				`CREATE INDEX IF NOT EXISTS idx_call_logs_phone_call_id ON call_logs (phone_call_id)`,
				`ALTER TABLE call_logs DROP CONSTRAINT IF EXISTS fk_call_logs_phone_call`,
				`ALTER TABLE call_logs ADD CONSTRAINT fk_call_logs_phone_call FOREIGN KEY (phone_call_id) REFERENCES phone_calls (id) ON DELETE CASCADE`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CallLogModel{})
		},
	}
}
