package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// The scheduler reads pending calls for one day in id order; the partial index keeps that
// lookup bounded by the day's backlog instead of the whole table.
func addPhoneCallsPendingIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_add_phone_calls_pending_index",
		Migrate: func(tx *gorm.DB) error {
			statements := []string{
				`CREATE INDEX IF NOT EXISTS idx_phone_calls_status_date ON phone_calls (status, date, id)`,
				`CREATE INDEX IF NOT EXISTS idx_phone_calls_pending_due ON phone_calls (date, id) WHERE status = 0`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			statements := []string{
				`DROP INDEX IF EXISTS idx_phone_calls_pending_due`,
				`DROP INDEX IF EXISTS idx_phone_calls_status_date`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}
