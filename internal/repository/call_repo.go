package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ruslaninoyatov1/calling/internal/domain"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type CallRepository interface {
	// ListPending returns up to limit pending calls scheduled on day with id > afterID, ordered by id.
	ListPending(ctx context.Context, day time.Time, afterID int64, limit int) ([]domain.CallRecord, error)
	GetByID(ctx context.Context, id int64) (*domain.CallRecord, error)
	// MarkOutcome moves a pending call to the outcome status. It reports false when the call
	// was no longer pending.
	MarkOutcome(ctx context.Context, id int64, outcome domain.Outcome) (bool, error)
}

type GormCallRepo struct {
	db *gorm.DB
}

func NewGormCallRepo(db *gorm.DB) *GormCallRepo {
	return &GormCallRepo{db: db}
}

func (r *GormCallRepo) ListPending(ctx context.Context, day time.Time, afterID int64, limit int) ([]domain.CallRecord, error) {
	var models []PhoneCallModel
	err := pendingQuery(r.db.WithContext(ctx), day, afterID, limit).
		Preload("Text").
		Preload("Company").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	calls := make([]domain.CallRecord, 0, len(models))
	for i := range models {
		calls = append(calls, *phoneCallModelToDomain(&models[i]))
	}

	return calls, nil
}

// pendingQuery is the keyset scan over one day's pending calls; it is served by the
// partial index on (date, id) WHERE status = 0.
func pendingQuery(db *gorm.DB, day time.Time, afterID int64, limit int) *gorm.DB {
	return db.Model(&PhoneCallModel{}).
		Where("status = ? AND date = ? AND id > ?", int16(domain.CallStatusPending), day.Format(dateLayout), afterID).
		Order("id ASC").
		Limit(limit)
}

func (r *GormCallRepo) GetByID(ctx context.Context, id int64) (*domain.CallRecord, error) {
	var model PhoneCallModel
	err := r.db.WithContext(ctx).
		Preload("Text").
		Preload("Company").
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return phoneCallModelToDomain(&model), nil
}

func (r *GormCallRepo) MarkOutcome(ctx context.Context, id int64, outcome domain.Outcome) (bool, error) {
	if !domain.CallStatusPending.CanTransitionTo(outcome.Status) {
		return false, fmt.Errorf("%w: cannot move call to %s", domain.ErrValidation, outcome.Status)
	}

	updates := map[string]any{
		"status":     int16(outcome.Status),
		"updated_at": time.Now().UTC(),
	}
	if outcome.AttemptDate != nil {
		updates["last_date"] = outcome.AttemptDate.Format(dateLayout)
	}

	result := r.db.WithContext(ctx).
		Model(&PhoneCallModel{}).
		Where("id = ? AND status = ?", id, int16(domain.CallStatusPending)).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
