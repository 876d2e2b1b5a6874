package repository

import (
	"context"

	"github.com/ruslaninoyatov1/calling/internal/domain"
	"gorm.io/gorm"
)

type CallLogRepository interface {
	Create(ctx context.Context, l *domain.CallLog) error
	GetByCallID(ctx context.Context, callID int64) ([]domain.CallLog, error)
}

type GormCallLogRepo struct {
	db *gorm.DB
}

func NewGormCallLogRepo(db *gorm.DB) *GormCallLogRepo {
	return &GormCallLogRepo{db: db}
}

func (r *GormCallLogRepo) Create(ctx context.Context, l *domain.CallLog) error {
	model := callLogModelFromDomain(l)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if l != nil {
		*l = *callLogModelToDomain(model)
	}
	return nil
}

func (r *GormCallLogRepo) GetByCallID(ctx context.Context, callID int64) ([]domain.CallLog, error) {
	var models []CallLogModel
	err := r.db.WithContext(ctx).
		Where("phone_call_id = ?", callID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.CallLog, 0, len(models))
	for i := range models {
		logs = append(logs, *callLogModelToDomain(&models[i]))
	}

	return logs, nil
}
