package repository

import (
	"time"

	"github.com/ruslaninoyatov1/calling/internal/domain"
)

// CompanyModel is the persistence model for the companies table.
type CompanyModel struct {
	ID        int64   `gorm:"primaryKey;autoIncrement"`
	Name      string  `gorm:"type:varchar(255);not null"`
	Link      string  `gorm:"type:varchar(255);not null"`
	Login     string  `gorm:"type:varchar(255);not null"`
	Password  string  `gorm:"type:varchar(255);not null"`
	Token     string  `gorm:"type:varchar(255);not null"`
	TrunkName *string `gorm:"type:varchar(255)"`
	CreatedAt *time.Time
	UpdatedAt *time.Time
}

func (CompanyModel) TableName() string {
	return "companies"
}

// TextModel is the persistence model for the texts table.
type TextModel struct {
	ID            int64         `gorm:"primaryKey;autoIncrement"`
	CompanyID     int64         `gorm:"not null"`
	Company       *CompanyModel `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE"`
	Text          string        `gorm:"type:varchar(255);not null"`
	Link          *string       `gorm:"type:varchar(255)"`
	AudioFilename *string       `gorm:"type:varchar(255)"`
	CreatedAt     *time.Time
	UpdatedAt     *time.Time
}

func (TextModel) TableName() string {
	return "texts"
}

// PhoneCallModel is the persistence model for the phone_calls table.
type PhoneCallModel struct {
	ID        int64             `gorm:"primaryKey;autoIncrement"`
	CompanyID int64             `gorm:"not null"`
	Company   *CompanyModel     `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE"`
	TextID    int64             `gorm:"not null"`
	Text      *TextModel        `gorm:"foreignKey:TextID;constraint:OnDelete:CASCADE"`
	Phone     string            `gorm:"type:varchar(255);not null"`
	Status    domain.CallStatus `gorm:"type:smallint;not null;default:0"`
	Date      time.Time         `gorm:"type:date;not null"`
	CallTime  int               `gorm:"type:smallint;not null;default:0"`
	LastDate  *time.Time        `gorm:"type:date"`
	CreatedAt *time.Time
	UpdatedAt *time.Time
}

func (PhoneCallModel) TableName() string {
	return "phone_calls"
}

// CallLogModel is the persistence model for call_logs.
type CallLogModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	PhoneCallID int64  `gorm:"not null"`
	Message     string `gorm:"type:text;not null"`
	Level       string `gorm:"type:varchar(50);not null"`
	CreatedAt   time.Time
}

func (CallLogModel) TableName() string {
	return "call_logs"
}

func companyModelToDomain(m *CompanyModel) *domain.Company {
	if m == nil {
		return nil
	}

	return &domain.Company{
		ID:        m.ID,
		Name:      m.Name,
		Link:      m.Link,
		Login:     m.Login,
		TrunkName: m.TrunkName,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func textModelToDomain(m *TextModel) *domain.Text {
	if m == nil {
		return nil
	}

	return &domain.Text{
		ID:            m.ID,
		CompanyID:     m.CompanyID,
		Body:          m.Text,
		AudioFilename: m.AudioFilename,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func phoneCallModelToDomain(m *PhoneCallModel) *domain.CallRecord {
	if m == nil {
		return nil
	}

	return &domain.CallRecord{
		ID:              m.ID,
		CompanyID:       m.CompanyID,
		TextID:          m.TextID,
		Phone:           m.Phone,
		Status:          m.Status,
		ScheduledDate:   domain.DateOf(m.Date),
		CallTime:        m.CallTime,
		LastAttemptDate: m.LastDate,
		Text:            textModelToDomain(m.Text),
		Company:         companyModelToDomain(m.Company),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func callLogModelFromDomain(l *domain.CallLog) *CallLogModel {
	if l == nil {
		return nil
	}

	return &CallLogModel{
		ID:          l.ID,
		PhoneCallID: l.PhoneCallID,
		Message:     l.Message,
		Level:       l.Level.String(),
		CreatedAt:   l.CreatedAt,
	}
}

func callLogModelToDomain(m *CallLogModel) *domain.CallLog {
	if m == nil {
		return nil
	}

	return &domain.CallLog{
		ID:          m.ID,
		PhoneCallID: m.PhoneCallID,
		Message:     m.Message,
		Level:       domain.LogLevel(m.Level),
		CreatedAt:   m.CreatedAt,
	}
}
