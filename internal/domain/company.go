package domain

import (
	"strings"
	"time"
)

// Company owns scripts and call requests. TrunkName selects its outbound line.
type Company struct {
	ID        int64
	Name      string
	Link      string
	Login     string
	TrunkName *string
	CreatedAt *time.Time
	UpdatedAt *time.Time
}

// Text is a company script. AudioFilename stays nil until synthesis finishes.
type Text struct {
	ID            int64
	CompanyID     int64
	Body          string
	AudioFilename *string
	CreatedAt     *time.Time
	UpdatedAt     *time.Time
}

func (t Text) AudioAsset() string {
	if t.AudioFilename == nil {
		return ""
	}
	return strings.TrimSpace(*t.AudioFilename)
}
