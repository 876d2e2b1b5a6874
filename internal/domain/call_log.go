package domain

import "time"

// LogLevel is the severity stored with a call log entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

func (l LogLevel) String() string { return string(l) }

// CallLog records a single dispatch attempt for a call.
type CallLog struct {
	ID          int64
	PhoneCallID int64
	Message     string
	Level       LogLevel
	CreatedAt   time.Time
}
