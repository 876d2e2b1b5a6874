package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CallStatus is the lifecycle state of a requested outbound call.
// Values are persisted as small integers.
type CallStatus int16

const (
	CallStatusPending   CallStatus = 0
	CallStatusCompleted CallStatus = 1
	CallStatusFailed    CallStatus = 2
)

func (s CallStatus) String() string {
	switch s {
	case CallStatusPending:
		return "PENDING"
	case CallStatusCompleted:
		return "COMPLETED"
	case CallStatusFailed:
		return "FAILED"
	}
	return fmt.Sprintf("CallStatus(%d)", int16(s))
}

func (s CallStatus) IsValid() bool {
	switch s {
	case CallStatusPending, CallStatusCompleted, CallStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further dispatch may happen for the status.
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusCompleted || s == CallStatusFailed
}

// CanTransitionTo allows only Pending -> Completed and Pending -> Failed.
func (s CallStatus) CanTransitionTo(next CallStatus) bool {
	return s == CallStatusPending && next.IsTerminal()
}

// ParseCallStatusFromString accepts either the name ("pending") or the stored number ("0").
func ParseCallStatusFromString(s string) (CallStatus, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	if n, err := strconv.Atoi(normalized); err == nil {
		st := CallStatus(n)
		if !st.IsValid() {
			return 0, fmt.Errorf("%w: invalid call status %q", ErrValidation, s)
		}
		return st, nil
	}

	for _, st := range []CallStatus{CallStatusPending, CallStatusCompleted, CallStatusFailed} {
		if st.String() == normalized {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: invalid call status %q", ErrValidation, s)
}

// CallRecord is one requested outbound call.
type CallRecord struct {
	ID        int64
	CompanyID int64
	TextID    int64
	Phone     string
	Status    CallStatus
	// ScheduledDate is a calendar date stored at midnight UTC.
	ScheduledDate   time.Time
	CallTime        int
	LastAttemptDate *time.Time
	Text            *Text
	Company         *Company
	CreatedAt       *time.Time
	UpdatedAt       *time.Time
}

// IsCandidate reports whether the record may be dispatched on day.
func (c CallRecord) IsCandidate(day time.Time) bool {
	return c.Status == CallStatusPending && SameDate(c.ScheduledDate, day)
}

// AudioAsset returns the audio asset of the record's script, or "" when none is resolved yet.
func (c CallRecord) AudioAsset() string {
	if c.Text == nil {
		return ""
	}
	return c.Text.AudioAsset()
}

// RoutingID returns the company trunk, or "" to let the placer pick its default.
func (c CallRecord) RoutingID() string {
	if c.Company == nil || c.Company.TrunkName == nil {
		return ""
	}
	return strings.TrimSpace(*c.Company.TrunkName)
}

// DateOf returns the calendar date of t, as seen in t's location, at midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDate compares calendar dates, each read in its own location.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ValidPhone accepts Uzbek numbers: 998 followed by nine digits, optionally prefixed with '+'.
func ValidPhone(phone string) bool {
	p := strings.TrimPrefix(strings.TrimSpace(phone), "+")
	if len(p) != 12 || !strings.HasPrefix(p, "998") {
		return false
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
