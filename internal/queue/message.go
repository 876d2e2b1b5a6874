package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/ruslaninoyatov1/calling/internal/domain"
)

// OutcomeEvent is the broker payload announcing a terminal call outcome.
type OutcomeEvent struct {
	EventID     string    `json:"eventId"`
	PassID      string    `json:"passId,omitempty"`
	CallID      int64     `json:"callId"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	Token       string    `json:"token,omitempty"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

// NewOutcomeEvent builds the event for an outcome committed on callID.
func NewOutcomeEvent(eventID, passID string, callID int64, outcome domain.Outcome, attemptedAt time.Time) OutcomeEvent {
	return OutcomeEvent{
		EventID:     eventID,
		PassID:      passID,
		CallID:      callID,
		Status:      outcome.Status.String(),
		Reason:      outcome.Reason,
		Token:       outcome.Token,
		AttemptedAt: attemptedAt.UTC(),
	}
}

func (e OutcomeEvent) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return fmt.Errorf("eventId is required")
	}
	if e.CallID <= 0 {
		return fmt.Errorf("callId must be positive")
	}
	status, err := domain.ParseCallStatusFromString(e.Status)
	if err != nil {
		return err
	}
	if !status.IsTerminal() {
		return fmt.Errorf("status %q is not terminal", e.Status)
	}
	if e.AttemptedAt.IsZero() {
		return fmt.Errorf("attemptedAt is required")
	}
	return nil
}
