package telephony

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Placement failure reasons. They double as metric labels.
const (
	ReasonAudioMissing    = "audio_missing"
	ReasonSpoolUnwritable = "spool_unwritable"
	ReasonTokenCollision  = "token_collision"
	ReasonRejected        = "rejected"
	ReasonTransport       = "transport"
	ReasonTimeout         = "timeout"
	ReasonCanceled        = "canceled"
	ReasonUnexpected      = "unexpected"
)

// PlacementError classifies why the engine did not accept a call.
type PlacementError struct {
	Reason     string
	StatusCode int
	Message    string
	Cause      error
}

func (e *PlacementError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "placement failed", e.Reason)

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *PlacementError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ReasonOf maps any placement error to a reason label.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}

	var placementErr *PlacementError
	if errors.As(err, &placementErr) && placementErr.Reason != "" {
		return placementErr.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}

	return ReasonUnexpected
}
