package domain

import "time"

// PassResult classifies how a scheduler pass ended.
type PassResult string

const (
	// PassGated means the call window was closed and the store was not read.
	PassGated     PassResult = "gated"
	PassCompleted PassResult = "completed"
	PassFailed    PassResult = "failed"
)

func (r PassResult) String() string { return string(r) }

// PassSummary describes one scheduler pass.
type PassSummary struct {
	PassID     string
	Result     PassResult
	StartedAt  time.Time
	Duration   time.Duration
	Day        time.Time
	Candidates int
	Completed  int
	Failed     int
	// Uncommitted counts outcomes that could not be written back; those calls stay pending.
	Uncommitted    int
	NextEligibleAt time.Time
	Error          string
}
