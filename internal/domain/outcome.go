package domain

import "time"

// ReasonNoAudioAsset marks calls whose script has no synthesized audio yet.
const ReasonNoAudioAsset = "no_audio_asset"

// Outcome is the result of one dispatch attempt. It is always terminal.
type Outcome struct {
	Status CallStatus
	Reason string
	Detail string
	Token  string
	// AttemptDate is set for completed calls only.
	AttemptDate *time.Time
}

// Completed builds a successful outcome attempted on day.
func Completed(token string, day time.Time) Outcome {
	date := DateOf(day)
	return Outcome{
		Status:      CallStatusCompleted,
		Token:       token,
		AttemptDate: &date,
	}
}

// Failed builds a failed outcome. The last attempt date is left untouched.
func Failed(reason, detail string) Outcome {
	return Outcome{
		Status: CallStatusFailed,
		Reason: reason,
		Detail: detail,
	}
}

func (o Outcome) Succeeded() bool {
	return o.Status == CallStatusCompleted
}
