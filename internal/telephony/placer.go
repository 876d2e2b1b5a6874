package telephony

import (
	"context"
	"fmt"
	"strings"
)

// Placer hands a call to the telephony engine. A nil error means the engine accepted the
// request for later dialing; it says nothing about whether the callee answered.
type Placer interface {
	Place(ctx context.Context, req CallRequest) (*Placement, error)
}

// CallRequest is what the engine needs to dial one number and play one audio asset.
type CallRequest struct {
	Phone      string
	AudioAsset string
	// RoutingID names the outbound trunk; empty selects the placer's default.
	RoutingID string
}

// Placement identifies an accepted request.
type Placement struct {
	// Token is unique per attempt.
	Token string
	// Location is where the request was handed over: a call file path or an ARI channel id.
	Location string
}

func (r CallRequest) validate() error {
	phone := strings.TrimSpace(r.Phone)
	if phone == "" {
		return &PlacementError{Reason: ReasonRejected, Message: "phone number is required"}
	}
	for i, c := range phone {
		if (c < '0' || c > '9') && !(c == '+' && i == 0) {
			return &PlacementError{Reason: ReasonRejected, Message: fmt.Sprintf("phone number %q contains invalid characters", r.Phone)}
		}
	}

	audio := strings.TrimSpace(r.AudioAsset)
	if audio == "" {
		return &PlacementError{Reason: ReasonAudioMissing, Message: "audio asset is required"}
	}
	if strings.ContainsAny(audio, `/\`) || strings.Contains(audio, "..") {
		return &PlacementError{Reason: ReasonRejected, Message: fmt.Sprintf("audio asset %q is not a plain name", r.AudioAsset)}
	}
	return nil
}

func routing(req CallRequest, fallback string) string {
	if trunk := strings.TrimSpace(req.RoutingID); trunk != "" {
		return trunk
	}
	return fallback
}
