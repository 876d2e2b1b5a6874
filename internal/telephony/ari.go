package telephony

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	defaultARITimeout   = 10 * time.Second
	ariOriginateWaitSec = 30
)

type ARIConfig struct {
	// BaseURL points at the ARI root, e.g. http://asterisk:8088/ari.
	BaseURL      string
	User         string
	Password     string
	// App hands answered channels to this Stasis application. When empty the channel
	// enters the dialplan at Context/extension/priority 1, which plays AUDIOFILE.
	App          string
	DefaultTrunk string
	Context      string
	CallerIDName string
	StaticNumber string
}

type ariOriginateBody struct {
	Variables map[string]string `json:"variables"`
}

type ariChannel struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// ARIPlacer originates calls through the Asterisk REST Interface.
type ARIPlacer struct {
	client   *resty.Client
	cfg      ARIConfig
	newToken func() string
}

func NewARIPlacer(cfg ARIConfig) (*ARIPlacer, error) {
	client := resty.New()
	client.SetTimeout(defaultARITimeout)
	client.SetRetryCount(0)

	return NewARIPlacerWithClient(cfg, client)
}

func NewARIPlacerWithClient(cfg ARIConfig, client *resty.Client) (*ARIPlacer, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("ari base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid ari base url: %w", err)
	}
	if strings.TrimSpace(cfg.DefaultTrunk) == "" {
		return nil, fmt.Errorf("default trunk is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if strings.TrimSpace(cfg.Context) == "" {
		cfg.Context = "outgoing"
	}
	if strings.TrimSpace(cfg.CallerIDName) == "" {
		cfg.CallerIDName = "AutoCaller"
	}
	cfg.BaseURL = base

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultARITimeout)
	}
	client.SetRetryCount(0)
	client.SetBaseURL(base)
	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Password)
	}

	return &ARIPlacer{
		client:   client,
		cfg:      cfg,
		newToken: uuid.NewString,
	}, nil
}

func (p *ARIPlacer) Place(ctx context.Context, req CallRequest) (*Placement, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("ari placer is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	phone := strings.TrimSpace(req.Phone)
	audio := strings.TrimSpace(req.AudioAsset)

	if err := p.checkSound(ctx, audio); err != nil {
		return nil, err
	}

	extension := "s"
	if p.cfg.StaticNumber != "" && phone == p.cfg.StaticNumber {
		extension = p.cfg.StaticNumber
	}

	channelID := p.newToken()
	params := map[string]string{
		"endpoint":  fmt.Sprintf("SIP/%s/%s", routing(req, p.cfg.DefaultTrunk), phone),
		"callerId":  fmt.Sprintf("%q <%s>", p.cfg.CallerIDName, phone),
		"timeout":   fmt.Sprint(ariOriginateWaitSec),
		"channelId": channelID,
	}
	// ARI rejects app together with dialplan routing.
	if app := strings.TrimSpace(p.cfg.App); app != "" {
		params["app"] = app
	} else {
		params["extension"] = extension
		params["context"] = p.cfg.Context
		params["priority"] = "1"
	}

	var channel ariChannel
	response, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetHeader("Content-Type", "application/json").
		SetBody(ariOriginateBody{Variables: map[string]string{"AUDIOFILE": audio}}).
		SetResult(&channel).
		Post("/channels")
	if err != nil {
		return nil, transportError("originate request failed", err)
	}
	if err := statusError(response, ReasonRejected); err != nil {
		return nil, err
	}

	token := channelID
	if id := strings.TrimSpace(channel.ID); id != "" {
		token = id
	}
	return &Placement{Token: token, Location: "channel:" + token}, nil
}

func (p *ARIPlacer) checkSound(ctx context.Context, audio string) error {
	response, err := p.client.R().
		SetContext(ctx).
		SetPathParam("soundId", audio).
		Get("/sounds/{soundId}")
	if err != nil {
		return transportError("sound lookup failed", err)
	}
	if response.StatusCode() == http.StatusNotFound {
		return &PlacementError{
			Reason:     ReasonAudioMissing,
			StatusCode: http.StatusNotFound,
			Message:    fmt.Sprintf("sound %q is not installed", audio),
		}
	}
	return statusError(response, ReasonUnexpected)
}

// statusError maps a non-2xx ARI response to a PlacementError. clientReason labels 4xx
// responses other than 409.
func statusError(response *resty.Response, clientReason string) error {
	if response == nil {
		return &PlacementError{Reason: ReasonTransport, Message: "ari returned empty response"}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	reason := clientReason
	switch {
	case statusCode == http.StatusConflict:
		reason = ReasonTokenCollision
	case statusCode >= http.StatusInternalServerError:
		reason = ReasonTransport
	}

	return &PlacementError{
		Reason:     reason,
		StatusCode: statusCode,
		Message:    ariErrorMessage(statusCode, strings.TrimSpace(response.String())),
	}
}

func transportError(message string, err error) error {
	reason := ReasonTransport
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		reason = ReasonCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		reason = ReasonTimeout
	}
	return &PlacementError{Reason: reason, Message: message, Cause: err}
}

func ariErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("ari returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
