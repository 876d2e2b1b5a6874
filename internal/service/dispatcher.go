package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ruslaninoyatov1/calling/internal/domain"
	"github.com/ruslaninoyatov1/calling/internal/observability"
	"github.com/ruslaninoyatov1/calling/internal/repository"
	"github.com/ruslaninoyatov1/calling/internal/telephony"
	"go.uber.org/zap"
)

// ErrAttemptAbandoned is returned when the caller's context ended before the engine
// accepted or refused the call. The record must stay pending.
var ErrAttemptAbandoned = errors.New("dispatch attempt abandoned")

// Dispatcher performs one dispatch attempt per call record.
type Dispatcher struct {
	placer  telephony.Placer
	logs    repository.CallLogRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewDispatcher(placer telephony.Placer, logs repository.CallLogRepository, logger *zap.Logger) (*Dispatcher, error) {
	if placer == nil {
		return nil, fmt.Errorf("call placer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		placer: placer,
		logs:   logs,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Attempt places the call for record and returns its terminal outcome. Per-record problems
// always come back as a Failed outcome; the error is non-nil only when ctx ended first.
func (d *Dispatcher) Attempt(ctx context.Context, record domain.CallRecord, day time.Time) (domain.Outcome, error) {
	logger := observability.WithContextLogger(d.logger, ctx).With(
		zap.Int64("callId", record.ID),
		zap.String("phone", record.Phone),
	)

	if !domain.ValidPhone(record.Phone) {
		logger.Warn("phone is not in the national format, dialing as stored")
	}

	outcome, err := d.place(ctx, record, day)
	if err != nil {
		logger.Warn("dispatch attempt abandoned", zap.Error(err))
		return domain.Outcome{}, err
	}

	if outcome.Succeeded() {
		logger.Info("call placed", zap.String("token", outcome.Token))
		d.metrics.IncCallDispatched("completed")
	} else {
		logger.Warn("call failed",
			zap.String("reason", outcome.Reason),
			zap.String("detail", outcome.Detail),
		)
		d.metrics.IncCallDispatched("failed")
		d.metrics.IncCallFailed(outcome.Reason)
	}

	d.recordLog(ctx, logger, record.ID, outcome)
	return outcome, nil
}

func (d *Dispatcher) place(ctx context.Context, record domain.CallRecord, day time.Time) (domain.Outcome, error) {
	audio := record.AudioAsset()
	if audio == "" {
		return domain.Failed(domain.ReasonNoAudioAsset, domain.ErrNoAudioAsset.Error()), nil
	}

	start := d.now()
	placement, err := d.placer.Place(ctx, telephony.CallRequest{
		Phone:      record.Phone,
		AudioAsset: audio,
		RoutingID:  record.RoutingID(),
	})
	elapsed := d.now().Sub(start)

	if err != nil {
		d.metrics.ObservePlacementDuration("error", elapsed)
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return domain.Outcome{}, fmt.Errorf("%w: %w", ErrAttemptAbandoned, err)
		}
		return domain.Failed(telephony.ReasonOf(err), err.Error()), nil
	}

	d.metrics.ObservePlacementDuration("success", elapsed)
	token := ""
	if placement != nil {
		token = placement.Token
	}
	return domain.Completed(token, day), nil
}

// recordLog writes the call_logs row for an attempt. A failed write is logged and ignored.
func (d *Dispatcher) recordLog(ctx context.Context, logger *zap.Logger, callID int64, outcome domain.Outcome) {
	if d.logs == nil {
		return
	}

	entry := &domain.CallLog{
		PhoneCallID: callID,
		Level:       domain.LogLevelInfo,
		Message:     "call placed, token " + outcome.Token,
		CreatedAt:   d.now().UTC(),
	}
	if !outcome.Succeeded() {
		entry.Level = domain.LogLevelError
		entry.Message = strings.TrimSpace(outcome.Reason + ": " + outcome.Detail)
	}

	if err := d.logs.Create(context.WithoutCancel(ctx), entry); err != nil {
		logger.Error("failed to write call log", zap.Error(err))
	}
}
