package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ruslaninoyatov1/calling/internal/domain"
	"github.com/ruslaninoyatov1/calling/internal/service"
)

const dateLayout = "2006-01-02"

type SchedulerStatusProvider interface {
	Status(now time.Time) service.SchedulerStatus
}

// PassStatsReader reads pass stats recorded by any scheduler process.
type PassStatsReader interface {
	Last(ctx context.Context) (domain.PassSummary, bool, error)
	PassCount(ctx context.Context) (int64, error)
}

type CallReader interface {
	GetByID(ctx context.Context, id int64) (*domain.CallRecord, error)
}

type CallLogReader interface {
	GetByCallID(ctx context.Context, callID int64) ([]domain.CallLog, error)
}

type SchedulerHandler struct {
	scheduler SchedulerStatusProvider
	calls     CallReader
	logs      CallLogReader
	stats     PassStatsReader
	now       func() time.Time
}

func NewSchedulerHandler(
	scheduler SchedulerStatusProvider,
	calls CallReader,
	logs CallLogReader,
	stats PassStatsReader,
) (*SchedulerHandler, error) {
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if calls == nil {
		return nil, fmt.Errorf("call reader is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("call log reader is required")
	}

	return &SchedulerHandler{
		scheduler: scheduler,
		calls:     calls,
		logs:      logs,
		stats:     stats,
		now:       time.Now,
	}, nil
}

func RegisterSchedulerRoutes(
	router fiber.Router,
	scheduler SchedulerStatusProvider,
	calls CallReader,
	logs CallLogReader,
	stats PassStatsReader,
) error {
	h, err := NewSchedulerHandler(scheduler, calls, logs, stats)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/scheduler/status", h.GetStatus)
	v1.Get("/calls/:id", h.GetCall)

	return nil
}

type passResponse struct {
	PassID         string     `json:"passId"`
	Result         string     `json:"result"`
	StartedAt      time.Time  `json:"startedAt"`
	DurationMillis int64      `json:"durationMs"`
	Candidates     int        `json:"candidates"`
	Completed      int        `json:"completed"`
	Failed         int        `json:"failed"`
	Uncommitted    int        `json:"uncommitted"`
	NextEligibleAt *time.Time `json:"nextEligibleAt,omitempty"`
	Error          string     `json:"error,omitempty"`
}

type schedulerStatusResponse struct {
	Running        bool          `json:"running"`
	Window         string        `json:"window"`
	WindowOpen     bool          `json:"windowOpen"`
	NextEligibleAt time.Time     `json:"nextEligibleAt"`
	LastPass       *passResponse `json:"lastPass,omitempty"`
	RecordedPasses *int64        `json:"recordedPasses,omitempty"`
}

type callLogResponse struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type callResponse struct {
	ID              int64             `json:"id"`
	CompanyID       int64             `json:"companyId"`
	TextID          int64             `json:"textId"`
	Phone           string            `json:"phone"`
	Status          string            `json:"status"`
	ScheduledDate   string            `json:"scheduledDate"`
	LastAttemptDate *string           `json:"lastAttemptDate,omitempty"`
	AudioAsset      string            `json:"audioAsset,omitempty"`
	RoutingID       string            `json:"routingId,omitempty"`
	Logs            []callLogResponse `json:"logs"`
}

func (h *SchedulerHandler) GetStatus(c *fiber.Ctx) error {
	status := h.scheduler.Status(h.now())

	resp := schedulerStatusResponse{
		Running:        status.Running,
		Window:         status.Window,
		WindowOpen:     status.WindowOpen,
		NextEligibleAt: status.NextEligibleAt,
	}

	last := status.LastPass
	if h.stats != nil {
		if last == nil {
			summary, ok, err := h.stats.Last(c.Context())
			if err != nil {
				return err
			}
			if ok {
				last = &summary
			}
		}

		count, err := h.stats.PassCount(c.Context())
		if err != nil {
			return err
		}
		resp.RecordedPasses = &count
	}
	resp.LastPass = toPassResponse(last)

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *SchedulerHandler) GetCall(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Params("id")), 10, 64)
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "call id must be a positive integer")
	}

	record, err := h.calls.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	logs, err := h.logs.GetByCallID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toCallResponse(record, logs))
}

func toPassResponse(s *domain.PassSummary) *passResponse {
	if s == nil {
		return nil
	}

	resp := &passResponse{
		PassID:         s.PassID,
		Result:         s.Result.String(),
		StartedAt:      s.StartedAt,
		DurationMillis: s.Duration.Milliseconds(),
		Candidates:     s.Candidates,
		Completed:      s.Completed,
		Failed:         s.Failed,
		Uncommitted:    s.Uncommitted,
		Error:          s.Error,
	}
	if !s.NextEligibleAt.IsZero() {
		next := s.NextEligibleAt
		resp.NextEligibleAt = &next
	}
	return resp
}

func toCallResponse(r *domain.CallRecord, logs []domain.CallLog) callResponse {
	resp := callResponse{
		ID:            r.ID,
		CompanyID:     r.CompanyID,
		TextID:        r.TextID,
		Phone:         r.Phone,
		Status:        r.Status.String(),
		ScheduledDate: r.ScheduledDate.Format(dateLayout),
		AudioAsset:    r.AudioAsset(),
		RoutingID:     r.RoutingID(),
		Logs:          make([]callLogResponse, 0, len(logs)),
	}
	if r.LastAttemptDate != nil {
		last := r.LastAttemptDate.Format(dateLayout)
		resp.LastAttemptDate = &last
	}
	for _, l := range logs {
		resp.Logs = append(resp.Logs, callLogResponse{
			Level:     l.Level.String(),
			Message:   l.Message,
			CreatedAt: l.CreatedAt,
		})
	}
	return resp
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
