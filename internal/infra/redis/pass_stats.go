package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/ruslaninoyatov1/calling/internal/domain"
)

const (
	defaultPassStatsKey = "autocaller:scheduler:last"
	passCounterSuffix   = ":passes"
	dateLayout          = "2006-01-02"
)

// PassStatsRecorder keeps the summary of the latest scheduler pass in a Redis hash so the
// ops endpoint and external dashboards can read it without touching the call store.
type PassStatsRecorder struct {
	client *goredis.Client
	key    string
}

func NewPassStatsRecorder(client *goredis.Client, key string) (*PassStatsRecorder, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(key) == "" {
		key = defaultPassStatsKey
	}

	return &PassStatsRecorder{client: client, key: key}, nil
}

func (r *PassStatsRecorder) Record(ctx context.Context, summary domain.PassSummary) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("pass stats recorder is not initialized")
	}

	fields := map[string]any{
		"pass_id":          summary.PassID,
		"result":           summary.Result.String(),
		"started_at":       summary.StartedAt.UTC().Format(time.RFC3339),
		"day":              formatOptionalDate(summary.Day),
		"duration_ms":      summary.Duration.Milliseconds(),
		"candidates":       summary.Candidates,
		"completed":        summary.Completed,
		"failed":           summary.Failed,
		"uncommitted":      summary.Uncommitted,
		"next_eligible_at": formatOptionalTime(summary.NextEligibleAt),
		"error":            summary.Error,
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.key, fields)
	pipe.Incr(ctx, r.key+passCounterSuffix)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record pass stats: %w", err)
	}
	return nil
}

// Last returns the latest recorded pass; ok is false when none was recorded yet.
func (r *PassStatsRecorder) Last(ctx context.Context) (summary domain.PassSummary, ok bool, err error) {
	if r == nil || r.client == nil {
		return domain.PassSummary{}, false, fmt.Errorf("pass stats recorder is not initialized")
	}

	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return domain.PassSummary{}, false, fmt.Errorf("failed to read pass stats: %w", err)
	}
	if len(values) == 0 {
		return domain.PassSummary{}, false, nil
	}

	summary = domain.PassSummary{
		PassID: values["pass_id"],
		Result: domain.PassResult(values["result"]),
		Error:  values["error"],
	}

	var parseErr error
	summary.StartedAt, parseErr = parseOptionalTime(values["started_at"])
	err = errors.Join(err, parseErr)
	summary.NextEligibleAt, parseErr = parseOptionalTime(values["next_eligible_at"])
	err = errors.Join(err, parseErr)
	summary.Day, parseErr = parseOptionalDate(values["day"])
	err = errors.Join(err, parseErr)

	durationMs, parseErr := parseInt(values["duration_ms"])
	err = errors.Join(err, parseErr)
	summary.Duration = time.Duration(durationMs) * time.Millisecond

	for field, dst := range map[string]*int{
		"candidates":  &summary.Candidates,
		"completed":   &summary.Completed,
		"failed":      &summary.Failed,
		"uncommitted": &summary.Uncommitted,
	} {
		n, parseErr := parseInt(values[field])
		err = errors.Join(err, parseErr)
		*dst = int(n)
	}

	if err != nil {
		return domain.PassSummary{}, false, fmt.Errorf("malformed pass stats: %w", err)
	}
	return summary, true, nil
}

// PassCount returns how many passes were recorded.
func (r *PassStatsRecorder) PassCount(ctx context.Context) (int64, error) {
	n, err := r.client.Get(ctx, r.key+passCounterSuffix).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return n, err
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseOptionalTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}

// Gated passes have no day; storing "" clears the previous pass's value.
func formatOptionalDate(day time.Time) string {
	if day.IsZero() {
		return ""
	}
	return day.Format(dateLayout)
}

func parseOptionalDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, value)
}

func parseInt(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.ParseInt(value, 10, 64)
}
