package service

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ruslaninoyatov1/calling/internal/callwindow"
	"github.com/ruslaninoyatov1/calling/internal/domain"
	"github.com/ruslaninoyatov1/calling/internal/observability"
	"github.com/ruslaninoyatov1/calling/internal/telephony"
	"go.uber.org/zap"
)

var tashkent = time.FixedZone("UZT", 5*60*60)

func testWindow() callwindow.Window {
	return callwindow.NewInLocation(
		callwindow.Clock{Hour: 7, Minute: 15},
		callwindow.Clock{Hour: 21, Minute: 59},
		tashkent,
	)
}

func newTestScheduler(t *testing.T, calls *memCallStore, attempter Attempter, now time.Time) *Scheduler {
	t.Helper()

	scheduler, err := NewScheduler(calls, attempter, SchedulerConfig{Window: testWindow()}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	scheduler.now = func() time.Time { return now }
	return scheduler
}

func TestNewSchedulerAppliesDefaults(t *testing.T) {
	t.Parallel()

	scheduler, err := NewScheduler(&fakeCallRepo{}, &fakeAttempter{}, SchedulerConfig{}, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if scheduler.pollInterval != 300*time.Second {
		t.Fatalf("pollInterval = %s, want 5m", scheduler.pollInterval)
	}
	if scheduler.errorBackoff != 60*time.Second {
		t.Fatalf("errorBackoff = %s, want 1m", scheduler.errorBackoff)
	}
	if scheduler.batchSize != defaultScanBatch {
		t.Fatalf("batchSize = %d, want %d", scheduler.batchSize, defaultScanBatch)
	}

	if _, err := NewScheduler(nil, &fakeAttempter{}, SchedulerConfig{}, nil); err == nil {
		t.Fatal("expected error without repository")
	}
	if _, err := NewScheduler(&fakeCallRepo{}, nil, SchedulerConfig{}, nil); err == nil {
		t.Fatal("expected error without dispatcher")
	}
}

func TestSchedulerGatedPassNeverReadsStore(t *testing.T) {
	t.Parallel()

	repo := &fakeCallRepo{
		listPendingFn: func(ctx context.Context, day time.Time, afterID int64, limit int) ([]domain.CallRecord, error) {
			t.Error("store must not be read outside the call window")
			return nil, nil
		},
	}
	attempter := &fakeAttempter{
		attemptFn: func(ctx context.Context, record domain.CallRecord, day time.Time) (domain.Outcome, error) {
			t.Error("no attempt may run outside the call window")
			return domain.Outcome{}, nil
		},
	}
	recorder := &fakeRecorder{}

	scheduler, err := NewScheduler(repo, attempter, SchedulerConfig{Window: testWindow()}, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	scheduler.SetRecorder(recorder)
	metrics := observability.NewMetrics()
	scheduler.SetMetrics(metrics)

	for _, now := range []time.Time{
		time.Date(2026, 10, 15, 6, 0, 0, 0, tashkent),
		time.Date(2026, 10, 15, 22, 0, 0, 0, tashkent),
		time.Date(2026, 10, 15, 1, 0, 0, 0, time.UTC), // 06:00 in Tashkent
	} {
		now := now
		scheduler.now = func() time.Time { return now }

		summary, err := scheduler.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("RunOnce(%s) error = %v", now, err)
		}
		if summary.Result != domain.PassGated {
			t.Fatalf("RunOnce(%s) result = %s, want gated", now, summary.Result)
		}
	}

	first := recorder.recorded[0]
	if want := time.Date(2026, 10, 15, 7, 15, 0, 0, tashkent); !first.NextEligibleAt.Equal(want) {
		t.Fatalf("NextEligibleAt = %s, want %s", first.NextEligibleAt, want)
	}
	if want := time.Date(2026, 10, 16, 7, 15, 0, 0, tashkent); !recorder.recorded[1].NextEligibleAt.Equal(want) {
		t.Fatalf("NextEligibleAt after close = %s, want %s", recorder.recorded[1].NextEligibleAt, want)
	}

	body := scrapeMetrics(t, metrics)
	if !strings.Contains(body, `autocaller_dispatch_passes_total{result="gated"} 3`) {
		t.Fatalf("metrics do not count 3 gated passes:\n%s", body)
	}
}

func TestSchedulerDispatchesOnlyCandidates(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 10, 0, 0, 0, tashkent)
	yesterday := testDay.AddDate(0, 0, -1)

	records := []domain.CallRecord{
		testRecord(1, "998901234567", strPtr("a1")),
		testRecord(2, "998901234568", strPtr("a2")),
		testRecord(3, "998901234569", strPtr("a3")),
	}
	records[1].ScheduledDate = yesterday
	records[2].Status = domain.CallStatusCompleted

	// Return every record regardless of the filter to check the defensive candidate check.
	repo := &fakeCallRepo{
		listPendingFn: func(ctx context.Context, day time.Time, afterID int64, limit int) ([]domain.CallRecord, error) {
			if !day.Equal(testDay) {
				t.Errorf("day = %s, want %s", day, testDay)
			}
			if afterID > 0 {
				return nil, nil
			}
			return records, nil
		},
	}

	attempted := make([]int64, 0, 1)
	attempter := &fakeAttempter{
		attemptFn: func(ctx context.Context, record domain.CallRecord, day time.Time) (domain.Outcome, error) {
			attempted = append(attempted, record.ID)
			return domain.Completed("t", day), nil
		},
	}

	scheduler, err := NewScheduler(repo, attempter, SchedulerConfig{Window: testWindow()}, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	scheduler.now = func() time.Time { return now }

	summary, err := scheduler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(attempted) != 1 || attempted[0] != 1 {
		t.Fatalf("attempted = %v, want [1]", attempted)
	}
	if summary.Candidates != 1 || summary.Completed != 1 {
		t.Fatalf("summary = %+v, want one completed candidate", summary)
	}
}

func TestSchedulerAtMostOnceAcrossPasses(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 9, 30, 0, 0, tashkent)
	store := newMemCallStore(
		testRecord(1, "998901234561", strPtr("a")),
		testRecord(2, "998901234562", strPtr("a")),
		testRecord(3, "998901234563", strPtr("a")),
	)

	attempts := map[int64]int{}
	attempter := &fakeAttempter{
		attemptFn: func(ctx context.Context, record domain.CallRecord, day time.Time) (domain.Outcome, error) {
			attempts[record.ID]++
			if record.ID == 2 {
				return domain.Failed(telephony.ReasonRejected, "busy trunk"), nil
			}
			return domain.Completed("t", day), nil
		},
	}

	scheduler := newTestScheduler(t, store, attempter, now)

	for pass := 0; pass < 3; pass++ {
		if _, err := scheduler.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce() pass %d error = %v", pass, err)
		}
	}

	for id := int64(1); id <= 3; id++ {
		if attempts[id] != 1 {
			t.Fatalf("record %d attempted %d times, want 1", id, attempts[id])
		}
	}

	if got := store.get(2); got.Status != domain.CallStatusFailed || got.LastAttemptDate != nil {
		t.Fatalf("record 2 = %+v, want FAILED without last attempt date", got)
	}
	completed := store.get(1)
	if completed.Status != domain.CallStatusCompleted {
		t.Fatalf("record 1 status = %s, want COMPLETED", completed.Status)
	}
	if completed.LastAttemptDate == nil || !completed.LastAttemptDate.Equal(testDay) {
		t.Fatalf("record 1 LastAttemptDate = %v, want %s", completed.LastAttemptDate, testDay)
	}
}

func TestSchedulerPerRecordIsolation(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, tashkent)
	store := newMemCallStore(
		testRecord(1, "998901234561", strPtr("a")),
		testRecord(2, "998901234562", strPtr("a")),
		testRecord(3, "998901234563", strPtr("a")),
		testRecord(4, "998901234564", strPtr("a")),
	)

	repo := &fakeCallRepo{
		listPendingFn: store.ListPending,
		markOutcomeFn: func(ctx context.Context, id int64, outcome domain.Outcome) (bool, error) {
			if id == 3 {
				return false, errors.New("connection reset")
			}
			return store.MarkOutcome(ctx, id, outcome)
		},
	}

	attempter := &fakeAttempter{
		attemptFn: func(ctx context.Context, record domain.CallRecord, day time.Time) (domain.Outcome, error) {
			if record.ID == 2 {
				return domain.Failed(telephony.ReasonSpoolUnwritable, "read-only file system"), nil
			}
			return domain.Completed("t", day), nil
		},
	}
	publisher := &fakePublisher{}

	scheduler, err := NewScheduler(repo, attempter, SchedulerConfig{Window: testWindow()}, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	scheduler.now = func() time.Time { return now }
	scheduler.SetPublisher(publisher)

	summary, err := scheduler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if summary.Candidates != 4 || summary.Completed != 2 || summary.Failed != 1 || summary.Uncommitted != 1 {
		t.Fatalf("summary = %+v, want 4 candidates, 2 completed, 1 failed, 1 uncommitted", summary)
	}
	if got := store.get(3).Status; got != domain.CallStatusPending {
		t.Fatalf("record 3 status = %s, want PENDING after a failed commit", got)
	}
	if got := store.get(4).Status; got != domain.CallStatusCompleted {
		t.Fatalf("record 4 status = %s, want COMPLETED", got)
	}

	if len(publisher.published) != 3 {
		t.Fatalf("published events = %d, want 3 (one per committed outcome)", len(publisher.published))
	}
	for _, event := range publisher.published {
		if event.CallID == 3 {
			t.Fatal("uncommitted outcome must not be published")
		}
		if event.PassID != summary.PassID {
			t.Fatalf("event passId = %q, want %q", event.PassID, summary.PassID)
		}
	}
}

func TestSchedulerEndToEndWithDispatcher(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 21, 59, 30, 0, tashkent)
	store := newMemCallStore(
		testRecord(1, "998901234561", nil),
		testRecord(2, "998901234562", strPtr("audio-2")),
	)

	placedPhones := make([]string, 0, 1)
	placer := &fakePlacer{
		placeFn: func(ctx context.Context, req telephony.CallRequest) (*telephony.Placement, error) {
			placedPhones = append(placedPhones, req.Phone)
			return &telephony.Placement{Token: "abc12345"}, nil
		},
	}
	logs := &fakeCallLogRepo{}

	dispatcher, err := NewDispatcher(placer, logs, nil)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	scheduler := newTestScheduler(t, store, dispatcher, now)

	summary, err := scheduler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	noAudio := store.get(1)
	if noAudio.Status != domain.CallStatusFailed || noAudio.LastAttemptDate != nil {
		t.Fatalf("record without audio = %+v, want FAILED and untouched last date", noAudio)
	}
	placed := store.get(2)
	if placed.Status != domain.CallStatusCompleted || placed.LastAttemptDate == nil || !placed.LastAttemptDate.Equal(testDay) {
		t.Fatalf("placed record = %+v, want COMPLETED on %s", placed, testDay)
	}
	if len(placedPhones) != 1 || placedPhones[0] != "998901234562" {
		t.Fatalf("placed phones = %v, want only the record with audio", placedPhones)
	}
	if len(logs.created) != 2 {
		t.Fatalf("call logs = %d, want 2", len(logs.created))
	}
	if want := time.Date(2026, 10, 16, 7, 15, 0, 0, tashkent); !summary.NextEligibleAt.Equal(want) {
		t.Fatalf("NextEligibleAt = %s, want %s", summary.NextEligibleAt, want)
	}
}

func TestSchedulerPaginatesInBatches(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 8, 0, 0, 0, tashkent)
	records := make([]domain.CallRecord, 0, 5)
	for id := int64(1); id <= 5; id++ {
		records = append(records, testRecord(id, "998901234567", strPtr("a")))
	}
	store := newMemCallStore(records...)

	scheduler, err := NewScheduler(store, &fakeAttempter{}, SchedulerConfig{Window: testWindow(), BatchSize: 2}, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	scheduler.now = func() time.Time { return now }

	summary, err := scheduler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.Completed != 5 {
		t.Fatalf("completed = %d, want 5", summary.Completed)
	}

	want := []int64{0, 2, 4}
	if len(store.listCalls) != len(want) {
		t.Fatalf("list calls = %v, want %v", store.listCalls, want)
	}
	for i := range want {
		if store.listCalls[i] != want[i] {
			t.Fatalf("list calls = %v, want %v", store.listCalls, want)
		}
	}
}

func TestSchedulerStoreFailureFailsPass(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 8, 0, 0, 0, tashkent)
	repo := &fakeCallRepo{
		listPendingFn: func(ctx context.Context, day time.Time, afterID int64, limit int) ([]domain.CallRecord, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	recorder := &fakeRecorder{}

	scheduler, err := NewScheduler(repo, &fakeAttempter{}, SchedulerConfig{Window: testWindow()}, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	scheduler.now = func() time.Time { return now }
	scheduler.SetRecorder(recorder)

	summary, err := scheduler.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected pass error when the store is unreachable")
	}
	if summary.Result != domain.PassFailed || summary.Error == "" {
		t.Fatalf("summary = %+v, want failed with error", summary)
	}
	if len(recorder.recorded) != 1 || recorder.recorded[0].Result != domain.PassFailed {
		t.Fatalf("recorded = %+v, want one failed pass", recorder.recorded)
	}

	status := scheduler.Status(now)
	if status.LastPass == nil || status.LastPass.Result != domain.PassFailed {
		t.Fatalf("status.LastPass = %+v, want failed pass", status.LastPass)
	}
	if !status.WindowOpen || status.Running {
		t.Fatalf("status = %+v, want open window and not running", status)
	}
}

func TestSchedulerAbandonedAttemptIsNotCommitted(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 8, 0, 0, 0, tashkent)
	store := newMemCallStore(
		testRecord(1, "998901234561", strPtr("a")),
		testRecord(2, "998901234562", strPtr("a")),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempter := &fakeAttempter{
		attemptFn: func(ctx context.Context, record domain.CallRecord, day time.Time) (domain.Outcome, error) {
			cancel()
			return domain.Outcome{}, ErrAttemptAbandoned
		},
	}

	scheduler := newTestScheduler(t, store, attempter, now)

	if _, err := scheduler.RunOnce(ctx); err == nil {
		t.Fatal("expected error for an abandoned pass")
	}
	for id := int64(1); id <= 2; id++ {
		if got := store.get(id).Status; got != domain.CallStatusPending {
			t.Fatalf("record %d status = %s, want PENDING", id, got)
		}
	}
}

func TestSchedulerRecorderFailureDoesNotFailPass(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 8, 0, 0, 0, tashkent)
	scheduler := newTestScheduler(t, newMemCallStore(), &fakeAttempter{}, now)
	scheduler.SetRecorder(&fakeRecorder{
		recordFn: func(ctx context.Context, summary domain.PassSummary) error {
			return errors.New("redis down")
		},
	})

	summary, err := scheduler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.Result != domain.PassCompleted {
		t.Fatalf("result = %s, want completed", summary.Result)
	}
}

func TestSchedulerStartBacksOffAfterFailedPass(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 8, 0, 0, 0, tashkent)

	var calls atomic.Int32
	secondPass := make(chan struct{})
	repo := &fakeCallRepo{
		listPendingFn: func(ctx context.Context, day time.Time, afterID int64, limit int) ([]domain.CallRecord, error) {
			switch calls.Add(1) {
			case 1:
				return nil, errors.New("db unavailable")
			case 2:
				close(secondPass)
			}
			return nil, nil
		},
	}

	// The poll interval is far longer than the test timeout, so a second pass proves the
	// back-off was used after the failure.
	scheduler, err := NewScheduler(repo, &fakeAttempter{}, SchedulerConfig{
		Window:       testWindow(),
		PollInterval: time.Hour,
		ErrorBackoff: 5 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	scheduler.now = func() time.Time { return now }

	errCh := make(chan error, 1)
	go func() {
		errCh <- scheduler.Start(context.Background())
	}()

	select {
	case <-secondPass:
	case <-time.After(2 * time.Second):
		t.Fatal("second pass did not run after the error back-off")
	}

	scheduler.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}

	if scheduler.Status(now).Running {
		t.Fatal("scheduler still reports running after Stop()")
	}
}

func TestSchedulerStartReturnsOnContextCancel(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 23, 0, 0, 0, tashkent)

	var once sync.Once
	firstPass := make(chan struct{})
	recorder := &fakeRecorder{
		recordFn: func(ctx context.Context, summary domain.PassSummary) error {
			once.Do(func() { close(firstPass) })
			return nil
		},
	}

	scheduler := newTestScheduler(t, newMemCallStore(), &fakeAttempter{}, now)
	scheduler.SetRecorder(recorder)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- scheduler.Start(ctx)
	}()

	select {
	case <-firstPass:
	case <-time.After(2 * time.Second):
		t.Fatal("first pass did not run")
	}

	if err := scheduler.Start(context.Background()); err == nil {
		t.Fatal("expected error when starting a running scheduler")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	t.Parallel()

	scheduler := newTestScheduler(t, newMemCallStore(), &fakeAttempter{}, time.Now())
	scheduler.Stop()
}

func scrapeMetrics(t *testing.T, metrics *observability.Metrics) string {
	t.Helper()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	return string(body)
}
