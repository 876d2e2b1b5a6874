package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ruslaninoyatov1/calling/internal/domain"
	"github.com/ruslaninoyatov1/calling/internal/queue"
	"github.com/ruslaninoyatov1/calling/internal/telephony"
)

type fakeCallRepo struct {
	listPendingFn func(ctx context.Context, day time.Time, afterID int64, limit int) ([]domain.CallRecord, error)
	getByIDFn     func(ctx context.Context, id int64) (*domain.CallRecord, error)
	markOutcomeFn func(ctx context.Context, id int64, outcome domain.Outcome) (bool, error)
}

func (f *fakeCallRepo) ListPending(ctx context.Context, day time.Time, afterID int64, limit int) ([]domain.CallRecord, error) {
	if f.listPendingFn != nil {
		return f.listPendingFn(ctx, day, afterID, limit)
	}
	return nil, nil
}

func (f *fakeCallRepo) GetByID(ctx context.Context, id int64) (*domain.CallRecord, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeCallRepo) MarkOutcome(ctx context.Context, id int64, outcome domain.Outcome) (bool, error) {
	if f.markOutcomeFn != nil {
		return f.markOutcomeFn(ctx, id, outcome)
	}
	return true, nil
}

// memCallStore applies the same pending filter and conditional update as the SQL store.
type memCallStore struct {
	mu        sync.Mutex
	records   map[int64]*domain.CallRecord
	listCalls []int64
}

func newMemCallStore(records ...domain.CallRecord) *memCallStore {
	store := &memCallStore{records: make(map[int64]*domain.CallRecord, len(records))}
	for i := range records {
		record := records[i]
		store.records[record.ID] = &record
	}
	return store
}

func (m *memCallStore) ListPending(ctx context.Context, day time.Time, afterID int64, limit int) ([]domain.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls = append(m.listCalls, afterID)

	ids := make([]int64, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]domain.CallRecord, 0, limit)
	for _, id := range ids {
		record := m.records[id]
		if id <= afterID || record.Status != domain.CallStatusPending || !domain.SameDate(record.ScheduledDate, day) {
			continue
		}
		out = append(out, *record)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memCallStore) GetByID(ctx context.Context, id int64) (*domain.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (m *memCallStore) MarkOutcome(ctx context.Context, id int64, outcome domain.Outcome) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok || record.Status != domain.CallStatusPending {
		return false, nil
	}
	record.Status = outcome.Status
	if outcome.AttemptDate != nil {
		date := *outcome.AttemptDate
		record.LastAttemptDate = &date
	}
	return true, nil
}

func (m *memCallStore) get(id int64) domain.CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.records[id]
}

type fakePlacer struct {
	placeFn func(ctx context.Context, req telephony.CallRequest) (*telephony.Placement, error)
}

func (f *fakePlacer) Place(ctx context.Context, req telephony.CallRequest) (*telephony.Placement, error) {
	if f.placeFn != nil {
		return f.placeFn(ctx, req)
	}
	return &telephony.Placement{Token: "token-1"}, nil
}

type fakeCallLogRepo struct {
	mu            sync.Mutex
	created       []domain.CallLog
	createFn      func(ctx context.Context, l *domain.CallLog) error
	getByCallIDFn func(ctx context.Context, callID int64) ([]domain.CallLog, error)
}

func (f *fakeCallLogRepo) Create(ctx context.Context, l *domain.CallLog) error {
	if f.createFn != nil {
		return f.createFn(ctx, l)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *l)
	return nil
}

func (f *fakeCallLogRepo) GetByCallID(ctx context.Context, callID int64) ([]domain.CallLog, error) {
	if f.getByCallIDFn != nil {
		return f.getByCallIDFn(ctx, callID)
	}
	return nil, nil
}

type fakeAttempter struct {
	attemptFn func(ctx context.Context, record domain.CallRecord, day time.Time) (domain.Outcome, error)
}

func (f *fakeAttempter) Attempt(ctx context.Context, record domain.CallRecord, day time.Time) (domain.Outcome, error) {
	if f.attemptFn != nil {
		return f.attemptFn(ctx, record, day)
	}
	return domain.Completed("token", day), nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	recorded []domain.PassSummary
	recordFn func(ctx context.Context, summary domain.PassSummary) error
}

func (f *fakeRecorder) Record(ctx context.Context, summary domain.PassSummary) error {
	f.mu.Lock()
	f.recorded = append(f.recorded, summary)
	f.mu.Unlock()
	if f.recordFn != nil {
		return f.recordFn(ctx, summary)
	}
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []queue.OutcomeEvent
	publishFn func(ctx context.Context, event queue.OutcomeEvent) error
}

func (f *fakePublisher) Publish(ctx context.Context, event queue.OutcomeEvent) error {
	f.mu.Lock()
	f.published = append(f.published, event)
	f.mu.Unlock()
	if f.publishFn != nil {
		return f.publishFn(ctx, event)
	}
	return nil
}

func (f *fakePublisher) Close() error {
	return nil
}
