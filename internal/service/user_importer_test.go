package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"wp-user-migration/internal/domain"
)

type pageCall struct {
	offset, limit int
}

type fakeSource struct {
	mu       sync.Mutex
	ids      []int64
	count    int
	calls    []pageCall
	inFlight func() int32
	overlap  bool
}

func newFakeSource(n int) *fakeSource {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return &fakeSource{ids: ids, count: n}
}

func (s *fakeSource) CountSince(context.Context, time.Time) (int, error) {
	return s.count, nil
}

func (s *fakeSource) ListIDsSince(_ context.Context, _ time.Time, offset, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, pageCall{offset: offset, limit: limit})
	if s.inFlight != nil && s.inFlight() != 0 {
		s.overlap = true
	}
	if offset >= len(s.ids) {
		return nil, nil
	}
	end := min(offset+limit, len(s.ids))
	return append([]int64(nil), s.ids[offset:end]...), nil
}

func (s *fakeSource) GetByID(context.Context, int64) (domain.LegacyUser, error) {
	return domain.LegacyUser{}, errors.New("not used")
}

type fakeMigrator struct {
	mu      sync.Mutex
	seen    []int64
	active  int32
	maxSeen int32
	failIDs map[int64]bool
	delay   time.Duration
}

func (m *fakeMigrator) MigrateUser(_ context.Context, id int64) RecordResult {
	m.mu.Lock()
	m.active++
	if m.active > m.maxSeen {
		m.maxSeen = m.active
	}
	m.seen = append(m.seen, id)
	m.mu.Unlock()

	time.Sleep(m.delay)

	m.mu.Lock()
	m.active--
	m.mu.Unlock()

	if m.failIDs[id] {
		return failed(id, 0, errors.New("boom"))
	}
	return RecordResult{LegacyID: id, Outcome: OutcomeCreated, WPUserID: id + 1000}
}

func (m *fakeMigrator) inFlight() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func TestImportUsersPagination(t *testing.T) {
	source := newFakeSource(40)
	migrator := &fakeMigrator{}
	tracker := NewProgressTracker("run-1")
	importer := NewUserImporter(zap.NewNop(), source, migrator, tracker, "run-1")

	summary, err := importer.ImportUsers(context.Background(), ImportOptions{Limit: 25, ChunkSize: 10, Workers: 10})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := []pageCall{{0, 10}, {10, 10}, {20, 5}}
	if len(source.calls) != len(want) {
		t.Fatalf("expected %d page requests, got %+v", len(want), source.calls)
	}
	for i, c := range want {
		if source.calls[i] != c {
			t.Fatalf("page %d: expected %+v, got %+v", i, c, source.calls[i])
		}
	}
	if summary.Processed != 25 || summary.Created != 25 || summary.Pages != 3 || summary.Total != 25 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(migrator.seen) != 25 {
		t.Fatalf("expected 25 records migrated, got %d", len(migrator.seen))
	}
	snap := tracker.Snapshot()
	if snap.Processed != 25 || snap.Total != 25 || snap.Status != StatusFinished {
		t.Fatalf("unexpected progress snapshot %+v", snap)
	}
}

func TestImportUsersFewerEligibleThanLimit(t *testing.T) {
	source := newFakeSource(12)
	migrator := &fakeMigrator{}
	importer := NewUserImporter(zap.NewNop(), source, migrator, nil, "run")

	summary, err := importer.ImportUsers(context.Background(), ImportOptions{Limit: 25, ChunkSize: 10})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if summary.Processed != 12 {
		t.Fatalf("expected 12 processed, got %d", summary.Processed)
	}
	if len(source.calls) != 2 || source.calls[1] != (pageCall{10, 2}) {
		t.Fatalf("unexpected page requests %+v", source.calls)
	}
}

func TestImportUsersChunkCappedToLimit(t *testing.T) {
	source := newFakeSource(50)
	importer := NewUserImporter(zap.NewNop(), source, &fakeMigrator{}, nil, "run")

	summary, err := importer.ImportUsers(context.Background(), ImportOptions{Limit: 4, ChunkSize: 10})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(source.calls) != 1 || source.calls[0] != (pageCall{0, 4}) {
		t.Fatalf("expected a single page of 4, got %+v", source.calls)
	}
	if summary.Processed != 4 {
		t.Fatalf("expected 4 processed, got %d", summary.Processed)
	}
}

func TestImportUsersNoEligibleUsers(t *testing.T) {
	source := newFakeSource(0)
	migrator := &fakeMigrator{}
	importer := NewUserImporter(zap.NewNop(), source, migrator, nil, "run")

	summary, err := importer.ImportUsers(context.Background(), ImportOptions{Limit: 100, ChunkSize: 10})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(source.calls) != 0 || len(migrator.seen) != 0 || summary.Processed != 0 {
		t.Fatalf("expected no work, got calls=%v summary=%+v", source.calls, summary)
	}
}

func TestImportUsersStopsOnShortPage(t *testing.T) {
	source := newFakeSource(15)
	source.count = 30
	importer := NewUserImporter(zap.NewNop(), source, &fakeMigrator{}, nil, "run")

	summary, err := importer.ImportUsers(context.Background(), ImportOptions{Limit: 30, ChunkSize: 10})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(source.calls) != 2 || summary.Processed != 15 {
		t.Fatalf("expected stop after short page, got calls=%+v processed=%d", source.calls, summary.Processed)
	}
}

func TestImportUsersBoundedConcurrencyAndPageBarrier(t *testing.T) {
	source := newFakeSource(30)
	migrator := &fakeMigrator{delay: 5 * time.Millisecond}
	source.inFlight = migrator.inFlight
	importer := NewUserImporter(zap.NewNop(), source, migrator, nil, "run")

	if _, err := importer.ImportUsers(context.Background(), ImportOptions{Limit: 30, ChunkSize: 10, Workers: 3}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if migrator.maxSeen > 3 {
		t.Fatalf("expected at most 3 concurrent workers, saw %d", migrator.maxSeen)
	}
	if source.overlap {
		t.Fatalf("expected next page to be requested only after the previous one finished")
	}
}

func TestImportUsersCollectsFailures(t *testing.T) {
	source := newFakeSource(20)
	migrator := &fakeMigrator{failIDs: map[int64]bool{3: true, 14: true}}
	importer := NewUserImporter(zap.NewNop(), source, migrator, nil, "run")

	summary, err := importer.ImportUsers(context.Background(), ImportOptions{Limit: 20, ChunkSize: 10})
	if err != nil {
		t.Fatalf("expected collect-and-continue, got %v", err)
	}
	if summary.Processed != 20 || summary.Failed != 2 || summary.Created != 18 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(summary.Failures) != 2 || summary.Failures[0].LegacyID != 3 || summary.Failures[0].Reason != "boom" {
		t.Fatalf("unexpected failures %+v", summary.Failures)
	}
}

func TestImportUsersFailFast(t *testing.T) {
	source := newFakeSource(30)
	migrator := &fakeMigrator{failIDs: map[int64]bool{5: true}}
	importer := NewUserImporter(zap.NewNop(), source, migrator, nil, "run")

	summary, err := importer.ImportUsers(context.Background(), ImportOptions{Limit: 30, ChunkSize: 10, FailFast: true})
	if !errors.Is(err, ErrRunAborted) {
		t.Fatalf("expected ErrRunAborted, got %v", err)
	}
	if summary.Processed != 10 || len(source.calls) != 1 {
		t.Fatalf("expected first page completed then stop, got processed=%d calls=%d", summary.Processed, len(source.calls))
	}
}

func TestImportUsersCancelledBetweenPages(t *testing.T) {
	source := newFakeSource(30)
	ctx, cancel := context.WithCancel(context.Background())
	migrator := &cancelingMigrator{cancel: cancel}
	importer := NewUserImporter(zap.NewNop(), source, migrator, nil, "run")

	summary, err := importer.ImportUsers(ctx, ImportOptions{Limit: 30, ChunkSize: 10})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary.Processed != 10 {
		t.Fatalf("expected in-flight page to complete, got %d", summary.Processed)
	}
	if migrator.cancelledCtx {
		t.Fatalf("expected workers to run with a non-cancelled context")
	}
}

type cancelingMigrator struct {
	mu           sync.Mutex
	cancel       context.CancelFunc
	cancelledCtx bool
}

func (m *cancelingMigrator) MigrateUser(ctx context.Context, id int64) RecordResult {
	m.cancel()
	m.mu.Lock()
	if ctx.Err() != nil {
		m.cancelledCtx = true
	}
	m.mu.Unlock()
	return RecordResult{LegacyID: id, Outcome: OutcomeCreated}
}

func TestImportUsersRecoversWorkerPanic(t *testing.T) {
	source := newFakeSource(3)
	importer := NewUserImporter(zap.NewNop(), source, panicMigrator{}, nil, "run")

	summary, err := importer.ImportUsers(context.Background(), ImportOptions{Limit: 3, ChunkSize: 10})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if summary.Failed != 3 {
		t.Fatalf("expected panics reported as failures, got %+v", summary)
	}
}

type panicMigrator struct{}

func (panicMigrator) MigrateUser(context.Context, int64) RecordResult {
	panic("nil pointer")
}

func TestImportUsersEndToEnd(t *testing.T) {
	store := newFakeStore()
	store.legacy[7] = annLee()
	source := &fakeSource{ids: []int64{7}, count: 1}
	migrator := NewUserMigrator(zap.NewNop(), store, nil, false)

	for run := 0; run < 2; run++ {
		summary, err := NewUserImporter(zap.NewNop(), source, migrator, nil, "run").
			ImportUsers(context.Background(), ImportOptions{Limit: 100, ChunkSize: 10})
		if err != nil {
			t.Fatalf("run %d: expected no error, got %v", run, err)
		}
		if summary.Processed != 1 {
			t.Fatalf("run %d: expected 1 processed, got %+v", run, summary)
		}
	}
	if len(store.wpUsers) != 1 {
		t.Fatalf("expected one destination user after two runs, got %d", len(store.wpUsers))
	}
}
