package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vitalbridge/go-healthsync/core"
)

type stubAPI struct {
	createStream    func(ctx context.Context, descriptor core.StreamDescriptor) error
	batchCreate     func(ctx context.Context, events []core.CanonicalEvent) (core.BatchResult, error)
	getEvents       func(ctx context.Context, filter core.EventsFilter) (core.EventsPage, error)
	deleteEvent     func(ctx context.Context, id string) error
	createWithBytes func(ctx context.Context, event core.CanonicalEvent, attachment core.Attachment) (core.CanonicalEvent, error)
}

func (s *stubAPI) CreateStream(ctx context.Context, descriptor core.StreamDescriptor) error {
	if s.createStream != nil {
		return s.createStream(ctx, descriptor)
	}
	return nil
}

func (s *stubAPI) BatchCreateEvents(ctx context.Context, events []core.CanonicalEvent) (core.BatchResult, error) {
	if s.batchCreate != nil {
		return s.batchCreate(ctx, events)
	}
	return core.BatchResult{Created: events}, nil
}

func (s *stubAPI) GetEvents(ctx context.Context, filter core.EventsFilter) (core.EventsPage, error) {
	if s.getEvents != nil {
		return s.getEvents(ctx, filter)
	}
	return core.EventsPage{}, nil
}

func (s *stubAPI) DeleteEvent(ctx context.Context, id string) error {
	if s.deleteEvent != nil {
		return s.deleteEvent(ctx, id)
	}
	return nil
}

func (s *stubAPI) CreateEventWithAttachment(ctx context.Context, event core.CanonicalEvent, attachment core.Attachment) (core.CanonicalEvent, error) {
	if s.createWithBytes != nil {
		return s.createWithBytes(ctx, event, attachment)
	}
	return event, nil
}

type stubSource struct {
	queryIncremental func(ctx context.Context, sourceType, cursor string) (core.IncrementalResult, error)
	queryBaseline    func(ctx context.Context, sourceType string) (core.SourceSnapshot, error)
}

func (s *stubSource) RequestAuthorization(ctx context.Context, readTypes, writeTypes []string) error {
	return nil
}

func (s *stubSource) EnableBackgroundDelivery(ctx context.Context, sourceType string) error {
	return nil
}

func (s *stubSource) Observe(ctx context.Context, sourceType string) (<-chan core.ChangeNotification, error) {
	ch := make(chan core.ChangeNotification)
	close(ch)
	return ch, nil
}

func (s *stubSource) QueryIncremental(ctx context.Context, sourceType, cursor string) (core.IncrementalResult, error) {
	if s.queryIncremental != nil {
		return s.queryIncremental(ctx, sourceType, cursor)
	}
	return core.IncrementalResult{NewCursor: cursor}, nil
}

func (s *stubSource) QueryBaseline(ctx context.Context, sourceType string) (core.SourceSnapshot, error) {
	if s.queryBaseline != nil {
		return s.queryBaseline(ctx, sourceType)
	}
	return core.SourceSnapshot{}, nil
}

type memoryCursorStore struct {
	cursors map[string]core.SyncCursor
	saves   []core.SaveSyncCursorInput
}

func newMemoryCursorStore() *memoryCursorStore {
	return &memoryCursorStore{cursors: map[string]core.SyncCursor{}}
}

func (s *memoryCursorStore) Get(ctx context.Context, sourceType string) (core.SyncCursor, error) {
	cursor, ok := s.cursors[sourceType]
	if !ok {
		return core.SyncCursor{}, core.ErrSyncCursorNotFound
	}
	return cursor, nil
}

func (s *memoryCursorStore) Save(ctx context.Context, in core.SaveSyncCursorInput) (core.SyncCursor, error) {
	s.saves = append(s.saves, in)
	cursor := core.SyncCursor{SourceType: in.SourceType, Cursor: in.Cursor, Status: in.Status}
	s.cursors[in.SourceType] = cursor
	return cursor, nil
}

type memoryIndexStore struct {
	entries      map[string]string
	watermark    time.Time
	hasWatermark bool
	replaced     [][]core.EventIndexEntry
}

func newMemoryIndexStore() *memoryIndexStore {
	return &memoryIndexStore{entries: map[string]string{}}
}

func (s *memoryIndexStore) Lookup(ctx context.Context, sourceSampleIDs []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range sourceSampleIDs {
		if eventID, ok := s.entries[id]; ok {
			out[id] = eventID
		}
	}
	return out, nil
}

func (s *memoryIndexStore) Replace(ctx context.Context, entries []core.EventIndexEntry) error {
	s.replaced = append(s.replaced, entries)
	s.entries = map[string]string{}
	for _, entry := range entries {
		s.entries[entry.SourceSampleID] = entry.EventID
	}
	return nil
}

func (s *memoryIndexStore) Watermark(ctx context.Context) (time.Time, bool, error) {
	return s.watermark, s.hasWatermark, nil
}

func (s *memoryIndexStore) SaveWatermark(ctx context.Context, at time.Time) error {
	s.watermark = at
	s.hasWatermark = true
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func newTestEngine(t *testing.T, api *stubAPI, source *stubSource, opts ...Option) (*Engine, *memoryCursorStore, *memoryIndexStore) {
	t.Helper()
	cursors := newMemoryCursorStore()
	index := newMemoryIndexStore()
	streams := []core.MonitoredStream{
		{SourceType: "HKQuantityTypeIdentifierBodyMass", Continuous: true},
	}
	engine, err := New(api, source, cursors, index, streams, opts...)
	if err != nil {
		t.Fatalf("expected engine, got error: %v", err)
	}
	return engine, cursors, index
}

func intoReconciling(t *testing.T, engine *Engine, sourceType string) {
	t.Helper()
	if err := engine.transition(sourceType, core.StreamPhaseWaitingForChange); err != nil {
		t.Fatalf("expected waiting transition to succeed: %v", err)
	}
}

func TestReconcilePersistsCursorBeforeBatch(t *testing.T) {
	var calls []string
	api := &stubAPI{
		batchCreate: func(ctx context.Context, events []core.CanonicalEvent) (core.BatchResult, error) {
			calls = append(calls, "batch")
			return core.BatchResult{}, errors.New("remote unavailable")
		},
	}
	source := &stubSource{
		queryIncremental: func(ctx context.Context, sourceType, cursor string) (core.IncrementalResult, error) {
			return core.IncrementalResult{
				Additions: []core.SourceSample{
					{ID: "sample-1", TypeID: sourceType, StartedAt: time.Now(), Value: floatPtr(72.5)},
				},
				NewCursor: "anchor-2",
			}, nil
		},
	}

	engine, cursors, _ := newTestEngine(t, api, source)
	trackingCursors := &orderTrackingCursorStore{inner: cursors, calls: &calls}
	engine.cursors = trackingCursors

	intoReconciling(t, engine, "HKQuantityTypeIdentifierBodyMass")
	report, err := engine.Reconcile(context.Background(), "HKQuantityTypeIdentifierBodyMass")
	if err != nil {
		t.Fatalf("expected reconcile to tolerate create failure, got %v", err)
	}
	if report.CreateErrors != 1 {
		t.Fatalf("expected 1 create error, got %d", report.CreateErrors)
	}

	if len(calls) != 2 || calls[0] != "save" || calls[1] != "batch" {
		t.Fatalf("expected cursor save before batch create, got %v", calls)
	}
	stored, err := cursors.Get(context.Background(), "HKQuantityTypeIdentifierBodyMass")
	if err != nil {
		t.Fatalf("expected stored cursor: %v", err)
	}
	if stored.Cursor != "anchor-2" {
		t.Fatalf("expected cursor anchor-2 persisted despite failed batch, got %q", stored.Cursor)
	}
}

type orderTrackingCursorStore struct {
	inner *memoryCursorStore
	calls *[]string
}

func (s *orderTrackingCursorStore) Get(ctx context.Context, sourceType string) (core.SyncCursor, error) {
	return s.inner.Get(ctx, sourceType)
}

func (s *orderTrackingCursorStore) Save(ctx context.Context, in core.SaveSyncCursorInput) (core.SyncCursor, error) {
	*s.calls = append(*s.calls, "save")
	return s.inner.Save(ctx, in)
}

func TestReconcileResumesFromStoredCursor(t *testing.T) {
	var seenCursor string
	source := &stubSource{
		queryIncremental: func(ctx context.Context, sourceType, cursor string) (core.IncrementalResult, error) {
			seenCursor = cursor
			return core.IncrementalResult{NewCursor: "anchor-3"}, nil
		},
	}
	engine, cursors, _ := newTestEngine(t, &stubAPI{}, source)
	if _, err := cursors.Save(context.Background(), core.SaveSyncCursorInput{
		SourceType: "HKQuantityTypeIdentifierBodyMass",
		Cursor:     "anchor-2",
	}); err != nil {
		t.Fatalf("expected seed save to succeed: %v", err)
	}

	intoReconciling(t, engine, "HKQuantityTypeIdentifierBodyMass")
	if _, err := engine.Reconcile(context.Background(), "HKQuantityTypeIdentifierBodyMass"); err != nil {
		t.Fatalf("expected reconcile to succeed: %v", err)
	}
	if seenCursor != "anchor-2" {
		t.Fatalf("expected incremental query anchored at anchor-2, got %q", seenCursor)
	}
}

func TestReconcileSuppressesRedeliveredSamples(t *testing.T) {
	var created []core.CanonicalEvent
	api := &stubAPI{
		getEvents: func(ctx context.Context, filter core.EventsFilter) (core.EventsPage, error) {
			return core.EventsPage{Events: []core.CanonicalEvent{
				{ID: "evt-1", ClientData: core.ClientData{SourceSampleID: "sample-1"}},
			}}, nil
		},
		batchCreate: func(ctx context.Context, events []core.CanonicalEvent) (core.BatchResult, error) {
			created = append(created, events...)
			return core.BatchResult{Created: events}, nil
		},
	}
	source := &stubSource{
		queryIncremental: func(ctx context.Context, sourceType, cursor string) (core.IncrementalResult, error) {
			return core.IncrementalResult{
				Additions: []core.SourceSample{
					{ID: "sample-1", TypeID: sourceType, StartedAt: time.Now(), Value: floatPtr(72.5)},
					{ID: "sample-2", TypeID: sourceType, StartedAt: time.Now(), Value: floatPtr(73.1)},
				},
				NewCursor: "anchor-2",
			}, nil
		},
	}

	engine, _, _ := newTestEngine(t, api, source)
	intoReconciling(t, engine, "HKQuantityTypeIdentifierBodyMass")
	report, err := engine.Reconcile(context.Background(), "HKQuantityTypeIdentifierBodyMass")
	if err != nil {
		t.Fatalf("expected reconcile to succeed: %v", err)
	}
	if report.Suppressed != 1 {
		t.Fatalf("expected 1 suppressed sample, got %d", report.Suppressed)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 created event, got %d", len(created))
	}
	if created[0].ClientData.SourceSampleID != "sample-2" {
		t.Fatalf("expected only sample-2 created, got %q", created[0].ClientData.SourceSampleID)
	}
	if created[0].Content.Number != 73.1 {
		t.Fatalf("expected content 73.1, got %v", created[0].Content.Number)
	}
	if created[0].Type != "mass/kg" {
		t.Fatalf("expected type mass/kg, got %q", created[0].Type)
	}
}

func TestReconcileSkipsValuelessSamples(t *testing.T) {
	var batches int
	api := &stubAPI{
		batchCreate: func(ctx context.Context, events []core.CanonicalEvent) (core.BatchResult, error) {
			batches++
			return core.BatchResult{Created: events}, nil
		},
	}
	source := &stubSource{
		queryIncremental: func(ctx context.Context, sourceType, cursor string) (core.IncrementalResult, error) {
			return core.IncrementalResult{
				Additions: []core.SourceSample{{ID: "sample-1", TypeID: sourceType, StartedAt: time.Now()}},
				NewCursor: "anchor-2",
			}, nil
		},
	}

	engine, _, _ := newTestEngine(t, api, source)
	intoReconciling(t, engine, "HKQuantityTypeIdentifierBodyMass")
	report, err := engine.Reconcile(context.Background(), "HKQuantityTypeIdentifierBodyMass")
	if err != nil {
		t.Fatalf("expected reconcile to succeed: %v", err)
	}
	if report.Skipped != 1 {
		t.Fatalf("expected 1 skipped sample, got %d", report.Skipped)
	}
	if batches != 0 {
		t.Fatalf("expected no batch create for skipped samples, got %d", batches)
	}
	if report.Cursor != "anchor-2" {
		t.Fatalf("expected cursor to advance past skipped samples, got %q", report.Cursor)
	}
}

func TestReconcileReturnsToWaitingAfterCycle(t *testing.T) {
	engine, _, _ := newTestEngine(t, &stubAPI{}, &stubSource{})
	intoReconciling(t, engine, "HKQuantityTypeIdentifierBodyMass")
	if _, err := engine.Reconcile(context.Background(), "HKQuantityTypeIdentifierBodyMass"); err != nil {
		t.Fatalf("expected reconcile to succeed: %v", err)
	}
	state, ok := engine.State("HKQuantityTypeIdentifierBodyMass")
	if !ok {
		t.Fatalf("expected stream state")
	}
	if state.Phase != core.StreamPhaseWaitingForChange {
		t.Fatalf("expected waiting_for_change after cycle, got %s", state.Phase)
	}
}

func TestReconcileRejectsOverlappingCycle(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	source := &stubSource{
		queryIncremental: func(ctx context.Context, sourceType, cursor string) (core.IncrementalResult, error) {
			close(entered)
			<-release
			return core.IncrementalResult{NewCursor: "anchor-1"}, nil
		},
	}

	engine, _, _ := newTestEngine(t, &stubAPI{}, source)
	intoReconciling(t, engine, "HKQuantityTypeIdentifierBodyMass")

	firstDone := make(chan error, 1)
	go func() {
		_, err := engine.Reconcile(context.Background(), "HKQuantityTypeIdentifierBodyMass")
		firstDone <- err
	}()
	<-entered

	if _, err := engine.Reconcile(context.Background(), "HKQuantityTypeIdentifierBodyMass"); !errors.Is(err, core.ErrInvalidStreamPhaseTransition) {
		t.Fatalf("expected overlapping cycle to be rejected, got %v", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("expected in-flight cycle to finish cleanly: %v", err)
	}
	state, ok := engine.State("HKQuantityTypeIdentifierBodyMass")
	if !ok {
		t.Fatalf("expected stream state")
	}
	if state.Phase != core.StreamPhaseWaitingForChange {
		t.Fatalf("expected waiting_for_change after cycle, got %s", state.Phase)
	}
}
