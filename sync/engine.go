// Package sync orchestrates the incremental bridge between the source
// health store and the remote canonical event store: anchored fetches,
// duplicate suppression, tombstone reconciliation, and baseline checks for
// static characteristic streams.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/vitalbridge/go-healthsync/catalog"
	"github.com/vitalbridge/go-healthsync/core"
	"github.com/vitalbridge/go-healthsync/extract"
	"github.com/vitalbridge/go-healthsync/provision"
	"github.com/vitalbridge/go-healthsync/signing"
)

// ContentValidator checks a canonical event's content against its declared
// type before transmission. Implemented by the schema package.
type ContentValidator interface {
	ValidateEvent(event core.CanonicalEvent) error
}

type Option func(*Engine)

func WithLogger(logger core.Logger) Option {
	return func(e *Engine) {
		if e == nil || logger == nil {
			return
		}
		e.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if e == nil || now == nil {
			return
		}
		e.now = now
	}
}

func WithSigner(signer core.Signer) Option {
	return func(e *Engine) {
		if e == nil {
			return
		}
		e.signer = signer
	}
}

func WithValidator(validator ContentValidator) Option {
	return func(e *Engine) {
		if e == nil {
			return
		}
		e.validator = validator
	}
}

func WithSyncConfig(cfg core.SyncConfig) Option {
	return func(e *Engine) {
		if e == nil {
			return
		}
		if cfg.DedupeWindow > 0 {
			e.dedupeWindow = cfg.DedupeWindow
		}
		if cfg.DeletionPageLimit > 0 {
			e.deletions.pageLimit = cfg.DeletionPageLimit
		}
	}
}

// Engine runs one state machine per monitored stream. Streams share no
// mutable state: each owns its cursor and reconciles independently.
type Engine struct {
	api       core.EventAPI
	source    core.SourcePlatform
	cursors   core.SyncCursorStore
	signer    core.Signer
	validator ContentValidator
	deletions *DeletionReconciler
	logger    core.Logger
	now       func() time.Time

	streams      []core.MonitoredStream
	dedupeWindow int

	mu     gosync.Mutex
	states map[string]*core.StreamState
}

func New(
	api core.EventAPI,
	source core.SourcePlatform,
	cursors core.SyncCursorStore,
	index core.EventIndexStore,
	streams []core.MonitoredStream,
	opts ...Option,
) (*Engine, error) {
	if api == nil {
		return nil, fmt.Errorf("sync: event api is required")
	}
	if source == nil {
		return nil, fmt.Errorf("sync: source platform is required")
	}
	if cursors == nil {
		return nil, fmt.Errorf("sync: cursor store is required")
	}
	if index == nil {
		return nil, fmt.Errorf("sync: event index store is required")
	}
	if len(streams) == 0 {
		return nil, fmt.Errorf("sync: at least one monitored stream is required")
	}

	_, logger := glog.Resolve("healthsync.engine", nil, nil)
	defaults := core.DefaultConfig().Sync
	engine := &Engine{
		api:          api,
		source:       source,
		cursors:      cursors,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		streams:      streams,
		dedupeWindow: defaults.DedupeWindow,
		states:       map[string]*core.StreamState{},
	}
	engine.deletions = &DeletionReconciler{
		api:       api,
		index:     index,
		logger:    logger,
		pageLimit: defaults.DeletionPageLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	engine.deletions.logger = engine.logger
	for _, stream := range streams {
		engine.states[stream.SourceType] = &core.StreamState{
			SourceType: stream.SourceType,
			Phase:      core.StreamPhaseIdle,
			UpdatedAt:  engine.now(),
		}
	}
	return engine, nil
}

// Deletions exposes the engine's tombstone reconciler for maintenance
// surfaces like the periodic index refresh job.
func (e *Engine) Deletions() *DeletionReconciler {
	if e == nil {
		return nil
	}
	return e.deletions
}

// State returns a copy of the stream's current engine state.
func (e *Engine) State(sourceType string) (core.StreamState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.states[sourceType]
	if !ok {
		return core.StreamState{}, false
	}
	return *state, true
}

func (e *Engine) transition(sourceType string, phase core.StreamPhase) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.states[sourceType]
	if !ok {
		return fmt.Errorf("sync: unknown stream %q", sourceType)
	}
	return state.TransitionTo(phase, e.now())
}

func (e *Engine) setLastError(sourceType string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if state, ok := e.states[sourceType]; ok && err != nil {
		state.LastError = err.Error()
	}
}

// Run authorizes against the source store, provisions destination streams,
// then drives every monitored stream until the context is cancelled.
// Provisioning is best-effort: a failed stream is logged and its events
// will fail later, but siblings proceed.
func (e *Engine) Run(ctx context.Context) error {
	if e == nil {
		return fmt.Errorf("sync: engine is nil")
	}

	readTypes := make([]string, 0, len(e.streams))
	for _, stream := range e.streams {
		readTypes = append(readTypes, stream.SourceType)
	}
	if err := e.source.RequestAuthorization(ctx, readTypes, nil); err != nil {
		return core.MapError(err)
	}

	provisioner, err := provision.New(e.api, provision.WithLogger(e.logger))
	if err != nil {
		return core.MapError(err)
	}
	result := provisioner.EnsureStreams(ctx, catalog.Mappings(e.streams))
	if !result.Ok() {
		e.logger.Warn("stream provisioning incomplete", "failed", len(result.Failed))
	}

	var wg gosync.WaitGroup
	for _, stream := range e.streams {
		wg.Add(1)
		if stream.Continuous {
			go e.runDynamic(ctx, &wg, stream.SourceType)
		} else {
			go e.runStatic(ctx, &wg, stream.SourceType)
		}
	}
	wg.Wait()
	if ctx.Err() == context.Canceled {
		return nil
	}
	return ctx.Err()
}

// runStatic performs the once-per-launch baseline check for a
// characteristic stream, then parks the stream in idle.
func (e *Engine) runStatic(ctx context.Context, wg *gosync.WaitGroup, sourceType string) {
	defer wg.Done()
	if err := e.transition(sourceType, core.StreamPhaseFetchingBaseline); err != nil {
		e.logger.Error("baseline transition failed", "source_type", sourceType, "error", err.Error())
		return
	}
	if err := e.CheckBaseline(ctx, sourceType); err != nil {
		e.setLastError(sourceType, err)
		e.logger.Error("baseline check failed", "source_type", sourceType, "error", err.Error())
	}
	if err := e.transition(sourceType, core.StreamPhaseIdle); err != nil {
		e.logger.Error("baseline transition failed", "source_type", sourceType, "error", err.Error())
	}
}

// runDynamic registers for change notifications and reconciles on each
// delivery. A failed cycle logs and waits for the next natural trigger;
// there is no scheduled retry.
func (e *Engine) runDynamic(ctx context.Context, wg *gosync.WaitGroup, sourceType string) {
	defer wg.Done()
	if err := e.source.EnableBackgroundDelivery(ctx, sourceType); err != nil {
		e.logger.Warn("background delivery unavailable", "source_type", sourceType, "error", err.Error())
	}
	notifications, err := e.source.Observe(ctx, sourceType)
	if err != nil {
		e.setLastError(sourceType, err)
		e.logger.Error("observer registration failed", "source_type", sourceType, "error", err.Error())
		return
	}
	if err := e.transition(sourceType, core.StreamPhaseWaitingForChange); err != nil {
		e.logger.Error("observer transition failed", "source_type", sourceType, "error", err.Error())
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-notifications:
			if !ok {
				return
			}
			if _, err := e.Reconcile(ctx, sourceType); err != nil {
				e.setLastError(sourceType, err)
				e.logger.Error("reconcile cycle failed", "source_type", sourceType, "error", err.Error())
			}
		}
	}
}

// ReconcileReport summarizes one reconciliation cycle.
type ReconcileReport struct {
	Fetched      int
	Suppressed   int
	Skipped      int
	Created      int
	CreateErrors int
	Deleted      int
	Unreconciled int
	Cursor       string
}

// Reconcile runs one incremental cycle for a stream. The advanced cursor
// is persisted before additions and deletions are processed: a crash
// mid-cycle risks losing this batch's writes but never re-reads the
// advanced range, and duplicate suppression makes redelivered additions a
// no-op.
func (e *Engine) Reconcile(ctx context.Context, sourceType string) (ReconcileReport, error) {
	report := ReconcileReport{}
	if e == nil {
		return report, fmt.Errorf("sync: engine is nil")
	}
	if err := e.transition(sourceType, core.StreamPhaseReconciling); err != nil {
		return report, err
	}
	defer func() {
		if err := e.transition(sourceType, core.StreamPhaseWaitingForChange); err != nil {
			e.logger.Error("reconcile transition failed", "source_type", sourceType, "error", err.Error())
		}
	}()

	cursor := ""
	stored, err := e.cursors.Get(ctx, sourceType)
	switch {
	case err == nil:
		cursor = stored.Cursor
	case errors.Is(err, core.ErrSyncCursorNotFound):
		// First sync: start-of-time sentinel is the empty cursor.
	default:
		return report, core.MapError(err)
	}

	result, err := e.source.QueryIncremental(ctx, sourceType, cursor)
	if err != nil {
		return report, core.MapError(err)
	}
	report.Fetched = len(result.Additions)
	report.Cursor = result.NewCursor

	now := e.now()
	if _, err := e.cursors.Save(ctx, core.SaveSyncCursorInput{
		SourceType:   sourceType,
		Cursor:       result.NewCursor,
		LastSyncedAt: &now,
		Status:       "active",
	}); err != nil {
		return report, core.MapError(err)
	}

	mapping := catalog.Resolve(sourceType)
	if len(result.Additions) > 0 {
		e.processAdditions(ctx, mapping, result.Additions, &report)
	}
	if len(result.Deletions) > 0 {
		deletionReport := e.deletions.Reconcile(ctx, result.Deletions)
		report.Deleted = len(deletionReport.Deleted)
		report.Unreconciled = len(deletionReport.Unreconciled)
	}
	return report, nil
}

func (e *Engine) processAdditions(
	ctx context.Context,
	mapping core.TypeMapping,
	additions []core.SourceSample,
	report *ReconcileReport,
) {
	recent, err := e.fetchRecent(ctx, mapping)
	if err != nil {
		// Best-effort window: without it every candidate survives and the
		// remote side may briefly hold duplicates.
		e.logger.Warn("dedupe window fetch failed", "source_type", mapping.SourceType, "error", err.Error())
	}
	survivors := Dedupe(additions, recent)
	report.Suppressed = len(additions) - len(survivors)

	var batch []core.CanonicalEvent
	for _, sample := range survivors {
		event, ok := e.buildEvent(sample, mapping)
		if !ok {
			report.Skipped++
			continue
		}
		if event.Attachment != nil {
			attachment := *event.Attachment
			event.Attachment = nil
			if _, err := e.api.CreateEventWithAttachment(ctx, event, attachment); err != nil {
				report.CreateErrors++
				e.logger.Error("attachment event create failed",
					"source_sample_id", sample.ID, "error", err.Error())
				continue
			}
			report.Created++
			continue
		}
		batch = append(batch, event)
	}
	if len(batch) == 0 {
		return
	}

	batchResult, err := e.api.BatchCreateEvents(ctx, batch)
	if err != nil {
		report.CreateErrors += len(batch)
		e.logger.Error("batch event create failed", "source_type", mapping.SourceType, "error", err.Error())
		return
	}
	report.Created += len(batchResult.Created)
	report.CreateErrors += len(batchResult.Errors)
	for _, batchErr := range batchResult.Errors {
		e.logger.Error("event create rejected",
			"source_type", mapping.SourceType, "index", batchErr.Index, "error", batchErr.Message)
	}
}

func (e *Engine) buildEvent(sample core.SourceSample, mapping core.TypeMapping) (core.CanonicalEvent, bool) {
	extracted := extract.Sample(sample, mapping)
	if !extracted.ShouldEmit() {
		return core.CanonicalEvent{}, false
	}

	eventTime := sample.StartedAt
	if eventTime.IsZero() {
		eventTime = e.now()
	}
	event := core.CanonicalEvent{
		StreamIDs:  []string{mapping.StreamID},
		Type:       mapping.ContentType,
		Content:    extracted.Content,
		Time:       eventTime,
		ClientData: core.ClientData{SourceSampleID: sample.ID},
		Attachment: extracted.Attachment,
	}

	if e.signer != nil {
		payload, err := signing.EventPayload(event)
		if err == nil {
			if signature, signErr := e.signer.Sign(payload); signErr == nil {
				event.ClientData.Signature = signature
			} else {
				e.logger.Warn("event signing failed", "source_sample_id", sample.ID, "error", signErr.Error())
			}
		}
	}
	if e.validator != nil {
		if err := e.validator.ValidateEvent(event); err != nil {
			e.logger.Error("event content rejected by schema",
				"source_sample_id", sample.ID, "type", event.Type, "error", err.Error())
			return core.CanonicalEvent{}, false
		}
	}
	return event, true
}

func (e *Engine) fetchRecent(ctx context.Context, mapping core.TypeMapping) ([]core.CanonicalEvent, error) {
	page, err := e.api.GetEvents(ctx, core.EventsFilter{
		StreamIDs: []string{mapping.StreamID},
		Limit:     e.dedupeWindow,
	})
	if err != nil {
		return nil, err
	}
	return page.Events, nil
}
