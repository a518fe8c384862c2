package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// StreamDescriptor is the create-stream payload sent to the remote store.
type StreamDescriptor struct {
	ID       string
	Name     string
	ParentID string
}

// EventsFilter bounds a remote event fetch. Limit caps the page size;
// ModifiedSince restricts to events touched after the watermark.
type EventsFilter struct {
	StreamIDs     []string
	Types         []string
	Tags          []string
	Limit         int
	ModifiedSince *time.Time
}

// EventsPage is one bounded page of remote events plus the server clock at
// fetch time, recorded as the next modified-since watermark.
type EventsPage struct {
	Events     []CanonicalEvent
	ServerTime time.Time
}

// BatchError reports a single failed entry of a batch create; Index refers
// to the input slice position.
type BatchError struct {
	Index   int
	Message string
}

type BatchResult struct {
	Created []CanonicalEvent
	Errors  []BatchError
}

// EventAPI is the remote personal-data-store client collaborator. Stream
// creation reports an existing stream as ErrStreamExists so callers can
// treat it as success. Batch creation supports partial success.
type EventAPI interface {
	CreateStream(ctx context.Context, descriptor StreamDescriptor) error
	BatchCreateEvents(ctx context.Context, events []CanonicalEvent) (BatchResult, error)
	GetEvents(ctx context.Context, filter EventsFilter) (EventsPage, error)
	DeleteEvent(ctx context.Context, id string) error
	CreateEventWithAttachment(ctx context.Context, event CanonicalEvent, attachment Attachment) (CanonicalEvent, error)
}

// ChangeNotification announces that the source store has new data for a
// monitored type. Notifications for the same type are delivered serially.
type ChangeNotification struct {
	SourceType string
	ReceivedAt time.Time
}

// IncrementalResult is the outcome of one anchored query: everything added
// and deleted since the supplied cursor, plus the advanced cursor.
type IncrementalResult struct {
	Additions []SourceSample
	Deletions []DeletionTombstone
	NewCursor string
}

// SourcePlatform is the source health-store collaborator.
type SourcePlatform interface {
	RequestAuthorization(ctx context.Context, readTypes []string, writeTypes []string) error
	EnableBackgroundDelivery(ctx context.Context, sourceType string) error
	Observe(ctx context.Context, sourceType string) (<-chan ChangeNotification, error)
	QueryIncremental(ctx context.Context, sourceType string, cursor string) (IncrementalResult, error)
	QueryBaseline(ctx context.Context, sourceType string) (SourceSnapshot, error)
}

type SaveSyncCursorInput struct {
	SourceType   string
	Cursor       string
	LastSyncedAt *time.Time
	Status       string
	Metadata     map[string]any
}

// SyncCursorStore persists per-stream resumption tokens. Get returns
// ErrSyncCursorNotFound for a stream that has never synced.
type SyncCursorStore interface {
	Get(ctx context.Context, sourceType string) (SyncCursor, error)
	Save(ctx context.Context, in SaveSyncCursorInput) (SyncCursor, error)
}

// EventIndexStore persists the source-sample-id to canonical-event-id
// associations backing the deletion fast path, plus the modified-since
// watermark of the last slow-path rebuild.
type EventIndexStore interface {
	Lookup(ctx context.Context, sourceSampleIDs []string) (map[string]string, error)
	Replace(ctx context.Context, entries []EventIndexEntry) error
	Watermark(ctx context.Context) (time.Time, bool, error)
	SaveWatermark(ctx context.Context, at time.Time) error
}

// KVStore is the minimal durable key-value capability used where a typed
// store would be overkill.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Signer signs a canonical byte representation of event parameters.
// Verification recomputes (or cryptographically verifies) and compares.
type Signer interface {
	Sign(payload []byte) (string, error)
	Verify(payload []byte, signature string) error
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
