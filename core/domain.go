package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidStreamPhaseTransition = errors.New("core: invalid stream phase transition")
	ErrSyncCursorNotFound           = errors.New("core: sync cursor not found")
	ErrStreamExists                 = errors.New("core: stream already exists")
	ErrEventIndexEntryNotFound      = errors.New("core: event index entry not found")
)

// SampleKind selects the extraction strategy for a source sample type.
type SampleKind string

const (
	SampleKindQuantity       SampleKind = "quantity"
	SampleKindCategory       SampleKind = "category"
	SampleKindCorrelation    SampleKind = "correlation"
	SampleKindWorkout        SampleKind = "workout"
	SampleKindAudiogram      SampleKind = "audiogram"
	SampleKindActivity       SampleKind = "activity"
	SampleKindClinical       SampleKind = "clinical"
	SampleKindCharacteristic SampleKind = "characteristic"
	SampleKindNote           SampleKind = "note"
)

// SourceSample is one raw reading from the source health store. Optional
// constituents are expressed through pointer fields and map presence so the
// extractor can distinguish "absent" from "zero".
type SourceSample struct {
	ID         string
	TypeID     string
	StartedAt  time.Time
	EndedAt    time.Time
	Value      *float64
	Category   *int64
	Components map[string]float64
	Segments   []SampleSegment
	Document   []byte
	DocFormat  string
	DocName    string
	Metadata   map[string]any
}

// SampleSegment is a constituent reading of a composite sample: a workout
// segment, an audiogram sensitivity point, an activity summary bucket.
type SampleSegment struct {
	Label     string
	StartedAt time.Time
	EndedAt   time.Time
	Value     float64
	Unit      string
}

// SourceSnapshot is a characteristic read straight from the source store
// rather than from its sample feed (date of birth, biological sex).
type SourceSnapshot struct {
	TypeID string
	Token  string
	Date   *time.Time
}

func (s SourceSnapshot) IsZero() bool {
	return strings.TrimSpace(s.Token) == "" && s.Date == nil
}

// DeletionTombstone is a source-side notice that a previously observed
// sample was deleted.
type DeletionTombstone struct {
	SourceSampleID string
	DeletedAt      *time.Time
}

type ContentKind string

const (
	ContentKindNull   ContentKind = "null"
	ContentKindNumber ContentKind = "number"
	ContentKindString ContentKind = "string"
	ContentKindBool   ContentKind = "bool"
	ContentKindObject ContentKind = "object"
)

// ContentValue is the constrained content sum type carried by canonical
// events: number, string, bool, structured object, or null.
type ContentValue struct {
	Kind   ContentKind
	Number float64
	Text   string
	Bool   bool
	Object map[string]any
}

func NullValue() ContentValue { return ContentValue{Kind: ContentKindNull} }

func NumberValue(v float64) ContentValue {
	return ContentValue{Kind: ContentKindNumber, Number: v}
}

func StringValue(v string) ContentValue {
	return ContentValue{Kind: ContentKindString, Text: v}
}

func BoolValue(v bool) ContentValue {
	return ContentValue{Kind: ContentKindBool, Bool: v}
}

func ObjectValue(v map[string]any) ContentValue {
	if v == nil {
		return NullValue()
	}
	return ContentValue{Kind: ContentKindObject, Object: v}
}

func (v ContentValue) IsNull() bool {
	return v.Kind == "" || v.Kind == ContentKindNull
}

// JSON returns the JSON-compatible representation of the value.
func (v ContentValue) JSON() any {
	switch v.Kind {
	case ContentKindNumber:
		return v.Number
	case ContentKindString:
		return v.Text
	case ContentKindBool:
		return v.Bool
	case ContentKindObject:
		return v.Object
	default:
		return nil
	}
}

// Unit converts a source-store base value into the canonical physical unit.
// Factor is the multiplier applied on the way out; Invert recovers the
// source value.
type Unit struct {
	Symbol string
	Factor float64
}

func (u Unit) Convert(value float64) float64 {
	if u.Factor == 0 {
		return value
	}
	return value * u.Factor
}

func (u Unit) Invert(value float64) float64 {
	if u.Factor == 0 {
		return value
	}
	return value / u.Factor
}

// TypeMapping resolves one source sample type to its canonical destination.
// CategoryTokens maps raw categorical values to canonical string tokens for
// category kinds; Unit is non-nil exactly when the extractor performs a
// numeric unit conversion.
type TypeMapping struct {
	SourceType     string
	Kind           SampleKind
	StreamID       string
	ParentStreamID string
	ContentType    string
	Unit           *Unit
	CategoryTokens map[int64]string
}

func (m TypeMapping) HasParent() bool {
	return strings.TrimSpace(m.ParentStreamID) != ""
}

// MonitoredStream is one configured source type. Continuous streams use the
// change-notification feed; static streams only get a baseline check per
// engine start.
type MonitoredStream struct {
	SourceType string
	Continuous bool
}

// ClientData rides along with a canonical event and carries the sync
// bookkeeping: the originating sample id for dedupe and deletion mapping,
// and an optional payload signature.
type ClientData struct {
	SourceSampleID string
	Signature      string
}

type Attachment struct {
	Bytes    []byte
	MIMEType string
	Filename string
}

// CanonicalEvent is the normalized record sent to the remote personal-data
// store.
type CanonicalEvent struct {
	ID         string
	StreamIDs  []string
	Type       string
	Content    ContentValue
	Time       time.Time
	ClientData ClientData
	Attachment *Attachment
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// ExtractedContent is the outcome of content extraction: a nil-able content
// value plus an optional binary attachment. A null content with no
// attachment means "do not sync this occurrence".
type ExtractedContent struct {
	Content    ContentValue
	Attachment *Attachment
}

func (e ExtractedContent) ShouldEmit() bool {
	return !e.Content.IsNull() || e.Attachment != nil
}

// SyncCursor is the persisted resumption token for one monitored source
// type.
type SyncCursor struct {
	ID           string
	SourceType   string
	Cursor       string
	LastSyncedAt time.Time
	Status       string
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EventIndexEntry is one cached source-sample-id to canonical-event-id
// association, used by the deletion reconciliation fast path.
type EventIndexEntry struct {
	SourceSampleID string
	EventID        string
	RefreshedAt    time.Time
}

type StreamPhase string

const (
	StreamPhaseIdle             StreamPhase = "idle"
	StreamPhaseFetchingBaseline StreamPhase = "fetching_baseline"
	StreamPhaseWaitingForChange StreamPhase = "waiting_for_change"
	StreamPhaseReconciling      StreamPhase = "reconciling"
)

// StreamState tracks the engine phase of one monitored stream. Each stream
// owns its state; there is no cross-stream coupling.
type StreamState struct {
	SourceType string
	Phase      StreamPhase
	LastError  string
	UpdatedAt  time.Time
}

func (s *StreamState) TransitionTo(phase StreamPhase, now time.Time) error {
	if s == nil {
		return nil
	}
	if s.Phase == phase {
		// A stream admits only one reconcile cycle at a time; re-entering
		// reconciling while a cycle is in flight is rejected.
		if phase == StreamPhaseReconciling {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStreamPhaseTransition, s.Phase, phase)
		}
		s.UpdatedAt = now
		return nil
	}
	if !streamPhaseTransitionAllowed(s.Phase, phase) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStreamPhaseTransition, s.Phase, phase)
	}
	s.Phase = phase
	s.UpdatedAt = now
	if phase == StreamPhaseWaitingForChange || phase == StreamPhaseIdle {
		s.LastError = ""
	}
	return nil
}

func streamPhaseTransitionAllowed(current, next StreamPhase) bool {
	allowed := map[StreamPhase]map[StreamPhase]struct{}{
		StreamPhaseIdle: {
			StreamPhaseFetchingBaseline: {},
			StreamPhaseWaitingForChange: {},
		},
		StreamPhaseFetchingBaseline: {
			StreamPhaseIdle: {},
		},
		StreamPhaseWaitingForChange: {
			StreamPhaseReconciling: {},
			StreamPhaseIdle:        {},
		},
		StreamPhaseReconciling: {
			StreamPhaseWaitingForChange: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}
