package apiclient

import (
	"encoding/json"
	"math"
	"time"

	"github.com/vitalbridge/go-healthsync/core"
)

// wireEvent is the remote store representation of an event. Times travel
// as epoch seconds with fractional precision.
type wireEvent struct {
	ID         string         `json:"id,omitempty"`
	StreamIDs  []string       `json:"streamIds"`
	Type       string         `json:"type"`
	Content    any            `json:"content"`
	Time       float64        `json:"time,omitempty"`
	ClientData map[string]any `json:"clientData,omitempty"`
	Created    float64        `json:"created,omitempty"`
	Modified   float64        `json:"modified,omitempty"`
}

type wireStream struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ParentID *string `json:"parentId,omitempty"`
}

type wireError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type wireErrorEnvelope struct {
	Error *wireError `json:"error"`
}

type wireEventsPage struct {
	Events []wireEvent `json:"events"`
	Meta   struct {
		ServerTime float64 `json:"serverTime"`
	} `json:"meta"`
}

type wireBatchCall struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type wireBatchResult struct {
	Event *wireEvent `json:"event,omitempty"`
	Error *wireError `json:"error,omitempty"`
}

type wireBatchResponse struct {
	Results []wireBatchResult `json:"results"`
}

const (
	clientDataSampleIDKey  = "healthsync:sourceSampleId"
	clientDataSignatureKey = "healthsync:signature"
)

func toWireEvent(event core.CanonicalEvent) wireEvent {
	wire := wireEvent{
		ID:        event.ID,
		StreamIDs: append([]string(nil), event.StreamIDs...),
		Type:      event.Type,
		Content:   event.Content.JSON(),
	}
	if !event.Time.IsZero() {
		wire.Time = toEpoch(event.Time)
	}
	if event.ClientData.SourceSampleID != "" || event.ClientData.Signature != "" {
		wire.ClientData = map[string]any{}
		if event.ClientData.SourceSampleID != "" {
			wire.ClientData[clientDataSampleIDKey] = event.ClientData.SourceSampleID
		}
		if event.ClientData.Signature != "" {
			wire.ClientData[clientDataSignatureKey] = event.ClientData.Signature
		}
	}
	return wire
}

func (w wireEvent) toDomain() core.CanonicalEvent {
	event := core.CanonicalEvent{
		ID:        w.ID,
		StreamIDs: append([]string(nil), w.StreamIDs...),
		Type:      w.Type,
		Content:   contentFromWire(w.Content),
	}
	if w.Time != 0 {
		event.Time = fromEpoch(w.Time)
	}
	if w.Created != 0 {
		event.CreatedAt = fromEpoch(w.Created)
	}
	if w.Modified != 0 {
		event.ModifiedAt = fromEpoch(w.Modified)
	}
	if sampleID, ok := w.ClientData[clientDataSampleIDKey].(string); ok {
		event.ClientData.SourceSampleID = sampleID
	}
	if signature, ok := w.ClientData[clientDataSignatureKey].(string); ok {
		event.ClientData.Signature = signature
	}
	return event
}

func contentFromWire(content any) core.ContentValue {
	switch typed := content.(type) {
	case nil:
		return core.NullValue()
	case float64:
		return core.NumberValue(typed)
	case json.Number:
		value, err := typed.Float64()
		if err != nil {
			return core.StringValue(typed.String())
		}
		return core.NumberValue(value)
	case string:
		return core.StringValue(typed)
	case bool:
		return core.BoolValue(typed)
	case map[string]any:
		return core.ObjectValue(typed)
	default:
		return core.NullValue()
	}
}

func toEpoch(at time.Time) float64 {
	return float64(at.UnixNano()) / float64(time.Second)
}

func fromEpoch(epoch float64) time.Time {
	seconds, fraction := math.Modf(epoch)
	return time.Unix(int64(seconds), int64(fraction*float64(time.Second))).UTC()
}
