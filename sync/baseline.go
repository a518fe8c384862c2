package sync

import (
	"context"
	"reflect"

	"github.com/vitalbridge/go-healthsync/catalog"
	"github.com/vitalbridge/go-healthsync/core"
	"github.com/vitalbridge/go-healthsync/extract"
	"github.com/vitalbridge/go-healthsync/signing"
)

// CheckBaseline compares the source's current snapshot of a static
// characteristic against the most recent stored event and writes a new
// event only on first run or when the value changed. Unchanged values
// produce no write.
func (e *Engine) CheckBaseline(ctx context.Context, sourceType string) error {
	mapping := catalog.Resolve(sourceType)

	snapshot, err := e.source.QueryBaseline(ctx, sourceType)
	if err != nil {
		return core.MapError(err)
	}
	if snapshot.IsZero() {
		return nil
	}

	extracted := extract.Snapshot(snapshot, mapping)
	if !extracted.ShouldEmit() {
		return nil
	}

	page, err := e.api.GetEvents(ctx, core.EventsFilter{
		StreamIDs: []string{mapping.StreamID},
		Limit:     1,
	})
	if err != nil {
		return core.MapError(err)
	}
	if len(page.Events) > 0 && contentEqual(page.Events[0].Content, extracted.Content) {
		return nil
	}

	event := core.CanonicalEvent{
		StreamIDs: []string{mapping.StreamID},
		Type:      mapping.ContentType,
		Content:   extracted.Content,
		Time:      e.now(),
	}
	if e.signer != nil {
		if payload, payloadErr := signing.EventPayload(event); payloadErr == nil {
			if signature, signErr := e.signer.Sign(payload); signErr == nil {
				event.ClientData.Signature = signature
			}
		}
	}

	result, err := e.api.BatchCreateEvents(ctx, []core.CanonicalEvent{event})
	if err != nil {
		return core.MapError(err)
	}
	if len(result.Errors) > 0 {
		e.logger.Error("baseline event rejected",
			"source_type", sourceType, "error", result.Errors[0].Message)
	}
	return nil
}

func contentEqual(a, b core.ContentValue) bool {
	if a.Kind != b.Kind {
		return false
	}
	return reflect.DeepEqual(a.JSON(), b.JSON())
}
