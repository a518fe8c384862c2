package sqlstore

import (
	"time"

	"github.com/vitalbridge/go-healthsync/core"
)

func (r *syncCursorRecord) toDomain() core.SyncCursor {
	if r == nil {
		return core.SyncCursor{}
	}
	result := core.SyncCursor{
		ID:         r.ID,
		SourceType: r.SourceType,
		Cursor:     r.Cursor,
		Status:     r.Status,
		Metadata:   copyAnyMap(r.Metadata),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.LastSyncedAt != nil {
		result.LastSyncedAt = r.LastSyncedAt.UTC()
	}
	return result
}

func newSyncCursorRecord(in core.SaveSyncCursorInput, now time.Time) *syncCursorRecord {
	record := &syncCursorRecord{
		SourceType: in.SourceType,
		Cursor:     in.Cursor,
		Status:     in.Status,
		Metadata:   copyAnyMap(in.Metadata),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.LastSyncedAt != nil {
		value := *in.LastSyncedAt
		record.LastSyncedAt = &value
	}
	return record
}

func copyAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
