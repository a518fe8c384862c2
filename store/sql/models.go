package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type syncCursorRecord struct {
	bun.BaseModel `bun:"table:healthsync_cursors,alias:hc"`

	ID           string         `bun:"id,pk"`
	SourceType   string         `bun:"source_type,notnull,unique"`
	Cursor       string         `bun:"cursor,notnull"`
	Status       string         `bun:"status,notnull"`
	LastSyncedAt *time.Time     `bun:"last_synced_at,nullzero"`
	Metadata     map[string]any `bun:"metadata,type:jsonb"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type eventIndexRecord struct {
	bun.BaseModel `bun:"table:healthsync_event_index,alias:hei"`

	ID             string    `bun:"id,pk"`
	SourceSampleID string    `bun:"source_sample_id,notnull,unique"`
	EventID        string    `bun:"event_id,notnull"`
	RefreshedAt    time.Time `bun:"refreshed_at,nullzero,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type kvRecord struct {
	bun.BaseModel `bun:"table:healthsync_kv,alias:hkv"`

	Key       string    `bun:"key,pk"`
	Value     []byte    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
