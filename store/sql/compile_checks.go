package sqlstore

import "github.com/vitalbridge/go-healthsync/core"

var (
	_ core.SyncCursorStore = (*SyncCursorStore)(nil)
	_ core.EventIndexStore = (*EventIndexStore)(nil)
	_ core.EventIndexStore = (*CachedEventIndexStore)(nil)
	_ core.KVStore         = (*KVStore)(nil)
)
