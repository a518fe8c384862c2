package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/vitalbridge/go-healthsync/core"
)

const eventIndexWatermarkKey = "event_index::watermark::v1"

// EventIndexStore persists source-sample-id to event-id associations plus
// the modified-since watermark of the last index rebuild. The watermark
// rides in the shared kv table.
type EventIndexStore struct {
	db   *bun.DB
	repo repository.Repository[*eventIndexRecord]
}

func NewEventIndexStore(db *bun.DB) (*EventIndexStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*eventIndexRecord](db, eventIndexHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event index repository wiring: %w", err)
		}
	}
	return &EventIndexStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *EventIndexStore) Lookup(ctx context.Context, sourceSampleIDs []string) (map[string]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: event index store is not configured")
	}
	out := map[string]string{}
	if len(sourceSampleIDs) == 0 {
		return out, nil
	}

	var records []eventIndexRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.source_sample_id IN (?)", bun.In(sourceSampleIDs)).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return out, nil
		}
		return nil, err
	}
	for _, record := range records {
		out[record.SourceSampleID] = record.EventID
	}
	return out, nil
}

// Replace swaps the whole association set atomically.
func (s *EventIndexStore) Replace(ctx context.Context, entries []core.EventIndexEntry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event index store is not configured")
	}
	now := time.Now().UTC()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*eventIndexRecord)(nil)).Where("1 = 1").Exec(ctx); err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		records := make([]eventIndexRecord, 0, len(entries))
		for _, entry := range entries {
			refreshedAt := entry.RefreshedAt
			if refreshedAt.IsZero() {
				refreshedAt = now
			}
			records = append(records, eventIndexRecord{
				ID:             uuid.NewString(),
				SourceSampleID: entry.SourceSampleID,
				EventID:        entry.EventID,
				RefreshedAt:    refreshedAt,
				CreatedAt:      now,
			})
		}
		_, err := tx.NewInsert().Model(&records).Exec(ctx)
		return err
	})
}

func (s *EventIndexStore) Watermark(ctx context.Context) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, fmt.Errorf("sqlstore: event index store is not configured")
	}
	record := &kvRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.key = ?", eventIndexWatermarkKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}

	var at time.Time
	if err := json.Unmarshal(record.Value, &at); err != nil {
		return time.Time{}, false, fmt.Errorf("sqlstore: decode watermark: %w", err)
	}
	return at, true, nil
}

func (s *EventIndexStore) SaveWatermark(ctx context.Context, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event index store is not configured")
	}
	value, err := json.Marshal(at.UTC())
	if err != nil {
		return fmt.Errorf("sqlstore: encode watermark: %w", err)
	}
	record := &kvRecord{
		Key:       eventIndexWatermarkKey,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	_, err = s.db.NewInsert().
		Model(record).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}
