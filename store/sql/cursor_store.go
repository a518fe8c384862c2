package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/vitalbridge/go-healthsync/core"
)

type SyncCursorStore struct {
	db   *bun.DB
	repo repository.Repository[*syncCursorRecord]
}

func NewSyncCursorStore(db *bun.DB) (*SyncCursorStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncCursorRecord](db, syncCursorHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sync cursor repository wiring: %w", err)
		}
	}
	return &SyncCursorStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *SyncCursorStore) Get(ctx context.Context, sourceType string) (core.SyncCursor, error) {
	if s == nil || s.db == nil {
		return core.SyncCursor{}, fmt.Errorf("sqlstore: sync cursor store is not configured")
	}
	sourceType = strings.TrimSpace(sourceType)
	if sourceType == "" {
		return core.SyncCursor{}, fmt.Errorf("sqlstore: source type is required")
	}

	record := &syncCursorRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.source_type = ?", sourceType).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.SyncCursor{}, core.ErrSyncCursorNotFound
		}
		return core.SyncCursor{}, err
	}
	return record.toDomain(), nil
}

func (s *SyncCursorStore) Save(ctx context.Context, in core.SaveSyncCursorInput) (core.SyncCursor, error) {
	if s == nil || s.db == nil {
		return core.SyncCursor{}, fmt.Errorf("sqlstore: sync cursor store is not configured")
	}

	in.SourceType = strings.TrimSpace(in.SourceType)
	in.Cursor = strings.TrimSpace(in.Cursor)
	in.Status = strings.TrimSpace(in.Status)
	if in.SourceType == "" {
		return core.SyncCursor{}, fmt.Errorf("sqlstore: source type is required")
	}
	if in.Status == "" {
		in.Status = "active"
	}
	now := time.Now().UTC()

	var out core.SyncCursor
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findSyncCursorTx(ctx, tx, in.SourceType)
		if err != nil {
			return err
		}
		if record == nil {
			record = newSyncCursorRecord(in, now)
			record.ID = uuid.NewString()
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if isUniqueViolation(insertErr) {
					record, err = findSyncCursorTx(ctx, tx, in.SourceType)
					if err != nil {
						return err
					}
					if record == nil {
						return insertErr
					}
				} else {
					return insertErr
				}
			}
			out = record.toDomain()
			return nil
		}

		record.Cursor = in.Cursor
		record.Status = in.Status
		record.Metadata = copyAnyMap(in.Metadata)
		record.UpdatedAt = now
		if in.LastSyncedAt != nil {
			value := *in.LastSyncedAt
			record.LastSyncedAt = &value
		} else {
			record.LastSyncedAt = nil
		}
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.SyncCursor{}, err
	}
	return out, nil
}

func findSyncCursorTx(ctx context.Context, tx bun.Tx, sourceType string) (*syncCursorRecord, error) {
	record := &syncCursorRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.source_type = ?", strings.TrimSpace(sourceType)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
